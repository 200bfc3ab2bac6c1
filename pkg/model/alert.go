// Package model 定义排产引擎的核心数据模型
package model

import "time"

// AlertType 告警类型
type AlertType string

const (
	AlertMachineDown      AlertType = "machine-down"      // 设备停机
	AlertMaterialShortage AlertType = "material-shortage" // 物料短缺
	AlertCapacityOverload AlertType = "capacity-overload" // 产能过载
	AlertLateOrder        AlertType = "late-order"        // 工单拖期
	AlertChangeover       AlertType = "changeover"        // 换型
	AlertScheduleConflict AlertType = "schedule-conflict" // 排程冲突
)

// AlertStatus 告警状态（仅可状态迁移，不允许删除，留作审计）
type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"         // 未处理
	AlertAcknowledged AlertStatus = "acknowledged" // 已确认
	AlertResolved     AlertStatus = "resolved"     // 已解决
)

// Alert 告警（由冲突检测器从当前计划状态推导，状态字段为外部维护）
type Alert struct {
	BaseModel
	Key          string      `json:"key"`          // 规则+实体标识，检测重跑时用于状态延续
	Type         AlertType   `json:"type"`
	Severity     Severity    `json:"severity"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	WorkOrderIDs []string    `json:"work_order_ids,omitempty"` // 受影响工单
	ResourceID   string      `json:"resource_id,omitempty"`    // 受影响资源（可选）
	Status       AlertStatus `json:"status"`
	GeneratedAt  time.Time   `json:"generated_at"`
	AckedAt      *time.Time  `json:"acked_at,omitempty"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
}

// Acknowledge 确认告警
func (a *Alert) Acknowledge(at time.Time) {
	if a.Status == AlertOpen {
		a.Status = AlertAcknowledged
		a.AckedAt = &at
		a.UpdatedAt = at
	}
}

// Resolve 解决告警
func (a *Alert) Resolve(at time.Time) {
	if a.Status != AlertResolved {
		a.Status = AlertResolved
		a.ResolvedAt = &at
		a.UpdatedAt = at
	}
}

// MaterialSignal 物料可用性信号（外部协作方提供，引擎只消费不计算）
type MaterialSignal struct {
	Material     string    `json:"material" yaml:"material"`
	AvailableQty float64   `json:"available_qty" yaml:"available_qty"`
	RequiredQty  float64   `json:"required_qty" yaml:"required_qty"`
	Horizon      TimeRange `json:"horizon" yaml:"horizon"`                             // 检查视界
	WorkOrderIDs []string  `json:"work_order_ids,omitempty" yaml:"work_order_ids,omitempty"` // 依赖该物料的工单
}

// Short 检查物料在视界内是否短缺
func (m *MaterialSignal) Short() bool {
	return m.AvailableQty < m.RequiredQty
}
