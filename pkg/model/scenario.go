// Package model 定义排产引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// DeltaType 场景调整类型
type DeltaType string

const (
	DeltaAddOvertime    DeltaType = "add-overtime" // 增加加班产能
	DeltaDeferWorkOrder DeltaType = "defer"        // 推迟工单
	DeltaReprioritize   DeltaType = "reprioritize" // 调整优先级
)

// Delta 场景调整项
type Delta struct {
	Type        DeltaType `json:"type"`
	ResourceID  string    `json:"resource_id,omitempty"`  // add-overtime
	Hours       float64   `json:"hours,omitempty"`        // add-overtime：每日加班小时数
	Days        []string  `json:"days,omitempty"`         // add-overtime：适用日期 YYYY-MM-DD
	WorkOrderID string    `json:"work_order_id,omitempty"`
	DeferDays   int       `json:"defer_days,omitempty"`   // defer
	NewPriority Priority  `json:"new_priority,omitempty"` // reprioritize
}

// ScenarioStatus 场景状态
type ScenarioStatus string

const (
	ScenarioDraft     ScenarioStatus = "draft"     // 草稿
	ScenarioComputed  ScenarioStatus = "computed"  // 已计算（KPI快照不可变）
	ScenarioPromoted  ScenarioStatus = "promoted"  // 已采纳为现行计划
	ScenarioDiscarded ScenarioStatus = "discarded" // 已废弃
)

// Scenario What-if 场景：对基线计划克隆施加调整后的评估结果
type Scenario struct {
	BaseModel
	Name           string         `json:"name"`
	BaseScheduleID uuid.UUID      `json:"base_schedule_id"`
	BaseVersion    int            `json:"base_version"`
	Deltas         []Delta        `json:"deltas"`
	Status         ScenarioStatus `json:"status"`
	KPIs           *KPISnapshot   `json:"kpis,omitempty"`     // 计算后不可变
	Schedule       *Schedule      `json:"-"`                  // 场景计划（采纳时替换现行计划）
	ComputedAt     *time.Time     `json:"computed_at,omitempty"`
}

// IsComputed 检查场景是否已计算
func (s *Scenario) IsComputed() bool {
	return s.Status == ScenarioComputed || s.Status == ScenarioPromoted
}
