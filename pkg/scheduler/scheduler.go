// Package scheduler 提供有限产能正排调度器
//
// 算法：按（工单优先级, 交期, 路线顺序号, 工单ID）确定性排序，
// 逐道工序正排放置，交期受威胁时评估同能力替代资源，
// 放置完成后做一轮确定性左移压缩。
package scheduler

import (
	"time"

	"github.com/flowiq/flowiq/pkg/model"
)

// DefaultHorizon 默认搜索视界
const DefaultHorizon = 30 * 24 * time.Hour

// Options 排产选项
type Options struct {
	Now         time.Time     // 排产基准时刻
	FrozenUntil time.Time     // 冻结期边界；零值表示无冻结期
	Horizon     time.Duration // 搜索视界；零值取 DefaultHorizon
	Rules       []Rule        // 软规则（可选，参与资源选择打分）
	Compact     bool          // 是否执行左移压缩（默认开启，测试可关）
}

// normalize 填充选项缺省值
func (o Options) normalize() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Horizon <= 0 {
		o.Horizon = DefaultHorizon
	}
	return o
}

// horizonEnd 返回搜索截止时刻
func (o Options) horizonEnd() time.Time {
	return o.Now.Add(o.Horizon)
}

// InfeasibleReason 不可行原因
type InfeasibleReason string

const (
	ReasonNoCapableResource InfeasibleReason = "no-capable-resource" // 无具备能力的资源
	ReasonNoWindow          InfeasibleReason = "no-window"           // 视界内无可用窗口
	ReasonPredecessorStuck  InfeasibleReason = "predecessor-stuck"   // 前道工序未能排定
	ReasonLate              InfeasibleReason = "late"                // 已排定但晚于交期
)

// Infeasible 单道工序的不可行报告
// 放置失败不终止整轮排产；已尽力排定（迟到）的工序同样在此上报缺口。
type Infeasible struct {
	WorkOrderID    string           `json:"work_order_id"`
	OperationID    string           `json:"operation_id"`
	Reason         InfeasibleReason `json:"reason"`
	DueDate        time.Time        `json:"due_date"`
	PlacedEnd      *time.Time       `json:"placed_end,omitempty"`      // 尽力放置的完成时间
	ShortfallHours float64          `json:"shortfall_hours,omitempty"` // 超出交期的小时数
}

// Statistics 排产统计
type Statistics struct {
	TotalOperations int           `json:"total_operations"`
	Placed          int           `json:"placed"`
	Fixed           int           `json:"fixed"` // 冻结/进行中，保持原位
	Infeasible      int           `json:"infeasible"`
	AlternateUsed   int           `json:"alternate_used"` // 启用替代资源的次数
	CompactionMoves int           `json:"compaction_moves"`
	Duration        time.Duration `json:"duration"`
}

// Result 排产结果
type Result struct {
	Schedule   *model.Schedule `json:"schedule"`
	Infeasible []Infeasible    `json:"infeasible,omitempty"`
	Statistics Statistics      `json:"statistics"`
	Incomplete bool            `json:"incomplete"` // 被取消时为真：部分结果，绝不含重叠
	Message    string          `json:"message,omitempty"`
}

// opRef 待排工序及其归属工单
type opRef struct {
	order *model.WorkOrder
	op    *model.Operation
}

// successorHours 返回同一工单内排在 op 之后的工序总时长
func successorHours(order *model.WorkOrder, op *model.Operation) float64 {
	var total float64
	for _, o := range order.Operations {
		if o.Sequence > op.Sequence {
			total += o.Duration
		}
	}
	return total
}
