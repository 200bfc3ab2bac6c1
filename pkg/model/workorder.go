// Package model 定义排产引擎的核心数据模型
package model

import (
	"time"

	"github.com/flowiq/flowiq/pkg/errors"
)

// OperationStatus 工序状态
type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"     // 待排
	OperationInProgress OperationStatus = "in-progress" // 加工中
	OperationComplete   OperationStatus = "complete"    // 已完工
)

// WorkOrderStatus 工单状态（由工序与交期推导）
type WorkOrderStatus string

const (
	OrderOnTrack    WorkOrderStatus = "on-track"    // 正常
	OrderInProgress WorkOrderStatus = "in-progress" // 进行中
	OrderAtRisk     WorkOrderStatus = "at-risk"     // 有延期风险
	OrderLate       WorkOrderStatus = "late"        // 已拖期
	OrderComplete   WorkOrderStatus = "complete"    // 已完工
)

// Operation 工序（归属于工单，工单内ID唯一）
type Operation struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Capability string          `json:"capability" yaml:"capability"` // 所需工艺能力
	Duration   float64         `json:"duration" yaml:"duration"`     // 加工时长（小时），> 0
	Sequence   int             `json:"sequence" yaml:"sequence"`     // 路线顺序号
	Status     OperationStatus `json:"status" yaml:"status"`
	PinnedTo   string          `json:"pinned_to,omitempty" yaml:"pinned_to,omitempty"` // 指定资源（可选）
	Resource   string          `json:"resource,omitempty"`                             // 已排资源
	Start      *time.Time      `json:"start,omitempty"`                                // 排定开始时间
	End        *time.Time      `json:"end,omitempty"`                                  // 排定结束时间
}

// IsComplete 检查工序是否已完工
func (o *Operation) IsComplete() bool {
	return o.Status == OperationComplete
}

// Window 返回工序的排定时间窗口
func (o *Operation) Window() TimeRange {
	if o.Start == nil || o.End == nil {
		return TimeRange{}
	}
	return TimeRange{Start: *o.Start, End: *o.End}
}

// WorkOrder 工单（拥有其工序，删除工单即从计划中移除全部工序）
type WorkOrder struct {
	ID            string       `json:"id" yaml:"id"`
	Customer      string       `json:"customer" yaml:"customer"`
	Product       string       `json:"product" yaml:"product"`
	Quantity      int          `json:"quantity" yaml:"quantity"`
	Priority      Priority     `json:"priority" yaml:"priority"`
	DueDate       time.Time    `json:"due_date" yaml:"due_date"`
	PromisedDate  time.Time    `json:"promised_date" yaml:"promised_date"`
	EarliestStart *time.Time   `json:"earliest_start,omitempty" yaml:"earliest_start,omitempty"` // 最早开工约束（场景推迟用）
	Operations    []*Operation `json:"operations" yaml:"operations"`                             // 按路线顺序排列
}

// Validate 校验工单输入（失败即拒绝整个请求）
func (w *WorkOrder) Validate() error {
	if w.ID == "" {
		return errInvalid("工单ID不能为空")
	}
	if w.Quantity <= 0 {
		return errors.Newf(errors.CodeInvalidInput, "工单 %s 数量必须大于0", w.ID)
	}
	if !w.Priority.Valid() {
		return errors.Newf(errors.CodeInvalidInput, "工单 %s 优先级非法: %s", w.ID, w.Priority)
	}
	if len(w.Operations) == 0 {
		return errors.Newf(errors.CodeInvalidInput, "工单 %s 没有工序路线", w.ID)
	}
	seen := make(map[string]bool, len(w.Operations))
	for _, op := range w.Operations {
		if op.Duration <= 0 {
			return errors.Newf(errors.CodeInvalidInput, "工单 %s 工序 %s 时长必须大于0", w.ID, op.ID)
		}
		if op.Capability == "" && op.PinnedTo == "" {
			return errors.Newf(errors.CodeInvalidInput, "工单 %s 工序 %s 缺少工艺能力", w.ID, op.ID)
		}
		if seen[op.ID] {
			return errors.Newf(errors.CodeInvalidInput, "工单 %s 工序ID重复: %s", w.ID, op.ID)
		}
		seen[op.ID] = true
	}
	return nil
}

// OperationByID 按ID查找工序
func (w *WorkOrder) OperationByID(id string) *Operation {
	for _, op := range w.Operations {
		if op.ID == id {
			return op
		}
	}
	return nil
}

// RemainingOperations 返回未完工的工序（按路线顺序）
func (w *WorkOrder) RemainingOperations() []*Operation {
	var out []*Operation
	for _, op := range w.Operations {
		if !op.IsComplete() {
			out = append(out, op)
		}
	}
	return out
}

// TotalHours 返回路线总时长（小时）
func (w *WorkOrder) TotalHours() float64 {
	var total float64
	for _, op := range w.Operations {
		total += op.Duration
	}
	return total
}

// Progress 返回完工进度（0-100，按已完工工序时长占比）
func (w *WorkOrder) Progress() int {
	total := w.TotalHours()
	if total <= 0 {
		return 0
	}
	var done float64
	for _, op := range w.Operations {
		if op.IsComplete() {
			done += op.Duration
		}
	}
	return int(done / total * 100)
}

// IsComplete 检查工单是否全部完工
func (w *WorkOrder) IsComplete() bool {
	for _, op := range w.Operations {
		if !op.IsComplete() {
			return false
		}
	}
	return len(w.Operations) > 0
}

// DerivedStatus 推导工单状态
// projectedEnd 为当前计划下最后一道工序的预计完成时间，零值表示未排产。
func (w *WorkOrder) DerivedStatus(now, projectedEnd time.Time) WorkOrderStatus {
	if w.IsComplete() {
		return OrderComplete
	}
	if now.After(w.DueDate) {
		return OrderLate
	}
	if !projectedEnd.IsZero() && projectedEnd.After(w.DueDate) {
		return OrderAtRisk
	}
	for _, op := range w.Operations {
		if op.Status == OperationInProgress || op.IsComplete() {
			return OrderInProgress
		}
	}
	return OrderOnTrack
}

// errInvalid 构造输入校验错误
func errInvalid(msg string) error {
	return errors.New(errors.CodeInvalidInput, msg)
}
