// Package model 定义排产引擎的核心数据模型
package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// OpKey 构造工序在计划中的唯一键
func OpKey(workOrderID, operationID string) string {
	return workOrderID + "/" + operationID
}

// Placement 工序放置结果：资源 + 起止时间
type Placement struct {
	WorkOrderID string    `json:"work_order_id"`
	OperationID string    `json:"operation_id"`
	ResourceID  string    `json:"resource_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Key 返回放置记录的工序键
func (p Placement) Key() string {
	return OpKey(p.WorkOrderID, p.OperationID)
}

// Window 返回放置的时间窗口
func (p Placement) Window() TimeRange {
	return TimeRange{Start: p.Start, End: p.End}
}

// Schedule 排产计划：未完工工序到（资源, 开始, 结束）的映射
// 附带冻结期边界；冻结期内已排定的工序不允许自动重排。
type Schedule struct {
	ID          uuid.UUID            `json:"id"`
	Version     int                  `json:"version"`
	GeneratedAt time.Time            `json:"generated_at"`
	FrozenUntil time.Time            `json:"frozen_until"`
	Placements  map[string]Placement `json:"placements"`
}

// NewSchedule 创建空排产计划
func NewSchedule(frozenUntil time.Time) *Schedule {
	return &Schedule{
		ID:          uuid.New(),
		Version:     1,
		GeneratedAt: time.Now(),
		FrozenUntil: frozenUntil,
		Placements:  make(map[string]Placement),
	}
}

// Clone 深拷贝排产计划（用于 CTP 模拟与场景评估，绝不共享内部状态）
func (s *Schedule) Clone() *Schedule {
	clone := &Schedule{
		ID:          s.ID,
		Version:     s.Version,
		GeneratedAt: s.GeneratedAt,
		FrozenUntil: s.FrozenUntil,
		Placements:  make(map[string]Placement, len(s.Placements)),
	}
	for k, p := range s.Placements {
		clone.Placements[k] = p
	}
	return clone
}

// Get 查找工序的放置记录
func (s *Schedule) Get(workOrderID, operationID string) (Placement, bool) {
	p, ok := s.Placements[OpKey(workOrderID, operationID)]
	return p, ok
}

// Set 记录工序放置
func (s *Schedule) Set(p Placement) {
	s.Placements[p.Key()] = p
}

// Remove 移除工序放置
func (s *Schedule) Remove(workOrderID, operationID string) {
	delete(s.Placements, OpKey(workOrderID, operationID))
}

// RemoveWorkOrder 移除工单的全部工序放置（工单取消时调用）
func (s *Schedule) RemoveWorkOrder(workOrderID string) {
	for k, p := range s.Placements {
		if p.WorkOrderID == workOrderID {
			delete(s.Placements, k)
		}
	}
}

// ByResource 返回按资源分组的放置记录，组内按开始时间升序
func (s *Schedule) ByResource() map[string][]Placement {
	out := make(map[string][]Placement)
	for _, p := range s.Placements {
		out[p.ResourceID] = append(out[p.ResourceID], p)
	}
	for id := range out {
		ps := out[id]
		sort.Slice(ps, func(i, j int) bool {
			if !ps[i].Start.Equal(ps[j].Start) {
				return ps[i].Start.Before(ps[j].Start)
			}
			return ps[i].Key() < ps[j].Key()
		})
		out[id] = ps
	}
	return out
}

// Sorted 返回全部放置记录，按（开始时间, 工序键）稳定排序
func (s *Schedule) Sorted() []Placement {
	out := make([]Placement, 0, len(s.Placements))
	for _, p := range s.Placements {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// WorkOrderEnd 返回工单在计划中的最晚结束时间，未排产时返回零值
func (s *Schedule) WorkOrderEnd(workOrderID string) time.Time {
	var end time.Time
	for _, p := range s.Placements {
		if p.WorkOrderID == workOrderID && p.End.After(end) {
			end = p.End
		}
	}
	return end
}

// InFrozenZone 检查时间窗口是否与冻结期相交
func (s *Schedule) InFrozenZone(window TimeRange) bool {
	return window.Start.Before(s.FrozenUntil)
}

// Makespan 返回计划的总跨度窗口（首道开始到末道结束），空计划返回零值
func (s *Schedule) Makespan() TimeRange {
	var tr TimeRange
	first := true
	for _, p := range s.Placements {
		if first {
			tr = TimeRange{Start: p.Start, End: p.End}
			first = false
			continue
		}
		if p.Start.Before(tr.Start) {
			tr.Start = p.Start
		}
		if p.End.After(tr.End) {
			tr.End = p.End
		}
	}
	return tr
}
