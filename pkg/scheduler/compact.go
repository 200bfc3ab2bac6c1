// Package scheduler 提供有限产能正排调度器
package scheduler

import (
	"time"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/model"
)

// compact 确定性左移压缩：按（开始时间, 工序键）顺序扫描，
// 把每道非固定工序在同一资源上拉到仍然可行的最早开始点。
// 无随机性；前道先于后道被拉动，后道因此能级联前移。
func (s *Scheduler) compact(orders []*model.WorkOrder, fixed map[string]bool, cal *calendar.Service, sched *model.Schedule, opts Options) int {
	refs := make(map[string]opRef)
	for _, order := range orders {
		for _, op := range order.Operations {
			refs[model.OpKey(order.ID, op.ID)] = opRef{order: order, op: op}
		}
	}

	moves := 0
	for _, p := range sched.Sorted() {
		key := p.Key()
		if fixed[key] {
			continue
		}
		ref, ok := refs[key]
		if !ok {
			continue
		}

		earliest := opts.Now
		if predEnd, pok := predecessorEnd(ref.order, ref.op, sched); pok && predEnd.After(earliest) {
			earliest = predEnd
		}
		if ref.order.EarliestStart != nil && ref.order.EarliestStart.After(earliest) {
			earliest = *ref.order.EarliestStart
		}
		if opts.FrozenUntil.After(earliest) {
			earliest = opts.FrozenUntil
		}
		if !earliest.Before(p.Start) {
			continue
		}

		cal.Release(p.ResourceID, p.Start, p.End)
		dur := ref.op.Duration
		newStart, found := cal.NextFit(p.ResourceID, earliest, dur, p.End)
		if found && newStart.Before(p.Start) {
			newEnd := newStart.Add(time.Duration(dur * float64(time.Hour)))
			if err := cal.Reserve(p.ResourceID, newStart, newEnd); err == nil {
				sched.Set(model.Placement{
					WorkOrderID: p.WorkOrderID,
					OperationID: p.OperationID,
					ResourceID:  p.ResourceID,
					Start:       newStart,
					End:         newEnd,
				})
				moves++
				continue
			}
		}
		// 无法前移：原位放回
		if err := cal.Reserve(p.ResourceID, p.Start, p.End); err != nil {
			cal.ForceReserve(p.ResourceID, p.Start, p.End)
		}
	}
	return moves
}
