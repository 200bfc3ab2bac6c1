// Package scheduler 提供有限产能正排调度器
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
)

// Scheduler 有限产能正排调度器
// 相同输入产生相同计划：重排幂等是可测试性与场景对比的前提。
type Scheduler struct {
	log *logger.SchedulerLogger
}

// New 创建调度器
func New() *Scheduler {
	return &Scheduler{log: logger.NewSchedulerLogger()}
}

// Build 从零生成排产计划
func (s *Scheduler) Build(ctx context.Context, orders []*model.WorkOrder, cal *calendar.Service, opts Options) (*Result, error) {
	return s.run(ctx, orders, nil, cal, opts)
}

// Reschedule 基于既有计划重排
// 冻结期内已排定的工序视为不可变输入；相同输入下幂等。
func (s *Scheduler) Reschedule(ctx context.Context, orders []*model.WorkOrder, existing *model.Schedule, cal *calendar.Service, opts Options) (*Result, error) {
	return s.run(ctx, orders, existing, cal, opts)
}

// run 执行一轮排产
func (s *Scheduler) run(ctx context.Context, orders []*model.WorkOrder, existing *model.Schedule, cal *calendar.Service, opts Options) (*Result, error) {
	started := time.Now()
	opts = opts.normalize()

	// 输入校验：畸形输入是硬失败，中止整个请求
	for _, order := range orders {
		if err := order.Validate(); err != nil {
			return nil, err
		}
	}

	sched := model.NewSchedule(opts.FrozenUntil)
	if existing != nil {
		sched.ID = existing.ID
		sched.Version = existing.Version + 1
	}

	result := &Result{Schedule: sched}

	var totalOps int
	for _, order := range orders {
		totalOps += len(order.Operations)
	}
	s.log.StartRun(sched.ID.String(), len(orders), totalOps)

	// 第一步：登记既成事实（进行中工序、冻结期内已排定工序）
	fixed := s.pinFixed(orders, existing, cal, sched, opts)
	result.Statistics.Fixed = len(fixed)

	// 第二步：待排工序确定性排序
	pending := sortPending(orders, fixed)
	result.Statistics.TotalOperations = totalOps

	// 第三步：逐道正排放置
	for _, ref := range pending {
		if ctx.Err() != nil {
			// 取消：返回已放置部分，放置本身不可分割，绝不产生重叠
			result.Incomplete = true
			result.Message = "排产被取消，返回部分结果"
			break
		}
		s.placeOne(ref, cal, sched, opts, result)
	}

	// 第四步：左移压缩
	if opts.Compact && !result.Incomplete {
		result.Statistics.CompactionMoves = s.compact(orders, fixed, cal, sched, opts)
	}

	result.Statistics.Duration = time.Since(started)
	result.Statistics.Infeasible = len(result.Infeasible)
	s.log.RunComplete(sched.ID.String(), result.Statistics.Duration,
		result.Statistics.Placed, result.Statistics.Infeasible)
	return result, nil
}

// pinFixed 把不可变工序原样登记进计划并占用产能
func (s *Scheduler) pinFixed(orders []*model.WorkOrder, existing *model.Schedule, cal *calendar.Service, sched *model.Schedule, opts Options) map[string]bool {
	fixed := make(map[string]bool)
	for _, order := range orders {
		for _, op := range order.Operations {
			if op.IsComplete() {
				continue // 完工工序不进计划，调度器永不移动
			}
			key := model.OpKey(order.ID, op.ID)

			// 进行中：按工序自带的起止时间固定
			if op.Status == model.OperationInProgress && op.Start != nil && op.End != nil {
				p := model.Placement{
					WorkOrderID: order.ID,
					OperationID: op.ID,
					ResourceID:  op.Resource,
					Start:       *op.Start,
					End:         *op.End,
				}
				cal.ForceReserve(p.ResourceID, p.Start, p.End)
				sched.Set(p)
				fixed[key] = true
				continue
			}

			// 冻结期：既有计划中与冻结窗口相交的工序保持原位
			if existing != nil {
				if p, ok := existing.Get(order.ID, op.ID); ok && p.Start.Before(opts.FrozenUntil) {
					cal.ForceReserve(p.ResourceID, p.Start, p.End)
					sched.Set(p)
					fixed[key] = true
				}
			}
		}
	}
	return fixed
}

// sortPending 返回确定性排序后的待排工序
// 排序键：(优先级, 交期, 路线顺序号, 工单ID)
func sortPending(orders []*model.WorkOrder, fixed map[string]bool) []opRef {
	var pending []opRef
	for _, order := range orders {
		for _, op := range order.Operations {
			if op.IsComplete() || fixed[model.OpKey(order.ID, op.ID)] {
				continue
			}
			pending = append(pending, opRef{order: order, op: op})
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if r1, r2 := a.order.Priority.Rank(), b.order.Priority.Rank(); r1 != r2 {
			return r1 < r2
		}
		if !a.order.DueDate.Equal(b.order.DueDate) {
			return a.order.DueDate.Before(b.order.DueDate)
		}
		if a.order.ID == b.order.ID && a.op.Sequence != b.op.Sequence {
			return a.op.Sequence < b.op.Sequence
		}
		if a.order.ID != b.order.ID {
			return a.order.ID < b.order.ID
		}
		return a.op.Sequence < b.op.Sequence
	})
	return pending
}

// predecessorEnd 返回前道工序的结束时间
// 第二个返回值为 false 表示前道工序未能排定（级联不可行）。
func predecessorEnd(order *model.WorkOrder, op *model.Operation, sched *model.Schedule) (time.Time, bool) {
	var pred *model.Operation
	for _, o := range order.Operations {
		if o.Sequence < op.Sequence && (pred == nil || o.Sequence > pred.Sequence) {
			pred = o
		}
	}
	if pred == nil {
		return time.Time{}, true
	}
	if pred.IsComplete() {
		if pred.End != nil {
			return *pred.End, true
		}
		return time.Time{}, true
	}
	if p, ok := sched.Get(order.ID, pred.ID); ok {
		return p.End, true
	}
	return time.Time{}, false
}

// placeOne 放置一道工序；失败不中止整轮，只记录不可行报告
func (s *Scheduler) placeOne(ref opRef, cal *calendar.Service, sched *model.Schedule, opts Options, result *Result) {
	order, op := ref.order, ref.op

	predEnd, ok := predecessorEnd(order, op, sched)
	if !ok {
		s.log.PlacementFailed(order.ID, op.ID, "前道工序未排定")
		result.Infeasible = append(result.Infeasible, Infeasible{
			WorkOrderID: order.ID,
			OperationID: op.ID,
			Reason:      ReasonPredecessorStuck,
			DueDate:     order.DueDate,
		})
		return
	}

	// 最早可行开始 = max(基准时刻, 前道结束, 工单最早开工, 冻结期边界)
	earliest := opts.Now
	if predEnd.After(earliest) {
		earliest = predEnd
	}
	if order.EarliestStart != nil && order.EarliestStart.After(earliest) {
		earliest = *order.EarliestStart
	}
	if opts.FrozenUntil.After(earliest) {
		earliest = opts.FrozenUntil
	}

	candidates := s.candidateResources(ref, cal)
	if len(candidates) == 0 {
		s.log.PlacementFailed(order.ID, op.ID, "无具备能力的资源")
		result.Infeasible = append(result.Infeasible, Infeasible{
			WorkOrderID: order.ID,
			OperationID: op.ID,
			Reason:      ReasonNoCapableResource,
			DueDate:     order.DueDate,
		})
		return
	}

	// 交期保护阈值：为后续工序留足时间的最晚完工点
	latestFinish := order.DueDate.Add(-time.Duration(successorHours(order, op) * float64(time.Hour)))

	nominal := s.pickNominal(ref, candidates, opts.Rules)
	resourceID, start, found := s.chooseResource(ref, nominal, candidates, cal, earliest, latestFinish, opts)
	if !found {
		s.log.PlacementFailed(order.ID, op.ID, "视界内无可用窗口")
		result.Infeasible = append(result.Infeasible, Infeasible{
			WorkOrderID: order.ID,
			OperationID: op.ID,
			Reason:      ReasonNoWindow,
			DueDate:     order.DueDate,
		})
		return
	}
	if resourceID != nominal {
		s.log.AlternateResource(model.OpKey(order.ID, op.ID), nominal, resourceID)
		result.Statistics.AlternateUsed++
	}

	end := start.Add(time.Duration(op.Duration * float64(time.Hour)))
	if err := cal.Reserve(resourceID, start, end); err != nil {
		// NextFit 与 Reserve 之间状态未变，正常不会到这里
		s.log.PlacementFailed(order.ID, op.ID, fmt.Sprintf("预约失败: %v", err))
		result.Infeasible = append(result.Infeasible, Infeasible{
			WorkOrderID: order.ID,
			OperationID: op.ID,
			Reason:      ReasonNoWindow,
			DueDate:     order.DueDate,
		})
		return
	}

	sched.Set(model.Placement{
		WorkOrderID: order.ID,
		OperationID: op.ID,
		ResourceID:  resourceID,
		Start:       start,
		End:         end,
	})
	result.Statistics.Placed++

	// 尽力放置仍迟于交期：照常入计划，但上报缺口
	if end.After(latestFinish) {
		placedEnd := end
		result.Infeasible = append(result.Infeasible, Infeasible{
			WorkOrderID:    order.ID,
			OperationID:    op.ID,
			Reason:         ReasonLate,
			DueDate:        order.DueDate,
			PlacedEnd:      &placedEnd,
			ShortfallHours: end.Sub(latestFinish).Hours(),
		})
	}
}

// candidateResources 返回候选资源（指定资源时只有一个候选）
func (s *Scheduler) candidateResources(ref opRef, cal *calendar.Service) []*model.Resource {
	if ref.op.PinnedTo != "" {
		if r := cal.Resource(ref.op.PinnedTo); r != nil {
			return []*model.Resource{r}
		}
		return nil
	}
	return cal.ByCapability(ref.op.Capability)
}

// pickNominal 按软规则打分选默认资源；同分取ID升序
func (s *Scheduler) pickNominal(ref opRef, candidates []*model.Resource, rules []Rule) string {
	best := candidates[0].ID
	bestScore := ruleScore(rules, ref.order, ref.op, best)
	for _, r := range candidates[1:] {
		score := ruleScore(rules, ref.order, ref.op, r.ID)
		if score > bestScore {
			best, bestScore = r.ID, score
		}
	}
	return best
}

// chooseResource 选定资源与开始时间
// 默认资源能在交期保护阈值前完工即用之；否则比较全部候选，
// 取最早完工，打平取放置后负荷更低者，再打平取资源ID升序。
func (s *Scheduler) chooseResource(ref opRef, nominal string, candidates []*model.Resource, cal *calendar.Service, earliest, latestFinish time.Time, opts Options) (string, time.Time, bool) {
	dur := ref.op.Duration
	horizon := opts.horizonEnd()

	if start, ok := cal.NextFit(nominal, earliest, dur, horizon); ok {
		if !start.Add(time.Duration(dur * float64(time.Hour))).After(latestFinish) {
			return nominal, start, true
		}
	}

	type option struct {
		resourceID string
		start      time.Time
		completion time.Time
		util       float64
	}
	var best *option
	window := model.TimeRange{Start: opts.Now, End: horizon}
	for _, r := range candidates {
		start, ok := cal.NextFit(r.ID, earliest, dur, horizon)
		if !ok {
			continue
		}
		completion := start.Add(time.Duration(dur * float64(time.Hour)))
		// 放置后负荷：现有预约加上本工序
		reserved := cal.ReservedHours(r.ID, window) + dur
		free := cal.AvailableHours(r.ID, window)
		util := 1.0
		if reserved+free > 0 {
			util = reserved / (reserved + free)
		}
		cand := &option{resourceID: r.ID, start: start, completion: completion, util: util}
		if best == nil {
			best = cand
			continue
		}
		switch {
		case cand.completion.Before(best.completion):
			best = cand
		case cand.completion.Equal(best.completion) && cand.util < best.util:
			best = cand
		case cand.completion.Equal(best.completion) && cand.util == best.util && cand.resourceID < best.resourceID:
			best = cand
		}
	}
	if best == nil {
		return "", time.Time{}, false
	}
	return best.resourceID, best.start, true
}
