// Package kpi 提供排产绩效指标聚合
// 全部为纯函数：对给定（工单集, 计划, 时间窗）可随时重算，
// 不维护任何可能漂移的增量计数器。
package kpi

import (
	"time"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/model"
)

// Aggregator KPI 聚合器
type Aggregator struct {
	adherenceToleranceHours float64 // 计划执行率的开工时间容差
}

// NewAggregator 创建聚合器
func NewAggregator() *Aggregator {
	return &Aggregator{adherenceToleranceHours: 2.0}
}

// Compute 计算 KPI 快照
// baseline 为最初承诺的计划（计划执行率对比基准），可为 nil。
func (a *Aggregator) Compute(orders []*model.WorkOrder, sched *model.Schedule, baseline *model.Schedule, cal *calendar.Service, window model.TimeRange, now time.Time) *model.KPISnapshot {
	snap := &model.KPISnapshot{}
	if len(orders) == 0 {
		return snap
	}

	snap.OTIF = a.otif(orders, sched)
	snap.Adherence = a.adherence(orders, baseline)
	snap.Throughput = a.throughput(orders, window)
	snap.WIP = a.wip(orders, sched, now)
	snap.Utilization = a.utilization(cal, window)
	snap.Tardiness = a.tardiness(orders, sched, now)
	snap.MakespanHours = sched.Makespan().Hours()
	snap.AvgLeadTime = a.avgLeadTime(orders, sched)
	return snap
}

// completionTime 返回工单的实际或预计完成时间
func completionTime(order *model.WorkOrder, sched *model.Schedule) time.Time {
	if order.IsComplete() {
		var end time.Time
		for _, op := range order.Operations {
			if op.End != nil && op.End.After(end) {
				end = *op.End
			}
		}
		return end
	}
	return sched.WorkOrderEnd(order.ID)
}

// otif 准时足量交付率：完成时间不晚于承诺日期的工单占比
func (a *Aggregator) otif(orders []*model.WorkOrder, sched *model.Schedule) float64 {
	onTime := 0
	counted := 0
	for _, order := range orders {
		end := completionTime(order, sched)
		if end.IsZero() {
			continue
		}
		counted++
		if !end.After(order.PromisedDate) {
			onTime++
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(onTime) / float64(counted) * 100
}

// adherence 计划执行率：实际开工落在基准计划容差带内的工序占比
func (a *Aggregator) adherence(orders []*model.WorkOrder, baseline *model.Schedule) float64 {
	if baseline == nil {
		return 100
	}
	tolerance := time.Duration(a.adherenceToleranceHours * float64(time.Hour))
	within := 0
	counted := 0
	for _, order := range orders {
		for _, op := range order.Operations {
			// 只统计已实际开工的工序
			if op.Start == nil || op.Status == model.OperationPending {
				continue
			}
			p, ok := baseline.Get(order.ID, op.ID)
			if !ok {
				continue
			}
			counted++
			diff := op.Start.Sub(p.Start)
			if diff < 0 {
				diff = -diff
			}
			if diff <= tolerance {
				within++
			}
		}
	}
	if counted == 0 {
		return 100
	}
	return float64(within) / float64(counted) * 100
}

// throughput 周产出：时间窗内完工的工单数折算到每周
func (a *Aggregator) throughput(orders []*model.WorkOrder, window model.TimeRange) float64 {
	if window.Duration() <= 0 {
		return 0
	}
	completed := 0
	for _, order := range orders {
		if !order.IsComplete() {
			continue
		}
		var end time.Time
		for _, op := range order.Operations {
			if op.End != nil && op.End.After(end) {
				end = *op.End
			}
		}
		if window.Contains(end) {
			completed++
		}
	}
	weeks := window.Duration().Hours() / (7 * 24)
	if weeks <= 0 {
		return 0
	}
	return float64(completed) / weeks
}

// wip 在制工单数：状态为进行中/有风险/拖期的工单
func (a *Aggregator) wip(orders []*model.WorkOrder, sched *model.Schedule, now time.Time) int {
	count := 0
	for _, order := range orders {
		switch order.DerivedStatus(now, sched.WorkOrderEnd(order.ID)) {
		case model.OrderInProgress, model.OrderAtRisk, model.OrderLate:
			count++
		}
	}
	return count
}

// utilization 平均资源负荷率（已排小时 ÷ 可用小时，按资源平均）
func (a *Aggregator) utilization(cal *calendar.Service, window model.TimeRange) float64 {
	var total float64
	counted := 0
	for _, r := range cal.Resources() {
		reserved := cal.ReservedHours(r.ID, window)
		free := cal.AvailableHours(r.ID, window)
		if reserved+free <= 0 {
			continue
		}
		counted++
		total += reserved / (reserved + free)
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted) * 100
}

// tardiness 拖期工单数
func (a *Aggregator) tardiness(orders []*model.WorkOrder, sched *model.Schedule, now time.Time) int {
	count := 0
	for _, order := range orders {
		if order.DerivedStatus(now, sched.WorkOrderEnd(order.ID)) == model.OrderLate {
			count++
		}
	}
	return count
}

// avgLeadTime 平均制造周期（天）：首道开工到末道完工
func (a *Aggregator) avgLeadTime(orders []*model.WorkOrder, sched *model.Schedule) float64 {
	var totalDays float64
	counted := 0
	for _, order := range orders {
		end := completionTime(order, sched)
		if end.IsZero() {
			continue
		}
		var start time.Time
		for _, op := range order.Operations {
			if op.Start != nil && (start.IsZero() || op.Start.Before(start)) {
				start = *op.Start
			}
			if p, ok := sched.Get(order.ID, op.ID); ok {
				if start.IsZero() || p.Start.Before(start) {
					start = p.Start
				}
			}
		}
		if start.IsZero() {
			continue
		}
		counted++
		totalDays += end.Sub(start).Hours() / 24
	}
	if counted == 0 {
		return 0
	}
	return totalDays / float64(counted)
}
