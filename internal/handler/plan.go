// Package handler 提供HTTP请求处理器
package handler

import (
	"sync"
	"time"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/model"
)

// PlanStore 现行计划的持有者
//
// 单写多读：排产与场景提升走写锁串行化，查询在读锁下取快照
// 后立即释放，后续计算全部发生在调用方自己的克隆上。
type PlanStore struct {
	mu sync.RWMutex

	committed *model.Schedule
	orders    []*model.WorkOrder
	cal       *calendar.Service
	alerts    []*model.Alert
	kpis      *model.KPISnapshot
	baseline  *model.Schedule // 首版计划，KPI 符合度的参照
}

// NewPlanStore 创建计划存储
func NewPlanStore(resources []*model.Resource) *PlanStore {
	return &PlanStore{
		cal: calendar.NewService(resources),
	}
}

// Snapshot 现行状态的一致快照
type Snapshot struct {
	Schedule *model.Schedule
	Orders   []*model.WorkOrder
	Calendar *calendar.Service
	Baseline *model.Schedule
}

// Snapshot 返回现行状态的深拷贝；调用方可随意改动
func (p *PlanStore) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		Orders:   cloneWorkOrders(p.orders),
		Calendar: p.cal.Clone(),
	}
	if p.committed != nil {
		snap.Schedule = p.committed.Clone()
	}
	if p.baseline != nil {
		snap.Baseline = p.baseline.Clone()
	}
	return snap
}

// Commit 提交新计划与其输入状态
func (p *PlanStore) Commit(sched *model.Schedule, orders []*model.WorkOrder, cal *calendar.Service) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.committed = sched
	p.orders = orders
	p.cal = cal
	if p.baseline == nil {
		p.baseline = sched.Clone()
	}
}

// Committed 返回现行计划的拷贝；尚未排产时返回 nil
func (p *PlanStore) Committed() *model.Schedule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.committed == nil {
		return nil
	}
	return p.committed.Clone()
}

// Orders 返回现行工单集的拷贝
func (p *PlanStore) Orders() []*model.WorkOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneWorkOrders(p.orders)
}

// SetAlerts 替换告警列表
func (p *PlanStore) SetAlerts(alerts []*model.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = alerts
}

// Alerts 返回告警列表
func (p *PlanStore) Alerts() []*model.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*model.Alert(nil), p.alerts...)
}

// MutateAlert 在写锁内对指定告警施加状态迁移，返回迁移后的拷贝
func (p *PlanStore) MutateAlert(id string, fn func(*model.Alert)) *model.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.alerts {
		if a.ID.String() == id {
			fn(a)
			c := *a
			return &c
		}
	}
	return nil
}

// SetKPIs 更新KPI快照
func (p *PlanStore) SetKPIs(snap *model.KPISnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kpis = snap
}

// KPIs 返回最近一次KPI快照
func (p *PlanStore) KPIs() *model.KPISnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.kpis
}

// cloneWorkOrders 深拷贝工单集
func cloneWorkOrders(orders []*model.WorkOrder) []*model.WorkOrder {
	out := make([]*model.WorkOrder, len(orders))
	for i, o := range orders {
		c := *o
		if o.EarliestStart != nil {
			t := *o.EarliestStart
			c.EarliestStart = &t
		}
		c.Operations = make([]*model.Operation, len(o.Operations))
		for j, op := range o.Operations {
			oc := *op
			oc.Start = cloneTime(op.Start)
			oc.End = cloneTime(op.End)
			c.Operations[j] = &oc
		}
		out[i] = &c
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
