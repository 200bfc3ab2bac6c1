// Package scenario 提供 What-if 场景引擎
//
// 场景永远在基线状态的私有克隆上计算：既不阻塞现行计划的写入，
// 也绝不让现行计划观察到中间状态。KPI 快照一经计算不可变，
// 重算必须新建场景。
package scenario

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/kpi"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scheduler"
)

// Baseline 场景评估的基线状态
type Baseline struct {
	Schedule  *model.Schedule
	Orders    []*model.WorkOrder
	Resources []*model.Resource
	Options   scheduler.Options
	KPIWindow model.TimeRange
}

// Engine 场景引擎
type Engine struct {
	sched *scheduler.Scheduler
	agg   *kpi.Aggregator
}

// NewEngine 创建场景引擎
func NewEngine() *Engine {
	return &Engine{
		sched: scheduler.New(),
		agg:   kpi.NewAggregator(),
	}
}

// Create 创建并计算场景：克隆基线 → 施加调整 → 重排 → KPI 快照
func (e *Engine) Create(ctx context.Context, name string, base Baseline, deltas []model.Delta) (*model.Scenario, error) {
	if err := validateDeltas(deltas); err != nil {
		return nil, err
	}

	sc := &model.Scenario{
		BaseModel: model.NewBaseModel(),
		Name:      name,
		Deltas:    deltas,
		Status:    model.ScenarioDraft,
	}
	if base.Schedule != nil {
		sc.BaseScheduleID = base.Schedule.ID
		sc.BaseVersion = base.Schedule.Version
	}

	orders := cloneOrders(base.Orders)
	cal := calendar.NewService(base.Resources)
	opts := base.Options

	for _, d := range deltas {
		applyDelta(d, orders, cal, opts.Now)
	}

	result, err := e.sched.Reschedule(ctx, orders, base.Schedule, cal, opts)
	if err != nil {
		return nil, err
	}

	snap := e.agg.Compute(orders, result.Schedule, base.Schedule, cal, base.KPIWindow, opts.Now)
	now := time.Now()
	sc.KPIs = snap
	sc.Schedule = result.Schedule
	sc.Status = model.ScenarioComputed
	sc.ComputedAt = &now

	logger.Info().
		Str("scenario", sc.ID.String()).
		Str("name", name).
		Int("deltas", len(deltas)).
		Float64("otif", snap.OTIF).
		Msg("场景计算完成")
	return sc, nil
}

// Spec 一个待评估场景的名称与调整集
type Spec struct {
	Name   string        `json:"name"`
	Deltas []model.Delta `json:"deltas"`
}

// CreateAll 并行评估多个场景，每个场景各自持有基线的私有克隆
func (e *Engine) CreateAll(ctx context.Context, base Baseline, specs []Spec) ([]*model.Scenario, error) {
	scenarios := make([]*model.Scenario, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			sc, err := e.Create(gctx, spec.Name, base, spec.Deltas)
			if err != nil {
				return err
			}
			scenarios[i] = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scenarios, nil
}

// Comparison 场景对基线的 KPI 差值
type Comparison struct {
	ScenarioID    string             `json:"scenario_id"`
	Name          string             `json:"name"`
	KPIs          *model.KPISnapshot `json:"kpis"`
	DeltaOTIF     float64            `json:"delta_otif"`
	DeltaUtil     float64            `json:"delta_utilization"`
	DeltaTardy    int                `json:"delta_tardiness"`
	DeltaMakespan float64            `json:"delta_makespan_hours"`
}

// Compare 对比已计算场景与基线 KPI
// 纯函数，只读取存量快照，不触发任何重排。
func Compare(baseline *model.KPISnapshot, scenarios []*model.Scenario) ([]Comparison, error) {
	out := make([]Comparison, 0, len(scenarios))
	for _, sc := range scenarios {
		if !sc.IsComputed() || sc.KPIs == nil {
			return nil, errors.Newf(errors.CodeInvalidInput, "场景 %s 尚未计算", sc.ID)
		}
		out = append(out, Comparison{
			ScenarioID:    sc.ID.String(),
			Name:          sc.Name,
			KPIs:          sc.KPIs,
			DeltaOTIF:     sc.KPIs.OTIF - baseline.OTIF,
			DeltaUtil:     sc.KPIs.Utilization - baseline.Utilization,
			DeltaTardy:    sc.KPIs.Tardiness - baseline.Tardiness,
			DeltaMakespan: sc.KPIs.MakespanHours - baseline.MakespanHours,
		})
	}
	return out, nil
}

// validateDeltas 校验调整集
func validateDeltas(deltas []model.Delta) error {
	if len(deltas) == 0 {
		return errors.New(errors.CodeInvalidInput, "场景至少需要一条调整")
	}
	for _, d := range deltas {
		switch d.Type {
		case model.DeltaAddOvertime:
			if d.ResourceID == "" || d.Hours <= 0 {
				return errors.New(errors.CodeInvalidInput, "加班调整需要资源ID和正的小时数")
			}
		case model.DeltaDeferWorkOrder:
			if d.WorkOrderID == "" || d.DeferDays <= 0 {
				return errors.New(errors.CodeInvalidInput, "推迟调整需要工单ID和正的天数")
			}
		case model.DeltaReprioritize:
			if d.WorkOrderID == "" || !d.NewPriority.Valid() {
				return errors.New(errors.CodeInvalidInput, "改优先级调整需要工单ID和合法优先级")
			}
		default:
			return errors.Newf(errors.CodeInvalidInput, "未知的调整类型: %s", d.Type)
		}
	}
	return nil
}

// applyDelta 把一条调整施加到克隆状态上
func applyDelta(d model.Delta, orders []*model.WorkOrder, cal *calendar.Service, now time.Time) {
	switch d.Type {
	case model.DeltaAddOvertime:
		// 加班扩展日历窗口
		if len(d.Days) == 0 {
			cal.AddOvertime(d.ResourceID, now, d.Hours)
			return
		}
		for _, ds := range d.Days {
			if day, err := time.ParseInLocation("2006-01-02", ds, now.Location()); err == nil {
				cal.AddOvertime(d.ResourceID, day, d.Hours)
			}
		}
	case model.DeltaDeferWorkOrder:
		// 推迟即平移最早开工约束
		for _, o := range orders {
			if o.ID == d.WorkOrderID {
				base := now
				if o.EarliestStart != nil && o.EarliestStart.After(base) {
					base = *o.EarliestStart
				}
				es := base.AddDate(0, 0, d.DeferDays)
				o.EarliestStart = &es
			}
		}
	case model.DeltaReprioritize:
		// 改优先级即改调度排序键
		for _, o := range orders {
			if o.ID == d.WorkOrderID {
				o.Priority = d.NewPriority
			}
		}
	}
}

// cloneOrders 深拷贝工单集
func cloneOrders(orders []*model.WorkOrder) []*model.WorkOrder {
	out := make([]*model.WorkOrder, 0, len(orders))
	for _, o := range orders {
		c := *o
		if o.EarliestStart != nil {
			es := *o.EarliestStart
			c.EarliestStart = &es
		}
		c.Operations = make([]*model.Operation, len(o.Operations))
		for i, op := range o.Operations {
			oc := *op
			c.Operations[i] = &oc
		}
		out = append(out, &c)
	}
	return out
}
