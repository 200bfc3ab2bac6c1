package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/kpi"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scheduler"
	whatif "github.com/flowiq/flowiq/pkg/scenario"
)

// TestOvertimeVersusDefer 产能不足的两种处置对比：
// 检验台单班8小时排不下两张6小时工单，第二张必然拖期。
// 场景A给当天加4小时班，场景B把拖期工单推迟两天，
// 对比KPI后加班方案应消除拖期。
func TestOvertimeVersusDefer(t *testing.T) {
	resources := []*model.Resource{
		{ID: "INSP-01", Name: "检验台", Type: model.ResourceStation,
			Capability: "inspection", CapacityHours: 8, Status: model.ResourceRunning},
	}
	orders := []*model.WorkOrder{
		inspectionOrder("WO-4001", 6, at(0, 16)),
		inspectionOrder("WO-4002", 6, at(1, 0)),
	}
	opts := scheduler.Options{Now: at(0, 0), Compact: true}
	window := model.TimeRange{Start: at(0, 0), End: at(7, 0)}

	s := scheduler.New()
	base, err := s.Build(context.Background(), orders, calendar.NewService(resources), opts)
	if err != nil {
		t.Fatalf("基线排产失败: %v", err)
	}

	// 基线：第二张工单被挤到次日，拖期
	p2, _ := base.Schedule.Get("WO-4002", "OP-10")
	if !p2.Start.Equal(at(1, 8)) {
		t.Fatalf("Baseline WO-4002 start = %v, expected %v", p2.Start, at(1, 8))
	}
	if len(base.Infeasible) != 1 || base.Infeasible[0].Reason != scheduler.ReasonLate {
		t.Fatalf("Expected one late placement in baseline, got %+v", base.Infeasible)
	}
	t.Logf("基线缺口: %s 超交期 %.1f 小时",
		base.Infeasible[0].WorkOrderID, base.Infeasible[0].ShortfallHours)

	engine := whatif.NewEngine()
	baseline := whatif.Baseline{
		Schedule:  base.Schedule,
		Orders:    orders,
		Resources: resources,
		Options:   opts,
		KPIWindow: window,
	}

	scenarios, err := engine.CreateAll(context.Background(), baseline, []whatif.Spec{
		{Name: "检验台加班4小时", Deltas: []model.Delta{
			{Type: model.DeltaAddOvertime, ResourceID: "INSP-01", Hours: 4, Days: []string{"2026-09-07"}},
		}},
		{Name: "推迟两天交付", Deltas: []model.Delta{
			{Type: model.DeltaDeferWorkOrder, WorkOrderID: "WO-4002", DeferDays: 2},
		}},
	})
	if err != nil {
		t.Fatalf("场景计算失败: %v", err)
	}
	overtime, deferred := scenarios[0], scenarios[1]

	// 加班后第二张工单当天完工，踩线交付
	op2, _ := overtime.Schedule.Get("WO-4002", "OP-10")
	if !op2.Start.Equal(at(0, 14)) || !op2.End.Equal(at(0, 20)) {
		t.Errorf("Overtime placement = [%v, %v), expected [%v, %v)",
			op2.Start, op2.End, at(0, 14), at(0, 20))
	}
	if overtime.KPIs.OTIF != 100 {
		t.Errorf("Overtime scenario OTIF = %.0f, expected 100", overtime.KPIs.OTIF)
	}

	// 推迟只是把交付缺口搬到后天
	dp2, _ := deferred.Schedule.Get("WO-4002", "OP-10")
	if !dp2.Start.Equal(at(2, 8)) {
		t.Errorf("Deferred placement start = %v, expected %v", dp2.Start, at(2, 8))
	}
	if deferred.KPIs.OTIF != 50 {
		t.Errorf("Defer scenario OTIF = %.0f, expected 50", deferred.KPIs.OTIF)
	}

	baseKPIs := kpi.NewAggregator().Compute(orders, base.Schedule, nil,
		calendar.NewService(resources), window, opts.Now)
	comparisons, err := whatif.Compare(baseKPIs, scenarios)
	if err != nil {
		t.Fatalf("场景对比失败: %v", err)
	}
	for _, c := range comparisons {
		t.Logf("对比 %s: ΔOTIF=%+.0f Δ负荷=%+.2f", c.Name, c.DeltaOTIF, c.DeltaUtil)
	}
	if comparisons[0].DeltaOTIF != 50 {
		t.Errorf("Overtime DeltaOTIF = %.0f, expected +50", comparisons[0].DeltaOTIF)
	}
	if comparisons[1].DeltaOTIF != 0 {
		t.Errorf("Defer DeltaOTIF = %.0f, expected 0", comparisons[1].DeltaOTIF)
	}
}

func inspectionOrder(id string, hours float64, due time.Time) *model.WorkOrder {
	return &model.WorkOrder{
		ID: id, Customer: "客户丁", Product: "法兰盘总成", Quantity: 5,
		Priority: model.PriorityMedium, DueDate: due, PromisedDate: due,
		Operations: []*model.Operation{
			{ID: "OP-10", Name: "终检", Capability: "inspection",
				Duration: hours, Sequence: 1, Status: model.OperationPending},
		},
	}
}
