package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scheduler"
)

var day0 = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func at(dayOffset, hour int) time.Time {
	return day0.AddDate(0, 0, dayOffset).Add(time.Duration(hour) * time.Hour)
}

func testBaseline() Baseline {
	resources := []*model.Resource{
		{ID: "CNC-01", Name: "数控加工中心1号", Capability: "machining", CapacityHours: 16, Status: model.ResourceRunning},
		{ID: "INSP-01", Name: "检验台", Capability: "inspection", CapacityHours: 8, Status: model.ResourceRunning},
	}
	orders := []*model.WorkOrder{
		{
			ID: "WO-1001", Customer: "客户甲", Product: "法兰盘", Quantity: 10,
			Priority: model.PriorityHigh, DueDate: at(2, 0), PromisedDate: at(2, 0),
			Operations: []*model.Operation{
				{ID: "OP-10", Capability: "machining", Duration: 6, Sequence: 1, Status: model.OperationPending},
			},
		},
		{
			ID: "WO-1002", Customer: "客户乙", Product: "支架", Quantity: 5,
			Priority: model.PriorityLow, DueDate: at(4, 0), PromisedDate: at(4, 0),
			Operations: []*model.Operation{
				{ID: "OP-10", Capability: "machining", Duration: 4, Sequence: 1, Status: model.OperationPending},
			},
		},
	}
	return Baseline{
		Orders:    orders,
		Resources: resources,
		Options:   scheduler.Options{Now: at(0, 0), Compact: true},
		KPIWindow: model.TimeRange{Start: at(0, 0), End: at(7, 0)},
	}
}

func TestEngine_Create_Reprioritize(t *testing.T) {
	e := NewEngine()
	base := testBaseline()

	sc, err := e.Create(context.Background(), "插单提级", base, []model.Delta{
		{Type: model.DeltaReprioritize, WorkOrderID: "WO-1002", NewPriority: model.PriorityCritical},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sc.Status != model.ScenarioComputed {
		t.Errorf("Status = %s, expected computed", sc.Status)
	}
	if sc.KPIs == nil || sc.Schedule == nil || sc.ComputedAt == nil {
		t.Fatal("Computed scenario must carry KPIs, schedule and timestamp")
	}

	// 提级后 WO-1002 应先上机
	p2, _ := sc.Schedule.Get("WO-1002", "OP-10")
	if !p2.Start.Equal(at(0, 6)) {
		t.Errorf("WO-1002 start = %v, expected %v after reprioritize", p2.Start, at(0, 6))
	}
	p1, _ := sc.Schedule.Get("WO-1001", "OP-10")
	if !p1.Start.Equal(at(0, 10)) {
		t.Errorf("WO-1001 start = %v, expected %v", p1.Start, at(0, 10))
	}
	// 基线工单不得被改动
	if base.Orders[1].Priority != model.PriorityLow {
		t.Errorf("Baseline order priority mutated to %s", base.Orders[1].Priority)
	}
}

func TestEngine_Create_Defer(t *testing.T) {
	e := NewEngine()
	base := testBaseline()

	sc, err := e.Create(context.Background(), "推迟低优先级", base, []model.Delta{
		{Type: model.DeltaDeferWorkOrder, WorkOrderID: "WO-1002", DeferDays: 2},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	p, _ := sc.Schedule.Get("WO-1002", "OP-10")
	// 推迟 2 天后最早 day2 06:00 开工
	if !p.Start.Equal(at(2, 6)) {
		t.Errorf("Deferred start = %v, expected %v", p.Start, at(2, 6))
	}
	if base.Orders[1].EarliestStart != nil {
		t.Error("Defer must not leak into baseline orders")
	}
}

func TestEngine_Create_AddOvertime(t *testing.T) {
	e := NewEngine()
	base := testBaseline()
	// 大工序塞不进 8 小时检验班次，加班后可行
	base.Orders = []*model.WorkOrder{
		{
			ID: "WO-2001", Customer: "客户甲", Product: "箱体", Quantity: 1,
			Priority: model.PriorityHigh, DueDate: at(2, 0), PromisedDate: at(2, 0),
			Operations: []*model.Operation{
				{ID: "OP-10", Capability: "inspection", Duration: 10, Sequence: 1, Status: model.OperationPending},
			},
		},
	}

	sc, err := e.Create(context.Background(), "检验加班", base, []model.Delta{
		{Type: model.DeltaAddOvertime, ResourceID: "INSP-01", Hours: 4, Days: []string{"2026-09-07"}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	p, ok := sc.Schedule.Get("WO-2001", "OP-10")
	if !ok {
		t.Fatal("Operation should be placed with overtime window")
	}
	// 08:00 开工 + 10 小时 = 18:00（标称 16:00 收工 + 4 小时加班）
	if !p.Start.Equal(at(0, 8)) || !p.End.Equal(at(0, 18)) {
		t.Errorf("Placement = [%v, %v), expected [%v, %v)", p.Start, p.End, at(0, 8), at(0, 18))
	}
}

func TestEngine_Create_InvalidDeltas(t *testing.T) {
	e := NewEngine()
	base := testBaseline()

	tests := []struct {
		name   string
		deltas []model.Delta
	}{
		{name: "空调整集", deltas: nil},
		{name: "加班缺资源", deltas: []model.Delta{{Type: model.DeltaAddOvertime, Hours: 4}}},
		{name: "推迟负天数", deltas: []model.Delta{{Type: model.DeltaDeferWorkOrder, WorkOrderID: "WO-1001", DeferDays: 0}}},
		{name: "非法优先级", deltas: []model.Delta{{Type: model.DeltaReprioritize, WorkOrderID: "WO-1001", NewPriority: "urgent"}}},
		{name: "未知类型", deltas: []model.Delta{{Type: "swap"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Create(context.Background(), tt.name, base, tt.deltas)
			if !errors.IsCode(err, errors.CodeInvalidInput) {
				t.Errorf("Expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestEngine_CreateAll_Parallel(t *testing.T) {
	e := NewEngine()
	base := testBaseline()
	specs := []Spec{
		{Name: "场景A", Deltas: []model.Delta{
			{Type: model.DeltaReprioritize, WorkOrderID: "WO-1002", NewPriority: model.PriorityCritical},
		}},
		{Name: "场景B", Deltas: []model.Delta{
			{Type: model.DeltaDeferWorkOrder, WorkOrderID: "WO-1002", DeferDays: 1},
		}},
		{Name: "场景C", Deltas: []model.Delta{
			{Type: model.DeltaAddOvertime, ResourceID: "CNC-01", Hours: 2, Days: []string{"2026-09-07"}},
		}},
	}

	scenarios, err := e.CreateAll(context.Background(), base, specs)
	if err != nil {
		t.Fatalf("CreateAll failed: %v", err)
	}
	if len(scenarios) != 3 {
		t.Fatalf("Expected 3 scenarios, got %d", len(scenarios))
	}
	// 结果与提交顺序对位
	for i, sc := range scenarios {
		if sc == nil {
			t.Fatalf("Scenario %d missing", i)
		}
		if sc.Name != specs[i].Name {
			t.Errorf("Scenario %d name = %s, expected %s", i, sc.Name, specs[i].Name)
		}
		if !sc.IsComputed() {
			t.Errorf("Scenario %s not computed", sc.Name)
		}
	}

	// 并行评估不得污染基线：单独重算场景A必须得到相同计划
	again, err := e.Create(context.Background(), "场景A", base, specs[0].Deltas)
	if err != nil {
		t.Fatalf("Re-create failed: %v", err)
	}
	if diff := cmp.Diff(scenarios[0].Schedule.Sorted(), again.Schedule.Sorted()); diff != "" {
		t.Errorf("Parallel evaluation not reproducible:\n%s", diff)
	}
}

func TestCompare(t *testing.T) {
	baseKPI := &model.KPISnapshot{OTIF: 80, Utilization: 60, Tardiness: 2, MakespanHours: 48}
	computed := at(0, 0)
	scenarios := []*model.Scenario{
		{
			BaseModel: model.NewBaseModel(),
			Name:      "加班方案",
			Status:    model.ScenarioComputed,
			ComputedAt: &computed,
			KPIs:      &model.KPISnapshot{OTIF: 95, Utilization: 72, Tardiness: 0, MakespanHours: 40},
		},
	}

	out, err := Compare(baseKPI, scenarios)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected 1 comparison, got %d", len(out))
	}
	c := out[0]
	if c.DeltaOTIF != 15 || c.DeltaUtil != 12 || c.DeltaTardy != -2 || c.DeltaMakespan != -8 {
		t.Errorf("Unexpected deltas: %+v", c)
	}
}

func TestCompare_RejectsUncomputed(t *testing.T) {
	draft := &model.Scenario{BaseModel: model.NewBaseModel(), Name: "草稿", Status: model.ScenarioDraft}
	_, err := Compare(&model.KPISnapshot{}, []*model.Scenario{draft})
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Errorf("Expected INVALID_INPUT for uncomputed scenario, got %v", err)
	}
}
