package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/conflict"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scheduler"
)

// TestMachineDownRescheduling 设备停机场景：
// CNC-01 上午10点至14点检修停机，停机前已有一道工序在机上加工。
// 调度器必须绕开停机窗口排产，冲突检测器要对停机区间内的
// 在制工序发出严重告警。
func TestMachineDownRescheduling(t *testing.T) {
	downWindow := model.TimeRange{Start: at(0, 10), End: at(0, 14)}
	resources := []*model.Resource{
		{ID: "CNC-01", Name: "数控加工中心1号", Type: model.ResourceMachine,
			Capability: "machining", CapacityHours: 16,
			Status: model.ResourceDown, Downtime: []model.TimeRange{downWindow}},
	}

	inProgStart, inProgEnd := at(0, 9), at(0, 13)
	orders := []*model.WorkOrder{
		{
			ID: "WO-3003", Customer: "客户丙", Product: "齿轮箱壳体", Quantity: 4,
			Priority: model.PriorityHigh, DueDate: at(1, 0), PromisedDate: at(1, 0),
			Operations: []*model.Operation{
				{ID: "OP-10", Capability: "machining", Duration: 4, Sequence: 1,
					Status: model.OperationInProgress, Resource: "CNC-01",
					Start: &inProgStart, End: &inProgEnd},
			},
		},
		machiningOrder("WO-3001", model.PriorityHigh, 6, at(1, 0)),
		machiningOrder("WO-3002", model.PriorityMedium, 4, at(2, 0)),
	}
	opts := scheduler.Options{Now: at(0, 6), Compact: true}

	s := scheduler.New()
	result, err := s.Build(context.Background(), orders, calendar.NewService(resources), opts)
	if err != nil {
		t.Fatalf("排产失败: %v", err)
	}
	for _, p := range result.Schedule.Sorted() {
		t.Logf("排定: %s/%s %s - %s", p.WorkOrderID, p.OperationID,
			p.Start.Format("01-02 15:04"), p.End.Format("01-02 15:04"))
	}

	// 在制工序保持原位，计入固定数
	if result.Statistics.Fixed != 1 {
		t.Errorf("Fixed = %d, expected 1 in-progress operation pinned", result.Statistics.Fixed)
	}
	pinned, _ := result.Schedule.Get("WO-3003", "OP-10")
	if !pinned.Start.Equal(inProgStart) || !pinned.End.Equal(inProgEnd) {
		t.Errorf("In-progress operation moved to [%v, %v)", pinned.Start, pinned.End)
	}

	// 新排工序绕开停机窗口与在制占用
	p1, _ := result.Schedule.Get("WO-3001", "OP-10")
	if !p1.Start.Equal(at(0, 14)) {
		t.Errorf("WO-3001 start = %v, expected after downtime %v", p1.Start, at(0, 14))
	}
	p2, _ := result.Schedule.Get("WO-3002", "OP-10")
	if !p2.Start.Equal(at(1, 6)) {
		t.Errorf("WO-3002 start = %v, expected next shift %v", p2.Start, at(1, 6))
	}
	for _, p := range result.Schedule.Sorted() {
		if p.WorkOrderID != "WO-3003" && p.Window().Overlaps(downWindow) {
			t.Errorf("Placement %s/%s overlaps downtime window", p.WorkOrderID, p.OperationID)
		}
	}

	// 停机告警只命中停机区间内的在制工序
	detector := conflict.New(nil)
	alerts := detector.Detect(conflict.Input{
		Orders:    orders,
		Resources: resources,
		Schedule:  result.Schedule,
		Now:       at(0, 6),
	})
	var down *model.Alert
	for _, a := range alerts {
		t.Logf("告警: [%s] %s", a.Severity, a.Title)
		if a.Type == model.AlertMachineDown {
			down = a
		}
	}
	if down == nil {
		t.Fatal("Expected machine-down alert for pinned operation inside downtime")
	}
	if down.Severity != model.SeverityCritical {
		t.Errorf("Severity = %s, expected critical", down.Severity)
	}
	if len(down.WorkOrderIDs) != 1 || down.WorkOrderIDs[0] != "WO-3003" {
		t.Errorf("Impacted work orders = %v, expected [WO-3003]", down.WorkOrderIDs)
	}
}

func machiningOrder(id string, prio model.Priority, hours float64, due time.Time) *model.WorkOrder {
	return &model.WorkOrder{
		ID: id, Customer: "客户乙", Product: "焊接支架", Quantity: 8,
		Priority: prio, DueDate: due, PromisedDate: due,
		Operations: []*model.Operation{
			{ID: "OP-10", Capability: "machining", Duration: hours, Sequence: 1,
				Status: model.OperationPending},
		},
	}
}
