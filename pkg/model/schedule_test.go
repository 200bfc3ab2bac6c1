package model

import (
	"testing"
	"time"
)

func TestSchedule_Clone(t *testing.T) {
	s := NewSchedule(at(1, 0))
	s.Set(Placement{WorkOrderID: "WO-1001", OperationID: "OP-10", ResourceID: "CNC-01", Start: at(0, 6), End: at(0, 10)})

	c := s.Clone()
	c.Set(Placement{WorkOrderID: "WO-1002", OperationID: "OP-10", ResourceID: "CNC-01", Start: at(0, 10), End: at(0, 14)})
	c.Remove("WO-1001", "OP-10")

	if len(s.Placements) != 1 {
		t.Errorf("Original has %d placements after clone mutation, expected 1", len(s.Placements))
	}
	if _, ok := s.Get("WO-1001", "OP-10"); !ok {
		t.Error("Original placement lost")
	}
	if c.ID != s.ID || c.Version != s.Version {
		t.Error("Clone should keep identity and version")
	}
}

func TestSchedule_Sorted(t *testing.T) {
	s := NewSchedule(time.Time{})
	s.Set(Placement{WorkOrderID: "WO-B", OperationID: "OP-10", ResourceID: "CNC-01", Start: at(0, 10), End: at(0, 12)})
	s.Set(Placement{WorkOrderID: "WO-A", OperationID: "OP-10", ResourceID: "CNC-02", Start: at(0, 6), End: at(0, 10)})
	// 同一开始时间按工序键排序
	s.Set(Placement{WorkOrderID: "WO-C", OperationID: "OP-10", ResourceID: "CNC-03", Start: at(0, 6), End: at(0, 8)})

	sorted := s.Sorted()
	keys := []string{sorted[0].Key(), sorted[1].Key(), sorted[2].Key()}
	want := []string{"WO-A/OP-10", "WO-C/OP-10", "WO-B/OP-10"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Sorted[%d] = %s, expected %s", i, keys[i], want[i])
		}
	}
}

func TestSchedule_RemoveWorkOrder(t *testing.T) {
	s := NewSchedule(time.Time{})
	s.Set(Placement{WorkOrderID: "WO-1001", OperationID: "OP-10", ResourceID: "CNC-01", Start: at(0, 6), End: at(0, 10)})
	s.Set(Placement{WorkOrderID: "WO-1001", OperationID: "OP-20", ResourceID: "INSP-01", Start: at(0, 10), End: at(0, 12)})
	s.Set(Placement{WorkOrderID: "WO-1002", OperationID: "OP-10", ResourceID: "CNC-01", Start: at(0, 10), End: at(0, 14)})

	s.RemoveWorkOrder("WO-1001")
	if len(s.Placements) != 1 {
		t.Errorf("Expected 1 placement after removal, got %d", len(s.Placements))
	}
	if _, ok := s.Get("WO-1002", "OP-10"); !ok {
		t.Error("Unrelated placement removed")
	}
}

func TestSchedule_WorkOrderEndAndMakespan(t *testing.T) {
	s := NewSchedule(time.Time{})
	if !s.WorkOrderEnd("WO-1001").IsZero() {
		t.Error("Empty schedule should yield zero end")
	}
	if !s.Makespan().IsZero() {
		t.Error("Empty schedule should yield zero makespan")
	}

	s.Set(Placement{WorkOrderID: "WO-1001", OperationID: "OP-10", ResourceID: "CNC-01", Start: at(0, 6), End: at(0, 10)})
	s.Set(Placement{WorkOrderID: "WO-1001", OperationID: "OP-20", ResourceID: "INSP-01", Start: at(0, 10), End: at(0, 12)})

	if got := s.WorkOrderEnd("WO-1001"); !got.Equal(at(0, 12)) {
		t.Errorf("WorkOrderEnd = %v, expected %v", got, at(0, 12))
	}
	ms := s.Makespan()
	if !ms.Start.Equal(at(0, 6)) || !ms.End.Equal(at(0, 12)) {
		t.Errorf("Makespan = [%v, %v), expected [%v, %v)", ms.Start, ms.End, at(0, 6), at(0, 12))
	}
	if ms.Hours() != 6 {
		t.Errorf("Makespan hours = %v, expected 6", ms.Hours())
	}
}

func TestSchedule_InFrozenZone(t *testing.T) {
	s := NewSchedule(at(1, 0))
	if !s.InFrozenZone(TimeRange{Start: at(0, 6), End: at(0, 10)}) {
		t.Error("Window before frozen boundary should be in frozen zone")
	}
	if s.InFrozenZone(TimeRange{Start: at(1, 6), End: at(1, 10)}) {
		t.Error("Window after frozen boundary should not be in frozen zone")
	}
}

func TestTimeRange_Semantics(t *testing.T) {
	a := TimeRange{Start: at(0, 6), End: at(0, 10)}
	b := TimeRange{Start: at(0, 10), End: at(0, 12)}
	// [Start, End) 区间：首尾相接不算重叠
	if a.Overlaps(b) {
		t.Error("Adjacent ranges must not overlap")
	}
	c := TimeRange{Start: at(0, 8), End: at(0, 11)}
	if !a.Overlaps(c) {
		t.Error("Ranges should overlap")
	}
	ov := a.Overlap(c)
	if !ov.Start.Equal(at(0, 8)) || !ov.End.Equal(at(0, 10)) {
		t.Errorf("Overlap = [%v, %v), expected [%v, %v)", ov.Start, ov.End, at(0, 8), at(0, 10))
	}
	if !a.Contains(at(0, 6)) || a.Contains(at(0, 10)) {
		t.Error("Contains should include start, exclude end")
	}
	if !a.ContainsRange(TimeRange{Start: at(0, 7), End: at(0, 9)}) {
		t.Error("ContainsRange failed for inner range")
	}
}

func TestAlert_Transitions(t *testing.T) {
	a := &Alert{BaseModel: NewBaseModel(), Key: "late-order:WO-1001", Type: AlertLateOrder, Status: AlertOpen}

	ackAt := at(0, 1)
	a.Acknowledge(ackAt)
	if a.Status != AlertAcknowledged || a.AckedAt == nil {
		t.Errorf("Status = %s, expected acknowledged", a.Status)
	}
	// 重复确认无效果
	a.Acknowledge(at(0, 2))
	if !a.AckedAt.Equal(ackAt) {
		t.Error("Second acknowledge should not overwrite timestamp")
	}

	resolveAt := at(0, 3)
	a.Resolve(resolveAt)
	if a.Status != AlertResolved || a.ResolvedAt == nil {
		t.Errorf("Status = %s, expected resolved", a.Status)
	}
	// 解决后幂等
	a.Resolve(at(0, 4))
	if !a.ResolvedAt.Equal(resolveAt) {
		t.Error("Resolve should be idempotent")
	}
}
