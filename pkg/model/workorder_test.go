package model

import (
	"testing"
	"time"
)

var day0 = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func at(dayOffset, hour int) time.Time {
	return day0.AddDate(0, 0, dayOffset).Add(time.Duration(hour) * time.Hour)
}

func validOrder() *WorkOrder {
	return &WorkOrder{
		ID: "WO-1001", Customer: "客户甲", Product: "法兰盘", Quantity: 10,
		Priority: PriorityMedium, DueDate: at(3, 0),
		Operations: []*Operation{
			{ID: "OP-10", Capability: "machining", Duration: 4, Sequence: 1, Status: OperationPending},
			{ID: "OP-20", Capability: "inspection", Duration: 2, Sequence: 2, Status: OperationPending},
		},
	}
}

func TestWorkOrder_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkOrder)
		wantErr bool
	}{
		{name: "合法工单", mutate: func(*WorkOrder) {}},
		{name: "缺工单ID", mutate: func(w *WorkOrder) { w.ID = "" }, wantErr: true},
		{name: "数量为零", mutate: func(w *WorkOrder) { w.Quantity = 0 }, wantErr: true},
		{name: "非法优先级", mutate: func(w *WorkOrder) { w.Priority = "urgent" }, wantErr: true},
		{name: "空工序路线", mutate: func(w *WorkOrder) { w.Operations = nil }, wantErr: true},
		{name: "工序时长为零", mutate: func(w *WorkOrder) { w.Operations[0].Duration = 0 }, wantErr: true},
		{
			name: "既无能力也无指定资源",
			mutate: func(w *WorkOrder) {
				w.Operations[0].Capability = ""
				w.Operations[0].PinnedTo = ""
			},
			wantErr: true,
		},
		{
			name: "无能力但指定资源可过",
			mutate: func(w *WorkOrder) {
				w.Operations[0].Capability = ""
				w.Operations[0].PinnedTo = "CNC-01"
			},
		},
		{name: "工序ID重复", mutate: func(w *WorkOrder) { w.Operations[1].ID = "OP-10" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validOrder()
			tt.mutate(w)
			err := w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkOrder_DerivedStatus(t *testing.T) {
	now := at(1, 0)
	tests := []struct {
		name         string
		mutate       func(*WorkOrder)
		projectedEnd time.Time
		want         WorkOrderStatus
	}{
		{name: "未排产且未开工", mutate: func(*WorkOrder) {}, want: OrderOnTrack},
		{
			name:         "预计完成早于交期",
			mutate:       func(*WorkOrder) {},
			projectedEnd: at(2, 0),
			want:         OrderOnTrack,
		},
		{
			name:         "预计完成晚于交期",
			mutate:       func(*WorkOrder) {},
			projectedEnd: at(4, 0),
			want:         OrderAtRisk,
		},
		{
			name:   "已开工",
			mutate: func(w *WorkOrder) { w.Operations[0].Status = OperationInProgress },
			want:   OrderInProgress,
		},
		{
			name:   "超过交期即拖期",
			mutate: func(w *WorkOrder) { w.DueDate = at(0, 12) },
			want:   OrderLate,
		},
		{
			name: "全部完工",
			mutate: func(w *WorkOrder) {
				for _, op := range w.Operations {
					op.Status = OperationComplete
				}
			},
			want: OrderComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validOrder()
			tt.mutate(w)
			if got := w.DerivedStatus(now, tt.projectedEnd); got != tt.want {
				t.Errorf("DerivedStatus() = %s, expected %s", got, tt.want)
			}
		})
	}
}

func TestWorkOrder_Progress(t *testing.T) {
	w := validOrder()
	if got := w.Progress(); got != 0 {
		t.Errorf("Progress = %d, expected 0", got)
	}
	// 完成 4 小时中的 4 小时工序，总 6 小时 → 66%
	w.Operations[0].Status = OperationComplete
	if got := w.Progress(); got != 66 {
		t.Errorf("Progress = %d, expected 66", got)
	}
	w.Operations[1].Status = OperationComplete
	if got := w.Progress(); got != 100 {
		t.Errorf("Progress = %d, expected 100", got)
	}
	if !w.IsComplete() {
		t.Error("All operations complete should mean order complete")
	}
}

func TestWorkOrder_RemainingOperations(t *testing.T) {
	w := validOrder()
	w.Operations[0].Status = OperationComplete
	rem := w.RemainingOperations()
	if len(rem) != 1 || rem[0].ID != "OP-20" {
		t.Errorf("RemainingOperations = %v, expected [OP-20]", rem)
	}
}

func TestPriority_Rank(t *testing.T) {
	order := []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s should rank before %s", order[i-1], order[i])
		}
	}
	if Priority("urgent").Valid() {
		t.Error("Unknown priority should be invalid")
	}
}
