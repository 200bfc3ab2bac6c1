package calendar

import (
	"testing"
	"time"

	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/model"
)

// day0 固定基准日，避免测试随墙钟漂移
var day0 = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func at(dayOffset, hour int) time.Time {
	return day0.AddDate(0, 0, dayOffset).Add(time.Duration(hour) * time.Hour)
}

func testResources() []*model.Resource {
	return []*model.Resource{
		{
			ID: "CNC-01", Name: "数控加工中心1号", Type: model.ResourceMachine,
			Capability: "machining", CapacityHours: 16, Status: model.ResourceRunning,
		},
		{
			ID: "CNC-02", Name: "数控加工中心2号", Type: model.ResourceMachine,
			Capability: "machining", CapacityHours: 16, Status: model.ResourceRunning,
		},
		{
			ID: "INSP-01", Name: "检验台", Type: model.ResourceStation,
			Capability: "inspection", CapacityHours: 8, Status: model.ResourceRunning,
		},
	}
}

func TestService_AvailableWindows_ShiftStart(t *testing.T) {
	svc := NewService(testResources())

	tests := []struct {
		name       string
		resourceID string
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{
			name:       "双班资源06点开工",
			resourceID: "CNC-01",
			wantStart:  at(0, 6),
			wantEnd:    at(0, 22),
		},
		{
			name:       "单班资源08点开工",
			resourceID: "INSP-01",
			wantStart:  at(0, 8),
			wantEnd:    at(0, 16),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := svc.AvailableWindows(tt.resourceID, at(0, 0), at(1, 0))
			if len(windows) != 1 {
				t.Fatalf("Expected 1 window, got %d", len(windows))
			}
			if !windows[0].Start.Equal(tt.wantStart) || !windows[0].End.Equal(tt.wantEnd) {
				t.Errorf("Window = [%v, %v), expected [%v, %v)",
					windows[0].Start, windows[0].End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestService_AvailableWindows_Downtime(t *testing.T) {
	resources := testResources()
	// 停机 10:00-14:00，当日窗口应被切成两段
	resources[0].Downtime = []model.TimeRange{{Start: at(0, 10), End: at(0, 14)}}
	svc := NewService(resources)

	windows := svc.AvailableWindows("CNC-01", at(0, 0), at(1, 0))
	if len(windows) != 2 {
		t.Fatalf("Expected 2 windows around downtime, got %d", len(windows))
	}
	if !windows[0].End.Equal(at(0, 10)) {
		t.Errorf("First window should end at downtime start, got %v", windows[0].End)
	}
	if !windows[1].Start.Equal(at(0, 14)) {
		t.Errorf("Second window should start at downtime end, got %v", windows[1].Start)
	}
}

func TestService_Reserve(t *testing.T) {
	svc := NewService(testResources())

	// 预约 08:00-12:00 应成功
	if err := svc.Reserve("CNC-01", at(0, 8), at(0, 12)); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	// 与已有预约重叠应返回产能冲突
	err := svc.Reserve("CNC-01", at(0, 10), at(0, 13))
	if err == nil {
		t.Fatal("Expected capacity conflict, got nil")
	}
	if !errors.IsCode(err, errors.CodeCapacityConflict) {
		t.Errorf("Expected CAPACITY_CONFLICT code, got %v", err)
	}

	// 预约释放后原时段重新可用
	svc.Release("CNC-01", at(0, 8), at(0, 12))
	if err := svc.Reserve("CNC-01", at(0, 10), at(0, 13)); err != nil {
		t.Errorf("Reserve after release failed: %v", err)
	}
}

func TestService_Reserve_OutsideShift(t *testing.T) {
	svc := NewService(testResources())

	// 单班资源 16:00 收工，跨出班次的预约必须拒绝
	err := svc.Reserve("INSP-01", at(0, 14), at(0, 18))
	if err == nil {
		t.Fatal("Reserve spanning past shift end should fail")
	}
	if !errors.IsCode(err, errors.CodeCapacityConflict) {
		t.Errorf("Expected CAPACITY_CONFLICT code, got %v", err)
	}
}

func TestService_ForceReserve(t *testing.T) {
	svc := NewService(testResources())

	// 无条件登记：即便与班外时段重叠也不报错
	svc.ForceReserve("INSP-01", at(0, 14), at(0, 18))

	if got := svc.ReservedHours("INSP-01", model.TimeRange{Start: at(0, 0), End: at(1, 0)}); got != 4 {
		t.Errorf("ReservedHours = %v, expected 4", got)
	}
	// 后续正常预约仍要避开既成事实
	if err := svc.Reserve("INSP-01", at(0, 13), at(0, 15)); err == nil {
		t.Error("Reserve overlapping forced reservation should fail")
	}
}

func TestService_NextFit(t *testing.T) {
	resources := testResources()
	resources[0].Downtime = []model.TimeRange{{Start: at(0, 6), End: at(0, 12)}}
	svc := NewService(resources)
	if err := svc.Reserve("CNC-02", at(0, 6), at(0, 20)); err != nil {
		t.Fatalf("setup reserve failed: %v", err)
	}

	tests := []struct {
		name       string
		resourceID string
		earliest   time.Time
		hours      float64
		wantStart  time.Time
		wantFound  bool
	}{
		{
			name:       "最早时刻在班前取窗口起点",
			resourceID: "INSP-01",
			earliest:   at(0, 0),
			hours:      4,
			wantStart:  at(0, 8),
			wantFound:  true,
		},
		{
			name:       "最早时刻在窗口内原样采用",
			resourceID: "INSP-01",
			earliest:   at(0, 10),
			hours:      4,
			wantStart:  at(0, 10),
			wantFound:  true,
		},
		{
			name:       "停机后顺延到恢复时刻",
			resourceID: "CNC-01",
			earliest:   at(0, 6),
			hours:      6,
			wantStart:  at(0, 12),
			wantFound:  true,
		},
		{
			name:       "当日剩余不足时跳到次日",
			resourceID: "CNC-02",
			earliest:   at(0, 6),
			hours:      4,
			wantStart:  at(1, 6),
			wantFound:  true,
		},
		{
			name:       "视界内放不下返回失败",
			resourceID: "INSP-01",
			earliest:   at(0, 0),
			hours:      10,
			wantFound:  false,
		},
	}

	horizon := at(7, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, found := svc.NextFit(tt.resourceID, tt.earliest, tt.hours, horizon)
			if found != tt.wantFound {
				t.Fatalf("NextFit found = %v, expected %v", found, tt.wantFound)
			}
			if found && !start.Equal(tt.wantStart) {
				t.Errorf("NextFit start = %v, expected %v", start, tt.wantStart)
			}
		})
	}
}

func TestService_AddOvertime(t *testing.T) {
	svc := NewService(testResources())
	if svc.OvertimeUsed() {
		t.Fatal("Fresh ledger should not report overtime")
	}

	// 占满单班资源当日 8 小时
	if err := svc.Reserve("INSP-01", at(0, 8), at(0, 16)); err != nil {
		t.Fatalf("setup reserve failed: %v", err)
	}
	if _, found := svc.NextFit("INSP-01", at(0, 0), 2, at(1, 0)); found {
		t.Fatal("Fully booked day should have no fit before overtime")
	}

	// 加班窗口接在标称班次之后：16:00-19:00
	svc.AddOvertime("INSP-01", day0, 3)
	start, found := svc.NextFit("INSP-01", at(0, 0), 2, at(1, 0))
	if !found {
		t.Fatal("Overtime window should accept the operation")
	}
	if !start.Equal(at(0, 16)) {
		t.Errorf("Overtime fit start = %v, expected %v", start, at(0, 16))
	}
	if !svc.OvertimeUsed() {
		t.Error("OvertimeUsed should be true after AddOvertime")
	}
}

func TestService_Clone_Isolation(t *testing.T) {
	svc := NewService(testResources())
	if err := svc.Reserve("CNC-01", at(0, 6), at(0, 10)); err != nil {
		t.Fatalf("setup reserve failed: %v", err)
	}

	clone := svc.Clone()
	if err := clone.Reserve("CNC-01", at(0, 10), at(0, 14)); err != nil {
		t.Fatalf("clone reserve failed: %v", err)
	}
	clone.AddOvertime("CNC-01", day0, 2)

	window := model.TimeRange{Start: at(0, 0), End: at(1, 0)}
	if got := svc.ReservedHours("CNC-01", window); got != 4 {
		t.Errorf("Original ReservedHours = %v, expected 4 (clone must not leak)", got)
	}
	if svc.OvertimeUsed() {
		t.Error("Clone overtime must not mark the original ledger")
	}
	if got := clone.ReservedHours("CNC-01", window); got != 8 {
		t.Errorf("Clone ReservedHours = %v, expected 8", got)
	}
}

func TestService_Utilization(t *testing.T) {
	svc := NewService(testResources())
	if err := svc.Reserve("INSP-01", at(0, 8), at(0, 12)); err != nil {
		t.Fatalf("setup reserve failed: %v", err)
	}

	window := model.TimeRange{Start: at(0, 0), End: at(1, 0)}
	// 8 小时班次中预约 4 小时，负荷率 50%
	if got := svc.Utilization("INSP-01", window); got != 0.5 {
		t.Errorf("Utilization = %v, expected 0.5", got)
	}
	if got := svc.AvailableHours("INSP-01", window); got != 4 {
		t.Errorf("AvailableHours = %v, expected 4", got)
	}
	// 未知资源不计负荷
	if got := svc.Utilization("UNKNOWN", window); got != 0 {
		t.Errorf("Utilization for unknown resource = %v, expected 0", got)
	}
}

func TestService_ByCapability(t *testing.T) {
	svc := NewService(testResources())
	out := svc.ByCapability("machining")
	if len(out) != 2 {
		t.Fatalf("Expected 2 machining resources, got %d", len(out))
	}
	// 能力查询必须按ID升序，保证调度确定性
	if out[0].ID != "CNC-01" || out[1].ID != "CNC-02" {
		t.Errorf("ByCapability order = [%s, %s], expected [CNC-01, CNC-02]", out[0].ID, out[1].ID)
	}
}
