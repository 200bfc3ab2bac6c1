// Package calendar 提供资源产能日历服务
// 账本以单个排产计划为作用域：What-if 计算只改克隆，绝不改全局日历。
package calendar

import (
	"sort"
	"time"

	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/model"
)

// 班次起点：大产能资源按两班制提早开工
const (
	twoShiftStartHour = 6 // 双班资源 06:00 开工
	oneShiftStartHour = 8 // 单班资源 08:00 开工
	twoShiftThreshold = 12.0
)

// Service 产能账本：标称日历 − 停机/换型 − 已预约 + 加班扩展
type Service struct {
	resources    map[string]*model.Resource
	reservations map[string][]model.TimeRange // 按开始时间升序
	overtime     map[string][]model.TimeRange // 加班扩展窗口
	overtimeUsed bool
}

// NewService 创建产能账本
func NewService(resources []*model.Resource) *Service {
	s := &Service{
		resources:    make(map[string]*model.Resource, len(resources)),
		reservations: make(map[string][]model.TimeRange),
		overtime:     make(map[string][]model.TimeRange),
	}
	for _, r := range resources {
		s.resources[r.ID] = r
	}
	return s
}

// Clone 深拷贝账本（CTP/场景的私有副本）
func (s *Service) Clone() *Service {
	clone := &Service{
		resources:    s.resources, // 主数据只读共享
		reservations: make(map[string][]model.TimeRange, len(s.reservations)),
		overtime:     make(map[string][]model.TimeRange, len(s.overtime)),
		overtimeUsed: s.overtimeUsed,
	}
	for id, rs := range s.reservations {
		clone.reservations[id] = append([]model.TimeRange(nil), rs...)
	}
	for id, ot := range s.overtime {
		clone.overtime[id] = append([]model.TimeRange(nil), ot...)
	}
	return clone
}

// Resource 返回资源主数据
func (s *Service) Resource(id string) *model.Resource {
	return s.resources[id]
}

// Resources 返回全部资源，按ID升序（保证遍历确定性）
func (s *Service) Resources() []*model.Resource {
	out := make([]*model.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByCapability 返回具备指定工艺能力的资源，按ID升序
func (s *Service) ByCapability(capability string) []*model.Resource {
	var out []*model.Resource
	for _, r := range s.Resources() {
		if r.HasCapability(capability) {
			out = append(out, r)
		}
	}
	return out
}

// shiftStart 返回资源的日开工小时
func shiftStart(r *model.Resource) int {
	if r.CapacityHours >= twoShiftThreshold {
		return twoShiftStartHour
	}
	return oneShiftStartHour
}

// nominalWindows 返回 [from, to) 内的标称工作窗口（含加班扩展，不扣停机与预约）
func (s *Service) nominalWindows(r *model.Resource, from, to time.Time) []model.TimeRange {
	var out []model.TimeRange
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for day.Before(to) {
		start := day.Add(time.Duration(shiftStart(r)) * time.Hour)
		end := start.Add(time.Duration(r.CapacityHours * float64(time.Hour)))
		if end.After(start) {
			out = append(out, model.TimeRange{Start: start, End: end})
		}
		day = day.AddDate(0, 0, 1)
	}
	out = append(out, s.overtime[r.ID]...)
	out = mergeRanges(out)
	return clampRanges(out, model.TimeRange{Start: from, End: to})
}

// AvailableWindows 返回资源在 [from, to) 内的空闲窗口（升序）
// 即标称日历扣除停机/换型时段与已有预约。
func (s *Service) AvailableWindows(resourceID string, from, to time.Time) []model.TimeRange {
	r := s.resources[resourceID]
	if r == nil {
		return nil
	}
	windows := s.nominalWindows(r, from, to)
	// 停机资源在停机区间内产能为零
	for _, d := range r.Downtime {
		windows = subtractRange(windows, d)
	}
	for _, res := range s.reservations[resourceID] {
		windows = subtractRange(windows, res)
	}
	return windows
}

// Reserve 预约时间段；时段未完全空闲时返回 CapacityConflict
func (s *Service) Reserve(resourceID string, start, end time.Time) error {
	want := model.TimeRange{Start: start, End: end}
	for _, w := range s.AvailableWindows(resourceID, start, end) {
		if w.ContainsRange(want) {
			rs := append(s.reservations[resourceID], want)
			sort.Slice(rs, func(i, j int) bool { return rs[i].Start.Before(rs[j].Start) })
			s.reservations[resourceID] = rs
			return nil
		}
	}
	return errors.ErrCapacityConflict(resourceID).
		WithField("start", start).
		WithField("end", end)
}

// ForceReserve 无条件登记预约，不做空闲检查
// 仅用于已提交的既成事实（进行中/冻结期内的工序）：它们占用产能，
// 即便与停机区间重叠也由冲突检测器报告，而不是在账本层拒绝。
func (s *Service) ForceReserve(resourceID string, start, end time.Time) {
	rs := append(s.reservations[resourceID], model.TimeRange{Start: start, End: end})
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start.Before(rs[j].Start) })
	s.reservations[resourceID] = rs
}

// Release 释放先前的预约（撤回试探性放置时使用）
func (s *Service) Release(resourceID string, start, end time.Time) {
	rs := s.reservations[resourceID]
	for i, r := range rs {
		if r.Start.Equal(start) && r.End.Equal(end) {
			s.reservations[resourceID] = append(rs[:i:i], rs[i+1:]...)
			return
		}
	}
}

// NextFit 从 earliest 起寻找能容纳 duration 小时的最早空闲窗口起点
// 搜索至 horizon 截止；找不到返回 false。
func (s *Service) NextFit(resourceID string, earliest time.Time, durationHours float64, horizon time.Time) (time.Time, bool) {
	need := time.Duration(durationHours * float64(time.Hour))
	for _, w := range s.AvailableWindows(resourceID, earliest, horizon) {
		start := w.Start
		if earliest.After(start) {
			start = earliest
		}
		if !w.End.Before(start.Add(need)) {
			return start, true
		}
	}
	return time.Time{}, false
}

// AddOvertime 为资源在指定日期追加加班窗口（接在当日标称窗口之后）
func (s *Service) AddOvertime(resourceID string, day time.Time, hours float64) {
	r := s.resources[resourceID]
	if r == nil || hours <= 0 {
		return
	}
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	start := d.Add(time.Duration(shiftStart(r)) * time.Hour).
		Add(time.Duration(r.CapacityHours * float64(time.Hour)))
	s.overtime[resourceID] = append(s.overtime[resourceID], model.TimeRange{
		Start: start,
		End:   start.Add(time.Duration(hours * float64(time.Hour))),
	})
	s.overtimeUsed = true
}

// OvertimeUsed 检查账本是否追加过加班产能（CTP 报告 RequiresOvertime 用）
func (s *Service) OvertimeUsed() bool {
	return s.overtimeUsed
}

// ReservedHours 返回窗口内已预约的小时数
func (s *Service) ReservedHours(resourceID string, window model.TimeRange) float64 {
	var total float64
	for _, r := range s.reservations[resourceID] {
		if r.Overlaps(window) {
			total += r.Overlap(window).Hours()
		}
	}
	return total
}

// AvailableHours 返回窗口内仍空闲的小时数
func (s *Service) AvailableHours(resourceID string, window model.TimeRange) float64 {
	var total float64
	for _, w := range s.AvailableWindows(resourceID, window.Start, window.End) {
		total += w.Hours()
	}
	return total
}

// Utilization 返回窗口内的负荷率（已预约 ÷ (已预约+空闲)）
func (s *Service) Utilization(resourceID string, window model.TimeRange) float64 {
	reserved := s.ReservedHours(resourceID, window)
	free := s.AvailableHours(resourceID, window)
	if reserved+free <= 0 {
		return 0
	}
	return reserved / (reserved + free)
}

// mergeRanges 合并重叠/相邻的时间范围，返回升序结果
func mergeRanges(ranges []model.TimeRange) []model.TimeRange {
	if len(ranges) <= 1 {
		return ranges
	}
	sorted := append([]model.TimeRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	out := []model.TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// subtractRange 从窗口集中扣除一个区间
func subtractRange(windows []model.TimeRange, cut model.TimeRange) []model.TimeRange {
	if cut.Duration() <= 0 {
		return windows
	}
	var out []model.TimeRange
	for _, w := range windows {
		if !w.Overlaps(cut) {
			out = append(out, w)
			continue
		}
		if cut.Start.After(w.Start) {
			out = append(out, model.TimeRange{Start: w.Start, End: cut.Start})
		}
		if cut.End.Before(w.End) {
			out = append(out, model.TimeRange{Start: cut.End, End: w.End})
		}
	}
	return out
}

// clampRanges 将窗口集裁剪到边界内
func clampRanges(windows []model.TimeRange, bound model.TimeRange) []model.TimeRange {
	var out []model.TimeRange
	for _, w := range windows {
		if !w.Overlaps(bound) {
			continue
		}
		out = append(out, w.Overlap(bound))
	}
	return out
}
