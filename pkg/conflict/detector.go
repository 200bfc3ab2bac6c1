// Package conflict 提供排产冲突检测器
//
// 告警是视图而非独立事实：每次检测都从当前计划/工单/资源状态重新推导。
// 唯一跨次保留的是状态字段（open/acknowledged/resolved），按规则+实体
// 标识匹配延续，避免同一持续状况重复产生新告警。
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/flowiq/flowiq/pkg/model"
)

// Config 检测器配置
type Config struct {
	OverlapCriticalFraction float64 // 重叠超过日产能该比例时冲突升级为 critical
	OverloadWarnRatio       float64 // 日负荷超过该比例告警
	OverloadCriticalRatio   float64 // 日负荷超过该比例严重告警
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		OverlapCriticalFraction: 0.25,
		OverloadWarnRatio:       1.0,
		OverloadCriticalRatio:   1.35,
	}
}

// Input 一次检测的全部输入
type Input struct {
	Orders    []*model.WorkOrder
	Resources []*model.Resource
	Schedule  *model.Schedule
	Materials []model.MaterialSignal // 外部物料信号，引擎只消费
	Now       time.Time
	Previous  []*model.Alert // 上次检测结果，用于状态延续
}

// Detector 冲突检测器
type Detector struct {
	cfg *Config
}

// New 创建冲突检测器
func New(cfg *Config) *Detector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg}
}

// Detect 扫描当前状态，生成全部告警
// 结果排序：严重级别降序，其后按生成时间降序。
func (d *Detector) Detect(in Input) []*model.Alert {
	var alerts []*model.Alert
	alerts = append(alerts, d.scheduleConflicts(in)...)
	alerts = append(alerts, d.capacityOverloads(in)...)
	alerts = append(alerts, d.machineDown(in)...)
	alerts = append(alerts, d.lateOrders(in)...)
	alerts = append(alerts, d.materialShortages(in)...)
	alerts = append(alerts, d.changeovers(in)...)

	carryOver(alerts, in.Previous)
	alerts = append(alerts, retireCleared(alerts, in.Previous, in.Now)...)

	sort.Slice(alerts, func(i, j int) bool {
		if r1, r2 := alerts[i].Severity.Rank(), alerts[j].Severity.Rank(); r1 != r2 {
			return r1 < r2
		}
		if !alerts[i].GeneratedAt.Equal(alerts[j].GeneratedAt) {
			return alerts[i].GeneratedAt.After(alerts[j].GeneratedAt)
		}
		return alerts[i].Key < alerts[j].Key
	})
	return alerts
}

// carryOver 按规则+实体标识延续既有告警的状态与时间戳
func carryOver(alerts, previous []*model.Alert) {
	prev := make(map[string]*model.Alert, len(previous))
	for _, a := range previous {
		prev[a.Key] = a
	}
	for _, a := range alerts {
		if old, ok := prev[a.Key]; ok {
			a.BaseModel = old.BaseModel
			a.Status = old.Status
			a.GeneratedAt = old.GeneratedAt
			a.AckedAt = old.AckedAt
			a.ResolvedAt = old.ResolvedAt
		}
	}
}

// retireCleared 保留状况已消失的既有告警：不删除，未解决的转为 resolved
func retireCleared(alerts, previous []*model.Alert, now time.Time) []*model.Alert {
	active := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		active[a.Key] = true
	}
	var retired []*model.Alert
	for _, a := range previous {
		if active[a.Key] {
			continue
		}
		kept := *a
		kept.Resolve(now)
		retired = append(retired, &kept)
	}
	return retired
}

// newAlert 创建新告警
func newAlert(key string, typ model.AlertType, sev model.Severity, now time.Time) *model.Alert {
	return &model.Alert{
		BaseModel:   model.NewBaseModel(),
		Key:         key,
		Type:        typ,
		Severity:    sev,
		Status:      model.AlertOpen,
		GeneratedAt: now,
	}
}

// scheduleConflicts 检测同一资源上时间窗重叠的工序对
func (d *Detector) scheduleConflicts(in Input) []*model.Alert {
	var alerts []*model.Alert
	byResource := in.Schedule.ByResource()
	resources := make(map[string]*model.Resource, len(in.Resources))
	for _, r := range in.Resources {
		resources[r.ID] = r
	}

	var resourceIDs []string
	for id := range byResource {
		resourceIDs = append(resourceIDs, id)
	}
	sort.Strings(resourceIDs)

	for _, resID := range resourceIDs {
		ps := byResource[resID]
		for i := 0; i < len(ps); i++ {
			for j := i + 1; j < len(ps); j++ {
				if !ps[i].Window().Overlaps(ps[j].Window()) {
					continue
				}
				overlap := ps[i].Window().Overlap(ps[j].Window()).Hours()
				sev := model.SeverityWarning
				if r := resources[resID]; r != nil && r.CapacityHours > 0 &&
					overlap > r.CapacityHours*d.cfg.OverlapCriticalFraction {
					sev = model.SeverityCritical
				}
				a := newAlert(
					fmt.Sprintf("schedule-conflict:%s:%s|%s", resID, ps[i].Key(), ps[j].Key()),
					model.AlertScheduleConflict, sev, in.Now)
				a.ResourceID = resID
				a.WorkOrderIDs = uniqueStrings([]string{ps[i].WorkOrderID, ps[j].WorkOrderID})
				a.Title = fmt.Sprintf("资源 %s 排程冲突", resID)
				a.Description = fmt.Sprintf("工序 %s 与 %s 在 %s 上重叠 %.1f 小时",
					ps[i].Key(), ps[j].Key(), resID, overlap)
				alerts = append(alerts, a)
			}
		}
	}
	return alerts
}

// capacityOverloads 检测资源单日负荷超限
func (d *Detector) capacityOverloads(in Input) []*model.Alert {
	var alerts []*model.Alert
	byResource := in.Schedule.ByResource()
	resources := make(map[string]*model.Resource, len(in.Resources))
	for _, r := range in.Resources {
		resources[r.ID] = r
	}

	var resourceIDs []string
	for id := range byResource {
		resourceIDs = append(resourceIDs, id)
	}
	sort.Strings(resourceIDs)

	for _, resID := range resourceIDs {
		r := resources[resID]
		if r == nil || r.CapacityHours <= 0 {
			continue
		}
		// 按日累计已排时长（跨日工序按日切分）
		daily := make(map[string]float64)
		for _, p := range byResource[resID] {
			splitByDay(p.Window(), func(day string, hours float64) {
				daily[day] += hours
			})
		}
		var days []string
		for day := range daily {
			days = append(days, day)
		}
		sort.Strings(days)
		for _, day := range days {
			ratio := daily[day] / r.CapacityHours
			if ratio <= d.cfg.OverloadWarnRatio {
				continue
			}
			sev := model.SeverityWarning
			if ratio > d.cfg.OverloadCriticalRatio {
				sev = model.SeverityCritical
			}
			a := newAlert(fmt.Sprintf("capacity-overload:%s:%s", resID, day),
				model.AlertCapacityOverload, sev, in.Now)
			a.ResourceID = resID
			a.WorkOrderIDs = workOrdersOnDay(byResource[resID], day)
			a.Title = fmt.Sprintf("资源 %s 在 %s 产能过载", resID, day)
			a.Description = fmt.Sprintf("已排 %.1f 小时，标称产能 %.1f 小时，负荷率 %.0f%%",
				daily[day], r.CapacityHours, ratio*100)
			alerts = append(alerts, a)
		}
	}
	return alerts
}

// machineDown 检测停机资源上受影响的工序
func (d *Detector) machineDown(in Input) []*model.Alert {
	var alerts []*model.Alert
	byResource := in.Schedule.ByResource()
	for _, r := range in.Resources {
		if r.Status != model.ResourceDown || len(r.Downtime) == 0 {
			continue
		}
		var impacted []string
		for _, p := range byResource[r.ID] {
			for _, dt := range r.Downtime {
				if p.Window().Overlaps(dt) {
					impacted = append(impacted, p.WorkOrderID)
					break
				}
			}
		}
		if len(impacted) == 0 {
			continue
		}
		a := newAlert(fmt.Sprintf("machine-down:%s", r.ID),
			model.AlertMachineDown, model.SeverityCritical, in.Now)
		a.ResourceID = r.ID
		a.WorkOrderIDs = uniqueStrings(impacted)
		a.Title = fmt.Sprintf("设备 %s 停机", r.Name)
		a.Description = fmt.Sprintf("停机区间内有 %d 个工单的工序受影响", len(a.WorkOrderIDs))
		alerts = append(alerts, a)
	}
	return alerts
}

// lateOrders 检测已拖期工单
func (d *Detector) lateOrders(in Input) []*model.Alert {
	var alerts []*model.Alert
	for _, order := range in.Orders {
		status := order.DerivedStatus(in.Now, in.Schedule.WorkOrderEnd(order.ID))
		if status != model.OrderLate {
			continue
		}
		a := newAlert(fmt.Sprintf("late-order:%s", order.ID),
			model.AlertLateOrder, model.SeverityCritical, in.Now)
		a.WorkOrderIDs = []string{order.ID}
		a.Title = fmt.Sprintf("工单 %s 已拖期", order.ID)
		a.Description = fmt.Sprintf("客户 %s 的 %s 已超过交期 %s",
			order.Customer, order.Product, order.DueDate.Format("2006-01-02"))
		alerts = append(alerts, a)
	}
	return alerts
}

// materialShortages 消费外部物料信号（引擎不计算库存）
func (d *Detector) materialShortages(in Input) []*model.Alert {
	var alerts []*model.Alert
	for _, m := range in.Materials {
		if !m.Short() {
			continue
		}
		a := newAlert(fmt.Sprintf("material-shortage:%s", m.Material),
			model.AlertMaterialShortage, model.SeverityCritical, in.Now)
		a.WorkOrderIDs = uniqueStrings(m.WorkOrderIDs)
		a.Title = fmt.Sprintf("物料 %s 短缺", m.Material)
		a.Description = fmt.Sprintf("视界内需求 %.0f，当前可用 %.0f",
			m.RequiredQty, m.AvailableQty)
		alerts = append(alerts, a)
	}
	return alerts
}

// changeovers 检测换型中的资源及其窗口内即将开工的工序
func (d *Detector) changeovers(in Input) []*model.Alert {
	var alerts []*model.Alert
	byResource := in.Schedule.ByResource()
	for _, r := range in.Resources {
		if r.Status != model.ResourceChangeover || len(r.Downtime) == 0 {
			continue
		}
		var impacted []string
		for _, p := range byResource[r.ID] {
			for _, dt := range r.Downtime {
				if p.Window().Overlaps(dt) {
					impacted = append(impacted, p.WorkOrderID)
					break
				}
			}
		}
		if len(impacted) == 0 {
			continue
		}
		a := newAlert(fmt.Sprintf("changeover:%s", r.ID),
			model.AlertChangeover, model.SeverityInfo, in.Now)
		a.ResourceID = r.ID
		a.WorkOrderIDs = uniqueStrings(impacted)
		a.Title = fmt.Sprintf("资源 %s 换型中", r.Name)
		a.Description = fmt.Sprintf("换型窗口与 %d 个工单的工序相交", len(a.WorkOrderIDs))
		alerts = append(alerts, a)
	}
	return alerts
}

// splitByDay 把时间窗口按自然日切分并回调每日小时数
func splitByDay(window model.TimeRange, fn func(day string, hours float64)) {
	cur := window.Start
	for cur.Before(window.End) {
		dayEnd := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, cur.Location()).AddDate(0, 0, 1)
		end := window.End
		if dayEnd.Before(end) {
			end = dayEnd
		}
		fn(cur.Format("2006-01-02"), end.Sub(cur).Hours())
		cur = end
	}
}

// workOrdersOnDay 返回当日在该资源上有工序的工单
func workOrdersOnDay(ps []model.Placement, day string) []string {
	var out []string
	for _, p := range ps {
		found := false
		splitByDay(p.Window(), func(d string, _ float64) {
			if d == day {
				found = true
			}
		})
		if found {
			out = append(out, p.WorkOrderID)
		}
	}
	return uniqueStrings(out)
}

// uniqueStrings 去重并升序排序
func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
