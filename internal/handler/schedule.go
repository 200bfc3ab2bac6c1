// Package handler 提供HTTP请求处理器
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowiq/flowiq/internal/metrics"
	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/conflict"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scheduler"
)

// BuildRequest 排产请求
type BuildRequest struct {
	Orders  []*model.WorkOrder `json:"orders"`
	Options *BuildOptions      `json:"options,omitempty"`
}

// BuildOptions 排产选项
type BuildOptions struct {
	Now         *time.Time `json:"now,omitempty"`          // 排产基准时刻，缺省取当前时间
	FrozenHours float64    `json:"frozen_hours,omitempty"` // 冻结期长度（小时），缺省按配置
	HorizonDays int        `json:"horizon_days,omitempty"`
	Timeout     int        `json:"timeout_seconds,omitempty"`
	Compact     *bool      `json:"compact,omitempty"`
}

// BuildResponse 排产响应
type BuildResponse struct {
	Success    bool                   `json:"success"`
	Incomplete bool                   `json:"incomplete,omitempty"`
	Message    string                 `json:"message,omitempty"`
	ScheduleID string                 `json:"schedule_id"`
	Version    int                    `json:"version"`
	Placements []model.Placement      `json:"placements"`
	Infeasible []scheduler.Infeasible `json:"infeasible,omitempty"`
	Statistics scheduler.Statistics   `json:"statistics"`
	Alerts     int                    `json:"alerts"`
	Duration   string                 `json:"duration"`
}

// BuildSchedule 执行排产并提交为现行计划
func (s *Server) BuildSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if len(req.Orders) == 0 {
		respondError(w, errors.New(errors.CodeInvalidInput, "工单列表不能为空"))
		return
	}

	opts := s.buildOptions(req.Options)

	timeout := s.cfg.Scheduler.DefaultTimeout
	if req.Options != nil && req.Options.Timeout > 0 {
		timeout = time.Duration(req.Options.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	snap := s.plan.Snapshot()
	cal := calendar.NewService(s.registry.Resources())

	start := time.Now()
	result, err := s.sched.Reschedule(ctx, req.Orders, snap.Schedule, cal, opts)
	if err != nil {
		metrics.RecordScheduleBuild(false, 0, 0, time.Since(start))
		respondAnyError(w, err)
		return
	}

	s.plan.Commit(result.Schedule, req.Orders, cal)
	metrics.RecordScheduleBuild(true, result.Statistics.Placed, result.Statistics.Infeasible, result.Statistics.Duration)

	if s.scheduleRepo != nil {
		if err := s.scheduleRepo.SaveSnapshot(r.Context(), result.Schedule); err != nil {
			logger.WithError(err).Msg("计划快照落库失败")
		}
	}

	alerts := s.sweepConflicts(r.Context(), opts.Now)

	resp := BuildResponse{
		Success:    !result.Incomplete,
		Incomplete: result.Incomplete,
		Message:    result.Message,
		ScheduleID: result.Schedule.ID.String(),
		Version:    result.Schedule.Version,
		Placements: result.Schedule.Sorted(),
		Infeasible: result.Infeasible,
		Statistics: result.Statistics,
		Alerts:     len(alerts),
		Duration:   result.Statistics.Duration.String(),
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetSchedule 返回现行计划
func (s *Server) GetSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}

	committed := s.plan.Committed()
	if committed == nil {
		respondError(w, errors.New(errors.CodeNotFound, "尚未生成计划"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"schedule_id":  committed.ID.String(),
		"version":      committed.Version,
		"generated_at": committed.GeneratedAt,
		"frozen_until": committed.FrozenUntil,
		"placements":   committed.Sorted(),
	})
}

// buildOptions 组装排产选项
func (s *Server) buildOptions(in *BuildOptions) scheduler.Options {
	opts := scheduler.Options{
		Now:     time.Now(),
		Horizon: time.Duration(s.cfg.Scheduler.HorizonDays) * 24 * time.Hour,
		Rules:   s.registry.Rules(),
		Compact: true,
	}
	if in != nil {
		if in.Now != nil {
			opts.Now = *in.Now
		}
		if in.HorizonDays > 0 {
			opts.Horizon = time.Duration(in.HorizonDays) * 24 * time.Hour
		}
		if in.Compact != nil {
			opts.Compact = *in.Compact
		}
	}

	frozen := time.Duration(s.cfg.Scheduler.FrozenDays) * 24 * time.Hour
	if in != nil && in.FrozenHours > 0 {
		frozen = time.Duration(in.FrozenHours * float64(time.Hour))
	}
	opts.FrozenUntil = opts.Now.Add(frozen)

	return opts
}

// SweepNow 立即执行一轮冲突巡检（周期任务入口）
func (s *Server) SweepNow(ctx context.Context) {
	alerts := s.sweepConflicts(ctx, time.Now())
	logger.Debug().Int("alerts", len(alerts)).Msg("冲突巡检完成")
}

// sweepConflicts 在现行计划上运行冲突检测并留存告警
func (s *Server) sweepConflicts(ctx context.Context, now time.Time) []*model.Alert {
	snap := s.plan.Snapshot()
	if snap.Schedule == nil {
		return nil
	}

	alerts := s.detector.Detect(conflict.Input{
		Orders:    snap.Orders,
		Resources: s.registry.Resources(),
		Schedule:  snap.Schedule,
		Materials: s.registry.Materials(),
		Now:       now,
		Previous:  s.plan.Alerts(),
	})
	s.plan.SetAlerts(alerts)

	counts := map[model.Severity]int{}
	for _, a := range alerts {
		if a.Status != model.AlertResolved {
			counts[a.Severity]++
		}
	}
	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityWarning, model.SeverityInfo} {
		metrics.SetOpenAlerts(string(sev), counts[sev])
	}

	if s.alertRepo != nil {
		if err := s.alertRepo.UpsertBatch(ctx, alerts); err != nil {
			logger.WithError(err).Msg("告警落库失败")
		}
	}

	return alerts
}

// rebuildCalendar 按计划占用重建产能账本
// 承诺提交与场景提升采纳的计划可能依赖加班窗口，占用统一强制登记。
func (s *Server) rebuildCalendar(sched *model.Schedule) *calendar.Service {
	cal := calendar.NewService(s.registry.Resources())
	for _, p := range sched.Sorted() {
		cal.ForceReserve(p.ResourceID, p.Start, p.End)
	}
	return cal
}

// respondAnyError 任意错误转HTTP响应
func respondAnyError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		respondError(w, appErr)
		return
	}
	respondError(w, errors.Wrap(err, errors.CodeInternal, "处理失败"))
}
