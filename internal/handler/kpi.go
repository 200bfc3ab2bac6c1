// Package handler 提供HTTP请求处理器
package handler

import (
	"net/http"
	"time"

	"github.com/flowiq/flowiq/internal/metrics"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/model"
)

// GetKPI 返回现行计划的KPI快照
func (s *Server) GetKPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}

	snap := s.computeKPIs(time.Now())
	if snap == nil {
		respondError(w, errors.New(errors.CodeNotFound, "尚未生成计划"))
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// computeKPIs 在现行状态快照上计算KPI并留存
func (s *Server) computeKPIs(now time.Time) *model.KPISnapshot {
	snap := s.plan.Snapshot()
	if snap.Schedule == nil {
		return nil
	}

	window := model.TimeRange{
		Start: now,
		End:   now.Add(time.Duration(s.cfg.Scheduler.HorizonDays) * 24 * time.Hour),
	}
	kpis := s.agg.Compute(snap.Orders, snap.Schedule, snap.Baseline, snap.Calendar, window, now)
	s.plan.SetKPIs(kpis)

	metrics.SetKPI("otif", kpis.OTIF)
	metrics.SetKPI("adherence", kpis.Adherence)
	metrics.SetKPI("utilization", kpis.Utilization)
	metrics.SetKPI("tardiness", float64(kpis.Tardiness))
	metrics.SetKPI("makespan_hours", kpis.MakespanHours)

	return kpis
}
