// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/flowiq/flowiq/internal/config"
	"github.com/flowiq/flowiq/internal/masterdata"
	"github.com/flowiq/flowiq/internal/repository"
	"github.com/flowiq/flowiq/pkg/conflict"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/kpi"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/promise"
	"github.com/flowiq/flowiq/pkg/scenario"
	"github.com/flowiq/flowiq/pkg/scheduler"
)

// Version 构建版本，编译时注入
var Version = "dev"

// Server HTTP处理器集合
type Server struct {
	cfg      *config.Config
	registry *masterdata.Registry
	plan     *PlanStore

	sched     *scheduler.Scheduler
	detector  *conflict.Detector
	promiser  *promise.Engine
	scenarios *scenario.Engine
	agg       *kpi.Aggregator

	scheduleRepo repository.ScheduleRepositoryInterface
	alertRepo    repository.AlertRepositoryInterface
	scenarioRepo repository.ScenarioRepositoryInterface
	promiseRepo  repository.PromiseRepositoryInterface

	startedAt time.Time
}

// Repos 仓储依赖；全部可为空（无数据库的开发模式）
type Repos struct {
	Schedule repository.ScheduleRepositoryInterface
	Alert    repository.AlertRepositoryInterface
	Scenario repository.ScenarioRepositoryInterface
	Promise  repository.PromiseRepositoryInterface
}

// NewServer 创建处理器集合
func NewServer(cfg *config.Config, registry *masterdata.Registry, repos Repos) *Server {
	detectorCfg := &conflict.Config{
		OverlapCriticalFraction: cfg.Conflict.OverlapCriticalFraction,
		OverloadWarnRatio:       cfg.Conflict.OverloadWarnRatio,
		OverloadCriticalRatio:   cfg.Conflict.OverloadCriticalRatio,
	}

	templates := routingTemplates(registry)
	promiseCfg := &promise.Config{
		VarianceHours:  cfg.Promise.VarianceHours,
		OvertimePerDay: cfg.Promise.OvertimePerDay,
	}

	return &Server{
		cfg:       cfg,
		registry:  registry,
		plan:      NewPlanStore(registry.Resources()),
		sched:     scheduler.New(),
		detector:  conflict.New(detectorCfg),
		promiser:  promise.NewEngine(promiseCfg, templates),
		scenarios: scenario.NewEngine(),
		agg:       kpi.NewAggregator(),

		scheduleRepo: repos.Schedule,
		alertRepo:    repos.Alert,
		scenarioRepo: repos.Scenario,
		promiseRepo:  repos.Promise,

		startedAt: time.Now(),
	}
}

// Routes 注册路由
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/schedule/build", s.BuildSchedule)
	mux.HandleFunc("/api/v1/schedule", s.GetSchedule)
	mux.HandleFunc("/api/v1/alerts", s.ListAlerts)
	mux.HandleFunc("/api/v1/alerts/ack", s.AcknowledgeAlert)
	mux.HandleFunc("/api/v1/alerts/resolve", s.ResolveAlert)
	mux.HandleFunc("/api/v1/promise/atp", s.CheckATP)
	mux.HandleFunc("/api/v1/promise/ctp", s.CheckCTP)
	mux.HandleFunc("/api/v1/promise/commit", s.CommitPromise)
	mux.HandleFunc("/api/v1/scenarios", s.CreateScenarios)
	mux.HandleFunc("/api/v1/scenarios/compare", s.CompareScenarios)
	mux.HandleFunc("/api/v1/scenarios/promote", s.PromoteScenario)
	mux.HandleFunc("/api/v1/scenarios/discard", s.DiscardScenario)
	mux.HandleFunc("/api/v1/kpi", s.GetKPI)
	mux.HandleFunc("/health", s.Health)
	mux.HandleFunc("/version", s.VersionInfo)
}

// Health 健康检查
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

// VersionInfo 版本信息
func (s *Server) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"name":    s.cfg.App.Name,
		"version": Version,
	})
}

// routingTemplates 从注册表导出路线模板列表
func routingTemplates(registry *masterdata.Registry) []*model.RoutingTemplate {
	routings := registry.Routings()
	products := make([]string, 0, len(routings))
	for p := range routings {
		products = append(products, p)
	}
	sort.Strings(products)

	out := make([]*model.RoutingTemplate, 0, len(products))
	for _, p := range products {
		rt := routings[p]
		out = append(out, &rt)
	}
	return out
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
		"details": err.Details,
		"fields":  err.Fields,
	})
}
