// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/flowiq/flowiq/internal/metrics"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scenario"
)

// scenarioCache 已计算场景的内存留存；提升时需要其候选计划
var (
	scenarioMu    sync.RWMutex
	scenarioCache = make(map[string]*model.Scenario)
)

// CreateScenariosRequest 场景创建请求
type CreateScenariosRequest struct {
	Scenarios []scenario.Spec `json:"scenarios"`
}

// CreateScenarios 并行创建并计算一批场景
func (s *Server) CreateScenarios(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listScenarios(w, r)
		return
	case http.MethodPost:
	default:
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET/POST方法"))
		return
	}

	var req CreateScenariosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if len(req.Scenarios) == 0 {
		respondError(w, errors.New(errors.CodeInvalidInput, "场景列表不能为空"))
		return
	}

	base, appErr := s.baseline()
	if appErr != nil {
		respondError(w, appErr)
		return
	}

	results, err := s.scenarios.CreateAll(r.Context(), base, req.Scenarios)
	if err != nil {
		respondAnyError(w, err)
		return
	}

	scenarioMu.Lock()
	for _, sc := range results {
		scenarioCache[sc.ID.String()] = sc
		metrics.RecordScenarioComputed()
	}
	scenarioMu.Unlock()

	if s.scenarioRepo != nil {
		for _, sc := range results {
			if err := s.scenarioRepo.Create(r.Context(), sc); err != nil {
				logger.WithError(err).Msg("场景落库失败")
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":     len(results),
		"scenarios": results,
	})
}

// listScenarios 列出内存中的已计算场景
func (s *Server) listScenarios(w http.ResponseWriter, r *http.Request) {
	scenarioMu.RLock()
	out := make([]*model.Scenario, 0, len(scenarioCache))
	for _, sc := range scenarioCache {
		out = append(out, sc)
	}
	scenarioMu.RUnlock()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":     len(out),
		"scenarios": out,
	})
}

// compareRequest 场景对比请求
type compareRequest struct {
	ScenarioIDs []string `json:"scenario_ids"`
}

// CompareScenarios 对比场景与基线KPI；纯读取，不触发重排
func (s *Server) CompareScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	var scenarios []*model.Scenario
	scenarioMu.RLock()
	for _, id := range req.ScenarioIDs {
		if sc, ok := scenarioCache[id]; ok {
			scenarios = append(scenarios, sc)
		}
	}
	scenarioMu.RUnlock()

	if len(scenarios) != len(req.ScenarioIDs) {
		respondError(w, errors.New(errors.CodeNotFound, "部分场景不存在"))
		return
	}

	baseline := s.plan.KPIs()
	if baseline == nil {
		baseline = s.computeKPIs(time.Now())
	}

	comparisons, err := scenario.Compare(baseline, scenarios)
	if err != nil {
		respondAnyError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"baseline":    baseline,
		"comparisons": comparisons,
	})
}

// promoteRequest 场景提升请求
type promoteRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// PromoteScenario 将场景计划提升为现行计划
func (s *Server) PromoteScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	scenarioMu.RLock()
	sc := scenarioCache[req.ScenarioID]
	scenarioMu.RUnlock()

	if sc == nil {
		respondError(w, errors.Newf(errors.CodeNotFound, "场景 %s 不存在", req.ScenarioID))
		return
	}
	if !sc.IsComputed() || sc.Schedule == nil {
		respondError(w, errors.New(errors.CodeScenarioImmutable, "场景尚未计算完成，不能提升"))
		return
	}

	cal := s.rebuildCalendar(sc.Schedule)
	s.plan.Commit(sc.Schedule, s.plan.Orders(), cal)

	scenarioMu.Lock()
	sc.Status = model.ScenarioPromoted
	scenarioMu.Unlock()

	if s.scenarioRepo != nil {
		if err := s.scenarioRepo.UpdateStatus(r.Context(), sc.ID, model.ScenarioPromoted); err != nil {
			logger.WithError(err).Msg("场景状态落库失败")
		}
	}
	if s.scheduleRepo != nil {
		if err := s.scheduleRepo.SaveSnapshot(r.Context(), sc.Schedule); err != nil {
			logger.WithError(err).Msg("计划快照落库失败")
		}
	}

	logger.Info().
		Str("scenario", sc.ID.String()).
		Str("name", sc.Name).
		Msg("场景已提升为现行计划")

	respondJSON(w, http.StatusOK, sc)
}

// discardRequest 场景废弃请求
type discardRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// DiscardScenario 废弃不再考虑的场景；已提升的场景不可废弃
func (s *Server) DiscardScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req discardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	scenarioMu.RLock()
	sc := scenarioCache[req.ScenarioID]
	scenarioMu.RUnlock()

	if sc == nil {
		respondError(w, errors.Newf(errors.CodeNotFound, "场景 %s 不存在", req.ScenarioID))
		return
	}
	if sc.Status == model.ScenarioPromoted {
		respondError(w, errors.New(errors.CodeScenarioImmutable, "已提升的场景不能废弃"))
		return
	}

	scenarioMu.Lock()
	sc.Status = model.ScenarioDiscarded
	scenarioMu.Unlock()

	if s.scenarioRepo != nil {
		if err := s.scenarioRepo.UpdateStatus(r.Context(), sc.ID, model.ScenarioDiscarded); err != nil {
			logger.WithError(err).Msg("场景状态落库失败")
		}
	}

	logger.Info().
		Str("scenario", sc.ID.String()).
		Str("name", sc.Name).
		Msg("场景已废弃")

	respondJSON(w, http.StatusOK, sc)
}

// baseline 组装场景评估的基线状态
func (s *Server) baseline() (scenario.Baseline, *errors.AppError) {
	snap := s.plan.Snapshot()
	if snap.Schedule == nil {
		return scenario.Baseline{}, errors.New(errors.CodeNotFound, "尚未生成计划，无法评估场景")
	}

	opts := s.buildOptions(nil)
	return scenario.Baseline{
		Schedule:  snap.Schedule,
		Orders:    snap.Orders,
		Resources: s.registry.Resources(),
		Options:   opts,
		KPIWindow: model.TimeRange{Start: opts.Now, End: opts.Now.Add(opts.Horizon)},
	}, nil
}
