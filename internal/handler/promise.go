// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowiq/flowiq/internal/metrics"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/promise"
)

// pendingCTP 待提交的CTP候选计划；提交或过期前暂存于内存
type pendingCTP struct {
	outcome *promise.CTPOutcome
	request promise.Request
	orders  []*model.WorkOrder
	record  *model.PromiseRequest // 落库的承诺记录，提交时转为 committed
	at      time.Time
}

var (
	pendingMu   sync.Mutex
	pendingCTPs = make(map[string]*pendingCTP)
)

// promiseRequest 承诺查询请求体
type promiseRequest struct {
	Customer      string    `json:"customer"`
	Product       string    `json:"product"`
	Quantity      int       `json:"quantity"`
	RequestedDate time.Time `json:"requested_date"`
}

func (r promiseRequest) toEngine() promise.Request {
	return promise.Request{
		Customer:      r.Customer,
		Product:       r.Product,
		Quantity:      r.Quantity,
		RequestedDate: r.RequestedDate,
	}
}

// CheckATP 可承诺量检查
func (s *Server) CheckATP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req promiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	snap := s.plan.Snapshot()
	result, err := s.promiser.CheckATP(req.toEngine(), snap.Calendar, s.buildOptions(nil))
	if err != nil {
		respondAnyError(w, err)
		return
	}

	metrics.RecordPromiseCheck("atp", result.Available)
	s.persistPromise(r, req, result, nil)

	respondJSON(w, http.StatusOK, result)
}

// CheckCTP 可生产承诺检查
func (s *Server) CheckCTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req promiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	snap := s.plan.Snapshot()
	engineReq := req.toEngine()
	outcome, err := s.promiser.CheckCTP(
		r.Context(), engineReq, snap.Orders, snap.Schedule,
		s.registry.Resources(), s.buildOptions(nil),
	)
	if err != nil {
		respondAnyError(w, err)
		return
	}

	metrics.RecordPromiseCheck("ctp", outcome.Result.Feasible)
	record := s.persistPromise(r, req, nil, outcome.Result)

	token := ""
	if outcome.Result.Feasible {
		token = uuid.New().String()
		pendingMu.Lock()
		pendingCTPs[token] = &pendingCTP{
			outcome: outcome,
			request: engineReq,
			orders:  snap.Orders,
			record:  record,
			at:      time.Now(),
		}
		pendingMu.Unlock()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":       outcome.Result,
		"commit_token": token,
	})
}

// commitRequest 承诺提交请求体
type commitRequest struct {
	Token string `json:"commit_token"`
}

// CommitPromise 采纳CTP候选计划为现行计划
func (s *Server) CommitPromise(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	pendingMu.Lock()
	pending, ok := pendingCTPs[req.Token]
	if ok {
		delete(pendingCTPs, req.Token)
	}
	pendingMu.Unlock()

	if !ok {
		respondError(w, errors.New(errors.CodePromiseNotFound, "承诺候选不存在或已过期"))
		return
	}

	// 候选计划连同合成工单一起提交；重建账本以反映新的占用
	orders := append(pending.orders, pending.outcome.Order)
	cal := s.rebuildCalendar(pending.outcome.Candidate)
	s.plan.Commit(pending.outcome.Candidate, orders, cal)

	if s.scheduleRepo != nil {
		if err := s.scheduleRepo.SaveSnapshot(r.Context(), pending.outcome.Candidate); err != nil {
			logger.WithError(err).Msg("计划快照落库失败")
		}
	}

	// 承诺记录 pending → committed
	if pending.record != nil && s.promiseRepo != nil {
		pending.record.Status = model.PromiseCommitted
		pending.record.UpdatedAt = time.Now()
		if err := s.promiseRepo.Update(r.Context(), pending.record); err != nil {
			logger.WithError(err).Msg("承诺状态落库失败")
		}
	}

	logger.Info().
		Str("order", pending.outcome.OrderID).
		Str("customer", pending.request.Customer).
		Msg("承诺已提交")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"committed":   true,
		"order_id":    pending.outcome.OrderID,
		"schedule_id": pending.outcome.Candidate.ID.String(),
		"version":     pending.outcome.Candidate.Version,
	})
}

// persistPromise 留存承诺查询记录，返回落库的记录（无仓储时为 nil）
func (s *Server) persistPromise(r *http.Request, req promiseRequest, atp *model.ATPResult, ctp *model.CTPResult) *model.PromiseRequest {
	if s.promiseRepo == nil {
		return nil
	}

	record := &model.PromiseRequest{
		BaseModel:     model.NewBaseModel(),
		Customer:      req.Customer,
		Product:       req.Product,
		Quantity:      req.Quantity,
		RequestedDate: req.RequestedDate,
		ATP:           atp,
		CTP:           ctp,
		Status:        model.PromisePending,
	}
	if err := s.promiseRepo.Create(r.Context(), record); err != nil {
		logger.WithError(err).Msg("承诺记录落库失败")
	}
	return record
}
