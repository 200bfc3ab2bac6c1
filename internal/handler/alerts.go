// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
)

// ListAlerts 列出告警；支持 status/severity 过滤
func (s *Server) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}

	status := r.URL.Query().Get("status")
	severity := r.URL.Query().Get("severity")

	var out []*model.Alert
	for _, a := range s.plan.Alerts() {
		if status != "" && string(a.Status) != status {
			continue
		}
		if severity != "" && string(a.Severity) != severity {
			continue
		}
		out = append(out, a)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(out),
		"alerts": out,
	})
}

// alertActionRequest 告警处理请求
type alertActionRequest struct {
	ID string `json:"id"`
}

// AcknowledgeAlert 确认告警
func (s *Server) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	s.alertAction(w, r, func(a *model.Alert, at time.Time) {
		a.Acknowledge(at)
	})
}

// ResolveAlert 解决告警
func (s *Server) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	s.alertAction(w, r, func(a *model.Alert, at time.Time) {
		a.Resolve(at)
	})
}

// alertAction 告警状态迁移的公共路径
func (s *Server) alertAction(w http.ResponseWriter, r *http.Request, apply func(*model.Alert, time.Time)) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req alertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if req.ID == "" {
		respondError(w, errors.New(errors.CodeInvalidInput, "告警ID不能为空"))
		return
	}

	now := time.Now()
	alert := s.plan.MutateAlert(req.ID, func(a *model.Alert) {
		apply(a, now)
	})
	if alert == nil {
		respondError(w, errors.Newf(errors.CodeNotFound, "告警 %s 不存在", req.ID))
		return
	}

	if s.alertRepo != nil {
		if err := s.alertRepo.UpdateStatus(r.Context(), alert.ID, alert); err != nil {
			logger.WithError(err).Msg("告警状态落库失败")
		}
	}

	respondJSON(w, http.StatusOK, alert)
}
