// Package metrics 提供Prometheus监控指标
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowiq_http_requests_total",
		Help: "HTTP请求总数",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowiq_http_request_duration_seconds",
		Help:    "HTTP请求延迟",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "path"})

	scheduleBuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowiq_schedule_build_total",
		Help: "排产执行次数",
	}, []string{"status"})

	scheduleBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowiq_schedule_build_duration_seconds",
		Help:    "排产执行延迟",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})

	placedOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowiq_placed_operations",
		Help: "最近一次排产放置的工序数",
	})

	infeasibleOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowiq_infeasible_operations",
		Help: "最近一次排产无法放置的工序数",
	})

	openAlerts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowiq_open_alerts",
		Help: "当前未解决告警数",
	}, []string{"severity"})

	promiseChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowiq_promise_checks_total",
		Help: "交期承诺查询次数",
	}, []string{"mode", "outcome"})

	scenariosComputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowiq_scenarios_computed_total",
		Help: "模拟场景计算次数",
	})

	kpiGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowiq_kpi",
		Help: "最近一次KPI快照",
	}, []string{"metric"})
)

// Handler 返回指标HTTP处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordScheduleBuild 记录排产执行指标
func RecordScheduleBuild(success bool, placed, infeasible int, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	scheduleBuildTotal.WithLabelValues(status).Inc()
	scheduleBuildDuration.Observe(duration.Seconds())
	placedOperations.Set(float64(placed))
	infeasibleOperations.Set(float64(infeasible))
}

// SetOpenAlerts 设置未解决告警数
func SetOpenAlerts(severity string, count int) {
	openAlerts.WithLabelValues(severity).Set(float64(count))
}

// RecordPromiseCheck 记录承诺查询指标
func RecordPromiseCheck(mode string, ok bool) {
	outcome := "available"
	if !ok {
		outcome = "unavailable"
	}
	promiseChecksTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordScenarioComputed 记录场景计算
func RecordScenarioComputed() {
	scenariosComputedTotal.Inc()
}

// SetKPI 设置KPI指标值
func SetKPI(metric string, value float64) {
	kpiGauge.WithLabelValues(metric).Set(value)
}
