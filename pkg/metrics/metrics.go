// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "llm_sentinel"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 请求采集
	RequestsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "requests_scored_total",
			Help:      "Total number of LLM requests scored and logged",
		},
		[]string{"project_id", "model"},
	)

	RiskScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// 业务指标 - 异常检测
	DetectionRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "runs_total",
			Help:      "Total number of scheduled detection runs",
		},
	)

	DetectionRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "run_duration_seconds",
			Help:      "Scheduled detection run duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	DetectorTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "detector_triggered_total",
			Help:      "Total number of detector triggers by type",
		},
		[]string{"trigger_type"},
	)

	DetectionProjectErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "project_errors_total",
			Help:      "Total number of per-project failures during detection runs",
		},
	)

	// 业务指标 - 事件与修复
	IncidentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incident",
			Name:      "created_total",
			Help:      "Total number of incidents created",
		},
		[]string{"trigger_type", "severity"},
	)

	IncidentsResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incident",
			Name:      "resolved_total",
			Help:      "Total number of incidents resolved",
		},
	)

	RemediationsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remediation",
			Name:      "applied_total",
			Help:      "Total number of remediation actions applied",
		},
		[]string{"action_type"},
	)
)
