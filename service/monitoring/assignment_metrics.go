/*
 * @module service/monitoring/assignment_metrics
 * @description 分配运行的Prometheus指标：运行次数、回退次数、需复核次数、无效行数、耗时与清理数量
 * @architecture 分层架构 - 监控层
 * @stateFlow 分配运行/清理任务 -> 指标记录 -> /metrics 暴露
 * @rules 指标只反映已持久化的运行；数据不足的运行只计入outcome=insufficient_data
 * @dependencies github.com/prometheus/client_golang
 * @refs service/assignment/assignment_service.go, service/cleanup/run_cleanup_service.go, main.go
 */

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 运行结果标签
const (
	OutcomeAssigned         = "assigned"
	OutcomeFallback         = "fallback"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeError            = "error"
)

// AssignmentMetrics 分配运行指标
type AssignmentMetrics struct {
	runs           *prometheus.CounterVec
	fallback       prometheus.Counter
	reviewRequired prometheus.Counter
	invalidRows    prometheus.Counter
	duration       *prometheus.HistogramVec
	pruned         prometheus.Counter
}

// NewAssignmentMetrics 创建并注册指标；reg为nil时只创建不注册
func NewAssignmentMetrics(reg prometheus.Registerer) *AssignmentMetrics {
	m := &AssignmentMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_assignment_runs_total",
			Help: "Assignment runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		fallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coverage_assignment_fallback_total",
			Help: "Persisted runs that applied the default network.",
		}),
		reviewRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coverage_assignment_review_required_total",
			Help: "Persisted runs flagged for manual review.",
		}),
		invalidRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coverage_assignment_invalid_rows_total",
			Help: "Census rows whose ZIP did not map to a catalog network.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverage_assignment_duration_seconds",
			Help:    "Time to compute and persist an assignment run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coverage_assignment_runs_pruned_total",
			Help: "Superseded assignment runs removed by retention cleanup.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.fallback, m.reviewRequired, m.invalidRows, m.duration, m.pruned)
	}
	return m
}

// ObserveRun 记录一次已持久化的运行
func (m *AssignmentMetrics) ObserveRun(mode string, fallbackUsed, reviewRequired bool, invalidRows int, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeAssigned
	if fallbackUsed {
		outcome = OutcomeFallback
		m.fallback.Inc()
	}
	if reviewRequired {
		m.reviewRequired.Inc()
	}
	m.runs.WithLabelValues(mode, outcome).Inc()
	m.invalidRows.Add(float64(invalidRows))
	m.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveFailure 记录未持久化的运行
func (m *AssignmentMetrics) ObserveFailure(mode, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(mode, outcome).Inc()
}

// ObservePruned 记录清理数量
func (m *AssignmentMetrics) ObservePruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}
