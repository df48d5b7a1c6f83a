// Package cluster Prometheus 指标导出
package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "swift"

// Metrics 集群协调指标
type Metrics struct {
	// 心跳指标
	HeartbeatTotal  prometheus.Counter
	HeartbeatErrors prometheus.Counter

	// reconcile 指标
	ReconcileRuns     *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec

	// 状态规模
	MembersOnline    prometheus.Gauge
	JobConfigs       prometheus.Gauge
	JobRecordsActive prometheus.Gauge
	TasksActive      prometheus.Gauge

	// 写路径
	RecordsCreated prometheus.Counter
	CASConflicts   prometheus.Counter
}

// NewMetrics 创建指标实例
//
// reg 为 nil 时挂到全局注册表；测试传入独立的 NewRegistry
// 避免多个 Cluster 实例重复注册。
func NewMetrics(reg prometheus.Registerer, memberID string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"member_id": memberID}

	return &Metrics{
		HeartbeatTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "heartbeat_total",
			Help:        "Total heartbeats sent",
			ConstLabels: labels,
		}),
		HeartbeatErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "heartbeat_errors_total",
			Help:        "Total heartbeat errors",
			ConstLabels: labels,
		}),
		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "reconcile_runs_total",
			Help:        "Total reconcile runs per reconciler",
			ConstLabels: labels,
		}, []string{"reconciler"}),
		ReconcileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Name:        "reconcile_duration_seconds",
			Help:        "Reconcile duration in seconds per reconciler",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: labels,
		}, []string{"reconciler"}),
		MembersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "members_online",
			Help:        "Number of online cluster members",
			ConstLabels: labels,
		}),
		JobConfigs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "job_configs",
			Help:        "Number of job configs in memory",
			ConstLabels: labels,
		}),
		JobRecordsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "job_records_active",
			Help:        "Number of active job records",
			ConstLabels: labels,
		}),
		TasksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "tasks_active",
			Help:        "Number of active tasks",
			ConstLabels: labels,
		}),
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "records_created_total",
			Help:        "Job records created by the time-plan scheduler",
			ConstLabels: labels,
		}),
		CASConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "cas_conflicts_total",
			Help:        "CAS conflicts observed (silently retried)",
			ConstLabels: labels,
		}),
	}
}
