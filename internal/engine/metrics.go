package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла валидация целиком
	RequestDuration *prometheus.HistogramVec

	// Traffic: вердикты по типам
	VerdictTotal *prometheus.CounterVec

	// Сработки отзыва по аномалиям
	AnomalyRevocations prometheus.Counter

	// Saturation: очередь HITL-тикетов
	PendingApprovals prometheus.Gauge

	// Audit: деградация хранилища реестра (0 - ок, 1 - fail-closed)
	LedgerDegraded prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern: без регистратора метрики летят в локальный registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "avara_validation_duration_seconds",
			Help:    "Histogram of action validation latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"verdict"}),

		VerdictTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "avara_verdicts_total",
			Help: "Total number of rendered verdicts by type and reason class.",
		}, []string{"verdict", "class"}),

		AnomalyRevocations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "avara_anomaly_revocations_total",
			Help: "Identities revoked by the burst detector.",
		}),

		PendingApprovals: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "avara_pending_approvals",
			Help: "Approval tickets currently awaiting a human decision.",
		}),

		LedgerDegraded: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "avara_ledger_degraded",
			Help: "1 while the audit storage circuit breaker is open (engine fails closed).",
		}),
	}
}
