package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	// ItemsPosted — успешно доставленные публикации (kind: post|thread).
	ItemsPosted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_items_posted_total",
		Help: "Items delivered successfully",
	}, []string{"kind"})

	// ItemsRetried — ошибки доставки, после которых назначен повтор.
	ItemsRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_items_retried_total",
		Help: "Delivery failures rescheduled with backoff",
	}, []string{"kind"})

	// ItemsFailed — окончательно упавшие публикации (reason: категория ошибки).
	ItemsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_items_failed_total",
		Help: "Items moved to FAILED",
	}, []string{"kind", "reason"})

	// ClaimConflicts — claim не удался, публикацию забрал другой инстанс.
	ClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "herald_claim_conflicts_total",
		Help: "Claims lost to a concurrent scheduler",
	})

	// StaleReverted — зависшие PROCESSING, возвращённые в SCHEDULED.
	StaleReverted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "herald_stale_reverted_total",
		Help: "Stale PROCESSING claims reverted to SCHEDULED",
	})

	// PassDuration — длительность одного прохода планировщика.
	PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "herald_pass_duration_seconds",
		Help:    "Duration of a scheduler pass",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// QueueAssigned — публикации, получившие слот из очереди.
	QueueAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "herald_queue_assigned_total",
		Help: "Queued items assigned to a slot",
	})

	// QueueOverflow — публикации всех аккаунтов, оставшиеся без слота
	// после последнего прохода распределения.
	QueueOverflow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "herald_queue_overflow",
		Help: "Queued items left without a slot after the last allocation pass",
	})

	// ClaimsLost — доставки, чей claim вернул reaper до записи результата.
	ClaimsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "herald_claims_lost_total",
		Help: "Deliveries whose claim was reverted before the result was stored",
	})
)

// RegisterMetrics регистрирует метрики в default registry. Повторный вызов безопасен.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ItemsPosted,
			ItemsRetried,
			ItemsFailed,
			ClaimConflicts,
			ClaimsLost,
			StaleReverted,
			PassDuration,
			QueueAssigned,
			QueueOverflow,
		)
	})
}

// MetricsHandler возвращает /metrics handler.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
