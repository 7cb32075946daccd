package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NudgesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nudges_sent_total",
		Help: "Количество отправленных напоминаний по категориям",
	}, []string{"category"})

	NudgeSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nudge_send_errors_total",
		Help: "Ошибки отправки напоминаний",
	})

	NudgeSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nudges_skipped_total",
		Help: "Пропущенные кандидаты по причинам",
	}, []string{"category", "reason"})

	NudgeRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nudge_run_seconds",
		Help:    "Длительность одного тика планировщика",
		Buckets: prometheus.DefBuckets,
	})

	InteractionCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "interaction_callbacks_total",
		Help: "Входящие callback-и мессенджера по исходу",
	}, []string{"outcome"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NudgesSentTotal,
		NudgeSendErrors,
		NudgeSkippedTotal,
		NudgeRunSeconds,
		InteractionCallbacksTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
