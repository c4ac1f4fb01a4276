package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce    sync.Once
	enqueuedTotal  *prometheus.CounterVec
	processedTotal *prometheus.CounterVec
)

// MustRegisterMetrics registers the task counters.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		enqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_enqueued_total",
			Help:      "Tasks handed to the queue grouped by outcome.",
		}, []string{"type", "result"})
		processedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_processed_total",
			Help:      "Tasks processed grouped by status.",
		}, []string{"type", "status"})
		reg.MustRegister(enqueuedTotal, processedTotal)
	})
}

func countEnqueued(taskType, result string) {
	if enqueuedTotal != nil {
		enqueuedTotal.WithLabelValues(taskType, result).Inc()
	}
}

func countProcessed(taskType, status string) {
	if processedTotal != nil {
		processedTotal.WithLabelValues(taskType, status).Inc()
	}
}
