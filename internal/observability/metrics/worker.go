package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	sweepRunsTotal  *prometheus.CounterVec
	sweepDeleted    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oakb",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by terminal status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oakb",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "oakb",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oakb",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between task submission and worker pickup.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	sweepRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oakb",
			Subsystem: "worker",
			Name:      "sweep_runs_total",
			Help:      "Total maintenance sweep runs by kind and outcome.",
		},
		[]string{"service", "kind", "outcome"},
	)
	sweepDeleted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oakb",
			Subsystem: "worker",
			Name:      "sweep_documents_deleted_total",
			Help:      "Knowledge-base documents deleted by maintenance sweeps.",
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, sweepRunsTotal, sweepDeleted)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		sweepRunsTotal:  sweepRunsTotal,
		sweepDeleted:    sweepDeleted,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service, status string, duration time.Duration) {
	m.processInFlight.Dec()
	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveSweep(service, kind string, deleted int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.sweepRunsTotal.WithLabelValues(service, kind, outcome).Inc()
	if deleted > 0 {
		m.sweepDeleted.WithLabelValues(service, kind).Add(float64(deleted))
	}
}
