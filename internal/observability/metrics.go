package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	examTransitionsTotal   *prometheus.CounterVec
	examAvailabilityTotal  *prometheus.CounterVec
	examRecordCacheTotal   *prometheus.CounterVec
	examBoardClientsActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_api_requests_total",
			Help: "Exam API requests served, by surface (admin, exams).",
		}, []string{"surface", "method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_api_latency_seconds",
			Help:    "Latency distribution for exam API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"surface", "method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_api_errors_total",
			Help: "Error responses returned by exam API endpoints.",
		}, []string{"surface", "method", "route", "status"})

		examTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_transitions_total",
			Help: "Exam lifecycle transitions by action and outcome.",
		}, []string{"action", "result"})

		examAvailabilityTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_availability_checks_total",
			Help: "Student availability checks by resolved dynamic status.",
		}, []string{"dynamic_status"})

		examRecordCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_record_cache_requests_total",
			Help: "Exam record cache lookups by result.",
		}, []string{"result"})

		examBoardClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exam_board_clients_active",
			Help: "Websocket clients currently subscribed to the exam board.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			examTransitionsTotal,
			examAvailabilityTotal,
			examRecordCacheTotal,
			examBoardClientsActive,
		)
	})
}

// APIRequests exposes the request counter.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the request latency histogram.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the error response counter.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ExamTransitions exposes the lifecycle transition counter.
func ExamTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return examTransitionsTotal
}

// ExamAvailabilityChecks exposes the availability check counter.
func ExamAvailabilityChecks() *prometheus.CounterVec {
	RegisterMetrics()
	return examAvailabilityTotal
}

// ExamRecordCache exposes the record cache hit/miss counter.
func ExamRecordCache() *prometheus.CounterVec {
	RegisterMetrics()
	return examRecordCacheTotal
}

// ExamBoardClients exposes the exam board subscriber gauge.
func ExamBoardClients() prometheus.Gauge {
	RegisterMetrics()
	return examBoardClientsActive
}
