package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the
// allocator API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runsTotal       prometheus.Counter
	placedTotal     prometheus.Counter
	unplacedTotal   prometheus.Counter
	emptySeatsTotal prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_runs_total",
		Help: "Total allocation runs generated",
	})

	placedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_students_placed_total",
		Help: "Total students placed into seats",
	})

	unplacedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_students_unplaced_total",
		Help: "Total students left without a seat",
	})

	emptySeatsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_empty_seats_total",
		Help: "Total seats left empty to break subject adjacency",
	})

	registry.MustRegister(requestDuration, requestTotal, runsTotal, placedTotal, unplacedTotal, emptySeatsTotal)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runsTotal:       runsTotal,
		placedTotal:     placedTotal,
		unplacedTotal:   unplacedTotal,
		emptySeatsTotal: emptySeatsTotal,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestTotal.With(labels).Inc()
}

// ObserveAllocation records the outcome of one allocation run.
func (m *MetricsService) ObserveAllocation(result *models.AllocationResult) {
	if result == nil {
		return
	}
	m.runsTotal.Inc()
	m.placedTotal.Add(float64(len(result.Assignments)))
	m.unplacedTotal.Add(float64(len(result.Unplaced)))

	empty := 0
	for _, layout := range result.Layouts {
		for _, cell := range layout {
			if cell.Empty {
				empty++
			}
		}
	}
	m.emptySeatsTotal.Add(float64(empty))
}
