package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/nhb-competitie-api/pkg/jobs"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the mutation worker.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	mutationTime    *prometheus.HistogramVec
	pings           *prometheus.CounterVec
	pingErrors      *prometheus.CounterVec
	processorState  *prometheus.GaugeVec
	enqueued        *prometheus.CounterVec
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

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_count_cache_lookups_total",
		Help: "Cart count cache lookups by result",
	}, []string{"result"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mutations_processed_total",
		Help: "Mutations handled by the background processors",
	}, []string{"queue", "code", "outcome"})

	mutationTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mutation_duration_seconds",
		Help:    "Time spent handling one mutation",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"queue"})

	pings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mutation_pings_total",
		Help: "Wake-ups received by the background processors",
	}, []string{"queue"})

	pingErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mutation_ping_errors_total",
		Help: "Failed waits on the ping channel; the processor falls back to polling",
	}, []string{"queue"})

	processorState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mutation_processor_state",
		Help: "Processor state: 0 idle, 1 fetching, 2 processing, 3 stopped",
	}, []string{"queue"})

	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mutations_enqueued_total",
		Help: "Mutations written by the API",
	}, []string{"queue", "code"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, mutations, mutationTime, pings,
		pingErrors, processorState, enqueued, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
		mutations:       mutations,
		mutationTime:    mutationTime,
		pings:           pings,
		pingErrors:      pingErrors,
		processorState:  processorState,
		enqueued:        enqueued,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup counts a cart count cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordEnqueue counts a mutation written by the API.
func (m *MetricsService) RecordEnqueue(queue, code string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(queue, code).Inc()
}

// SetProcessorState implements jobs.Observer.
func (m *MetricsService) SetProcessorState(queue string, state jobs.State) {
	if m == nil {
		return
	}
	m.processorState.WithLabelValues(queue).Set(float64(state))
}

// ObserveMutation implements jobs.Observer.
func (m *MetricsService) ObserveMutation(queue, code, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(queue, code, outcome).Inc()
	m.mutationTime.WithLabelValues(queue).Observe(duration.Seconds())
}

// IncPing implements jobs.Observer.
func (m *MetricsService) IncPing(queue string) {
	if m == nil {
		return
	}
	m.pings.WithLabelValues(queue).Inc()
}

// IncPingError implements jobs.Observer.
func (m *MetricsService) IncPingError(queue string) {
	if m == nil {
		return
	}
	m.pingErrors.WithLabelValues(queue).Inc()
}

var _ jobs.Observer = (*MetricsService)(nil)
