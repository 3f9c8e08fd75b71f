package output

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

type PrometheusMetrics struct {
	actionsDispatched *prometheus.CounterVec
	dispatchTime      prometheus.Histogram
	enrichments       *prometheus.CounterVec
	enrichmentTime    prometheus.Histogram
	banJobs           *prometheus.CounterVec
	queueDepth        prometheus.Gauge
	memoryUsage       prometheus.GaugeFunc

	gatherer prometheus.Gatherer
	handlers map[string]http.Handler
	server   *http.Server
	mu       sync.Mutex
}

var _ ports.PipelineObserver = (*PrometheusMetrics)(nil)

type MetricsConfig struct {
	Port string
	Path string
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Port: ":9090",
		Path: "/metrics",
	}
}

// NewPrometheusMetrics registers the pipeline metrics on reg. A nil reg
// uses the default registry.
func NewPrometheusMetrics(namespace string, reg *prometheus.Registry) *PrometheusMetrics {
	if namespace == "" {
		namespace = "succeed2ban"
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	m := &PrometheusMetrics{gatherer: gatherer, handlers: make(map[string]http.Handler)}

	m.actionsDispatched = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_dispatched_total",
		Help:      "Total number of actions dispatched by kind",
	}, []string{"kind"})

	m.dispatchTime = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent offering one action to every component",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
	})

	m.enrichments = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichments_total",
		Help:      "Geolocation lookups by result",
	}, []string{"result"})

	m.enrichmentTime = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "enrichment_duration_seconds",
		Help:      "Time spent resolving one address",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	m.banJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ban_jobs_total",
		Help:      "Ban and unban jobs by operation and outcome",
	}, []string{"op", "outcome"})

	m.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bus_queue_depth",
		Help:      "Number of actions waiting on the bus",
	})

	m.memoryUsage = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Current memory usage in bytes",
	}, func() float64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.Alloc)
	})

	return m
}

func (m *PrometheusMetrics) ObserveAction(kind domain.Kind, elapsed time.Duration) {
	m.actionsDispatched.WithLabelValues(string(kind)).Inc()
	m.dispatchTime.Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) ObserveEnrichment(result string, elapsed time.Duration) {
	m.enrichments.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.enrichmentTime.Observe(elapsed.Seconds())
	}
}

func (m *PrometheusMetrics) ObserveBanJob(op string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	m.banJobs.WithLabelValues(op, outcome).Inc()
}

func (m *PrometheusMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// Handle mounts an extra handler (e.g. the health check) on the metrics
// server. It must be called before StartServer.
func (m *PrometheusMetrics) Handle(path string, h http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

func (m *PrometheusMetrics) StartServer(config MetricsConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(config.Path, promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	for path, h := range m.handlers {
		mux.Handle(path, h)
	}

	m.server = &http.Server{
		Addr:              config.Port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", config.Port).Str("path", config.Path).Msg("Starting Prometheus metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (m *PrometheusMetrics) StopServer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return m.server.Close()
	}
	return nil
}
