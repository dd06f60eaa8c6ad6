package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/externalcpi/pkg/cpi"
)

// Metrics provides Prometheus metrics for CPI calls. It implements
// cpi.CallObserver.
type Metrics struct {
	config MetricsConfig

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	errorsByKind *prometheus.CounterVec
	retryable    *prometheus.CounterVec
	nonZeroExit  *prometheus.CounterVec
	inFlight     *prometheus.GaugeVec

	registry *prometheus.Registry
}

var _ cpi.CallObserver = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// no-op instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cpi_calls_total",
				Help:      "Total number of CPI calls by outcome",
			},
			[]string{"cpi", "method", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cpi_call_duration_seconds",
				Help:      "Duration of CPI calls in seconds",
				Buckets:   buckets,
			},
			[]string{"cpi", "method"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cpi_errors_total",
				Help:      "Total number of CPI errors by kind",
			},
			[]string{"cpi", "method", "kind"},
		),
		retryable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cpi_retryable_errors_total",
				Help:      "Total number of CPI errors reported with ok_to_retry",
			},
			[]string{"cpi", "method"},
		),
		nonZeroExit: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cpi_nonzero_exit_total",
				Help:      "Total number of CPI processes that exited with a non-zero status",
			},
			[]string{"cpi", "method"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cpi_calls_in_flight",
				Help:      "Current number of running CPI processes",
			},
			[]string{"cpi"},
		),
	}

	registry.MustRegister(
		m.calls,
		m.callDuration,
		m.errorsByKind,
		m.retryable,
		m.nonZeroExit,
		m.inFlight,
	)

	return m, nil
}

// ObserveCall records a finished CPI call.
func (m *Metrics) ObserveCall(_ context.Context, rec *cpi.CallRecord) {
	if m.calls == nil {
		return
	}

	m.calls.WithLabelValues(rec.CPI, rec.Method, rec.Outcome()).Inc()
	m.callDuration.WithLabelValues(rec.CPI, rec.Method).Observe(rec.Duration.Seconds())

	if rec.ExitStatus > 0 {
		m.nonZeroExit.WithLabelValues(rec.CPI, rec.Method).Inc()
	}

	var cpiErr *cpi.Error
	if errors.As(rec.Err, &cpiErr) {
		m.errorsByKind.WithLabelValues(rec.CPI, rec.Method, string(cpiErr.Kind)).Inc()
		if cpi.IsRetryable(cpiErr) {
			m.retryable.WithLabelValues(rec.CPI, rec.Method).Inc()
		}
	}
}

// TrackInFlight increments the running gauge for name and returns the
// matching decrement.
func (m *Metrics) TrackInFlight(name string) func() {
	if m.inFlight == nil {
		return func() {}
	}
	g := m.inFlight.WithLabelValues(name)
	g.Inc()
	return g.Dec
}

// WrapRunner counts running CPI processes of name in the in-flight gauge.
func (m *Metrics) WrapRunner(name string, next cpi.CommandRunner) cpi.CommandRunner {
	if next == nil {
		next = cpi.ExecRunner{}
	}
	return &inFlightRunner{name: name, next: next, metrics: m}
}

type inFlightRunner struct {
	name    string
	next    cpi.CommandRunner
	metrics *Metrics
}

func (r *inFlightRunner) Run(ctx context.Context, cmd cpi.Command) (*cpi.Output, error) {
	done := r.metrics.TrackInFlight(r.name)
	defer done()
	return r.next.Run(ctx, cmd)
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewMetricsServer builds the HTTP server exposing metrics. The caller owns
// its lifecycle.
func (m *Metrics) NewMetricsServer() *http.Server {
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StartMetricsServer serves metrics in the background. Listen errors are
// sent to logger.
func (m *Metrics) StartMetricsServer(logger *Logger) *http.Server {
	if !m.config.Enabled {
		return nil
	}

	server := m.NewMetricsServer()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return server
}
