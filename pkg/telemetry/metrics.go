package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for portcheck.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Unit metrics
	unitsProcessed *prometheus.CounterVec
	unitAttempts   *prometheus.HistogramVec
	phaseDuration  *prometheus.HistogramVec

	// Test metrics
	casesGenerated *prometheus.CounterVec
	casesExecuted  *prometheus.CounterVec
	caseMismatches *prometheus.CounterVec

	// Generator metrics
	generatorCalls    *prometheus.CounterVec
	generatorDuration *prometheus.HistogramVec
	generatorErrors   *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// System metrics
	activeRuns  prometheus.Gauge
	queuedUnits prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of migration runs started",
			},
			[]string{"project"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of migration runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of migration runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		unitsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_processed_total",
				Help:      "Total number of translation units processed",
			},
			[]string{"status"},
		),
		unitAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_attempts",
				Help:      "Conversion attempts taken per translation unit",
				Buckets:   []float64{1, 2, 3, 4, 5},
			},
			[]string{"status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of pipeline phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase", "backend"},
		),

		casesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "test_cases_generated_total",
				Help:      "Total number of test cases generated",
			},
			[]string{"category"},
		),
		casesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "test_cases_executed_total",
				Help:      "Total number of test cases executed",
			},
			[]string{"backend", "status"},
		),
		caseMismatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "test_case_mismatches_total",
				Help:      "Total number of differential mismatches by reason",
			},
			[]string{"reason"},
		),

		generatorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generator_calls_total",
				Help:      "Total number of conversion generator calls",
			},
			[]string{"generator"},
		),
		generatorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generator_call_duration_seconds",
				Help:      "Duration of conversion generator calls in seconds",
				Buckets:   buckets,
			},
			[]string{"generator"},
		),
		generatorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generator_errors_total",
				Help:      "Total number of conversion generator errors",
			},
			[]string{"generator"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by classification",
			},
			[]string{"kind"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active migration runs",
			},
		),
		queuedUnits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_units",
				Help:      "Current number of units waiting on dependencies",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.unitsProcessed,
		m.unitAttempts,
		m.phaseDuration,
		m.casesGenerated,
		m.casesExecuted,
		m.caseMismatches,
		m.generatorCalls,
		m.generatorDuration,
		m.generatorErrors,
		m.errorsByKind,
		m.activeRuns,
		m.queuedUnits,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(project string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(project).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Unit Metrics

// RecordUnitProcessed records a unit reaching a terminal status together with
// the attempts it took.
func (m *Metrics) RecordUnitProcessed(status string, attempts int) {
	if m.unitsProcessed == nil {
		return
	}
	m.unitsProcessed.WithLabelValues(status).Inc()
	m.unitAttempts.WithLabelValues(status).Observe(float64(attempts))
}

// RecordPhaseDuration records the duration of one pipeline phase.
func (m *Metrics) RecordPhaseDuration(phase, backend string, duration time.Duration) {
	if m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, backend).Observe(duration.Seconds())
}

// Test Metrics

// RecordCasesGenerated adds generated test cases by category.
func (m *Metrics) RecordCasesGenerated(category string, count int) {
	if m.casesGenerated == nil {
		return
	}
	m.casesGenerated.WithLabelValues(category).Add(float64(count))
}

// RecordCaseExecuted records one executed test case.
func (m *Metrics) RecordCaseExecuted(backend, status string) {
	if m.casesExecuted == nil {
		return
	}
	m.casesExecuted.WithLabelValues(backend, status).Inc()
}

// RecordCaseMismatch records one differential mismatch by reason.
func (m *Metrics) RecordCaseMismatch(reason string) {
	if m.caseMismatches == nil {
		return
	}
	m.caseMismatches.WithLabelValues(reason).Inc()
}

// Generator Metrics

// RecordGeneratorCall records a conversion generator call with its duration.
func (m *Metrics) RecordGeneratorCall(generator string, duration time.Duration) {
	if m.generatorCalls == nil {
		return
	}
	m.generatorCalls.WithLabelValues(generator).Inc()
	m.generatorDuration.WithLabelValues(generator).Observe(duration.Seconds())
}

// RecordGeneratorError records a conversion generator error.
func (m *Metrics) RecordGeneratorError(generator string) {
	if m.generatorErrors == nil {
		return
	}
	m.generatorErrors.WithLabelValues(generator).Inc()
}

// Error Metrics

// RecordError records an error by classification.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// System Metrics

// SetQueuedUnits sets the current number of units waiting on dependencies.
func (m *Metrics) SetQueuedUnits(count float64) {
	if m.queuedUnits == nil {
		return
	}
	m.queuedUnits.Set(count)
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
