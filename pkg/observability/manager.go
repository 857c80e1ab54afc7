package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/snow-ghost/autotune/pkg/logging"
	"github.com/snow-ghost/autotune/pkg/metrics"
	"github.com/snow-ghost/autotune/pkg/tracing"
)

// Manager manages all observability components of a tuning run
type Manager struct {
	registry *prometheus.Registry
	metrics  *metrics.SearchMetrics
	tracer   *tracing.Tracer
	logger   *logging.Logger
	server   *http.Server
}

// Config holds observability configuration
type Config struct {
	Logging logging.Config
	Tracing tracing.Config
	// MetricsAddr enables a /metrics listener when set.
	MetricsAddr string
}

// NewManager creates a new observability manager. Metrics are registered
// on a private registry.
func NewManager(config Config) (*Manager, error) {
	// Create logger
	logger, err := logging.NewLogger(config.Logging)
	if err != nil {
		return nil, err
	}

	// Create tracer
	tracer, err := tracing.NewTracer(config.Tracing)
	if err != nil {
		return nil, err
	}

	// Create metrics
	registry := prometheus.NewRegistry()
	m := &Manager{
		registry: registry,
		metrics:  metrics.NewSearchMetrics(registry),
		tracer:   tracer,
		logger:   logger,
	}

	if config.MetricsAddr != "" {
		m.serveMetrics(config.MetricsAddr)
	}
	return m, nil
}

func (m *Manager) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		m.logger.Info("Metrics endpoint listening", "addr", addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Metrics endpoint failed", "error", err.Error())
		}
	}()
}

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.SearchMetrics {
	return m.metrics
}

// GetRegistry returns the registry the metrics live on
func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// Shutdown stops the metrics listener and flushes traces and logs
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := m.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	// Syncing a terminal fails on some platforms.
	_ = m.logger.Sync()

	return errors.Join(errs...)
}
