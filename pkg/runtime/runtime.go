// Package runtime boots and supervises a medquery process: component
// assembly, the HTTP API, the metrics endpoint, and coordinated shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medquery/medquery/pkg/component"
	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/logger"
	"github.com/medquery/medquery/pkg/observability"
	"github.com/medquery/medquery/pkg/server"
)

const metricsShutdownTimeout = 5 * time.Second

// Runtime owns the process: the component manager, the HTTP API, the
// metrics endpoint, and the optional configuration watch.
type Runtime struct {
	config        *config.Config
	components    *component.ComponentManager
	observability *observability.Manager
	httpServer    *server.Server
	loader        *config.Loader

	// logLevel tracks the level currently in effect. Only the watch
	// goroutine touches it after Start.
	logLevel string
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfigWatch makes Start reload configuration through the loader
// whenever its provider signals a change.
func WithConfigWatch(loader *config.Loader) Option {
	return func(r *Runtime) {
		r.loader = loader
	}
}

// New assembles a runtime from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	components, err := component.NewComponentManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	httpServer, err := server.New(&cfg.Server, server.Deps{
		Chat:    components.GetOrchestrator(),
		Search:  components.GetSearchService(),
		Servers: components.GetServerRegistry(),
		LLMs:    components.GetLLMRegistry(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	r := &Runtime{
		config:        cfg,
		components:    components,
		observability: observability.NewManager(*cfg.Observability),
		httpServer:    httpServer,
		logLevel:      cfg.Logging.Level,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Components returns the component manager.
func (r *Runtime) Components() *component.ComponentManager {
	return r.components
}

// Start brings the process up and blocks until ctx is cancelled or a
// server fails. Tool discovery runs before the HTTP API accepts traffic
// so seeded MCP servers are usable from the first request.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.observability.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	r.components.DiscoverTools(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return r.httpServer.Start()
	})

	var metricsServer *http.Server
	if r.observability.MetricsEnabled() {
		metricsServer = r.newMetricsServer()
		group.Go(func() error {
			slog.Info("Metrics endpoint listening", "address", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	if r.loader != nil {
		r.loader.SetOnChange(r.applyReload)
		group.Go(func() error {
			if err := r.loader.Watch(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("config watch error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		var errs []error
		if err := r.httpServer.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return group.Wait()
}

// Close releases components and flushes telemetry. Call after Start
// returns.
func (r *Runtime) Close() error {
	var errs []error

	if err := r.components.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing components: %w", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := r.observability.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down observability: %w", err))
	}

	return errors.Join(errs...)
}

// applyReload swaps the settings that are safe to change while running.
// Currently that is the log level; provider, server, and observability
// changes take effect on the next restart.
func (r *Runtime) applyReload(newConfig *config.Config) {
	if newConfig.Logging.Level != r.logLevel {
		level, err := logger.ParseLevel(newConfig.Logging.Level)
		if err != nil {
			slog.Warn("Reloaded log level is invalid, keeping current",
				"level", newConfig.Logging.Level)
			return
		}
		logger.SetLevel(level)
		r.logLevel = newConfig.Logging.Level
		slog.Info("Log level changed", "level", r.logLevel)
	}
}

func (r *Runtime) newMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", r.observability.MetricsPort()),
		Handler: mux,
	}
}
