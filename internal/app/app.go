// Package app wires configuration, services, middleware and routes into
// a runnable HTTP application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"macrolink/internal/config"
	apperrors "macrolink/internal/errors"
	"macrolink/internal/estat"
	"macrolink/internal/infrastructure"
	custommw "macrolink/internal/middleware"
	"macrolink/internal/services"
	transport "macrolink/internal/transport/http"
)

// AppName identifies the service in logs.
const AppName = "macrolink"

// Build identity, stamped via -ldflags at release time.
var (
	Version   = "dev"
	BuildTime = ""
)

// Application is the dependency container: configuration, logger,
// metrics, services and the HTTP server.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *infrastructure.Metrics
	Router  chi.Router
	Server  *http.Server

	analysisService *services.AnalysisService
	exportService   *services.ExportService
	chartService    *services.ChartService
	healthService   *services.HealthService
}

// NewApplication loads configuration and assembles the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig assembles the application from an explicit
// configuration, used by tests.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &Application{
		Config:  cfg,
		Logger:  logger,
		Metrics: infrastructure.NewMetrics(),
	}

	a.initializeServices()
	a.setupRouter()
	a.createServer()

	return a, nil
}

// initializeServices builds the service graph.
func (a *Application) initializeServices() {
	client := estat.NewClient(a.Config.EStat, a.Logger)

	a.analysisService = services.NewAnalysisService(client, a.Config.Analysis, a.Metrics, a.Logger)
	a.exportService = services.NewExportService(a.analysisService, a.Logger)
	a.chartService = services.NewChartService(a.analysisService, a.Logger)
	a.healthService = services.NewHealthService(Version, BuildTime, a.Logger)
}

// setupRouter configures the middleware chain and routes. Ordering:
// RequestID → RealIP → Logger → Recoverer → SecurityHeaders → CORS →
// RateLimiter → Timeout.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StripSlashes)

	// Metrics stay outside the logging and rate-limit chain; scrapes are
	// frequent and should never be throttled or logged per hit.
	r.Handle("/metrics", a.Metrics.Handler())

	errorHandler := apperrors.NewHandler(a.Logger)

	r.Group(func(r chi.Router) {
		r.Use(custommw.StructuredLogger(a.Logger))
		r.Use(custommw.Recoverer(errorHandler))
		r.Use(custommw.SecurityHeaders)
		r.Use(custommw.Compress(5))

		if a.Config.Security.EnableCORS {
			r.Use(custommw.CORS(custommw.CORSConfig{
				AllowedOrigins: a.Config.Security.AllowedOrigins,
				Logger:         a.Logger,
			}))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(custommw.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		// The model search bounds the request latency; the write timeout
		// is the outer budget for the same reason.
		r.Use(custommw.Timeout(a.Config.Server.WriteTimeout, a.Logger))

		a.setupAPIRoutes(r, errorHandler)
	})

	a.Router = r
}

// setupAPIRoutes mounts the API endpoints.
func (a *Application) setupAPIRoutes(r chi.Router, errorHandler *apperrors.Handler) {
	analysisHandler := transport.NewAnalysisHandler(a.analysisService, a.exportService, a.Logger, errorHandler)
	chartHandler := transport.NewChartHandler(a.chartService, a.Logger, errorHandler)
	healthHandler := transport.NewHealthHandler(a.healthService, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", healthHandler.HealthCheck)
		r.Get("/version", healthHandler.Version)
		r.Mount("/analysis", analysisHandler.Routes())
		r.Mount("/chart", chartHandler.Routes())
	})

	r.NotFound(errorHandler.NotFound)
}

// createServer creates the HTTP server.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the HTTP server. Listen errors cancel the run context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level),
	)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()
}

// Stop gracefully stops the HTTP server.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.ErrorContext(ctx, "failed to close log file", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	a.Start(ctx, cancel)

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
