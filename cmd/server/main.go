// Package main is the entrypoint for the FHIRSpective API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aks129/fhirspective/internal/api"
	"github.com/aks129/fhirspective/internal/api/handler"
	mw "github.com/aks129/fhirspective/internal/api/middleware"
	"github.com/aks129/fhirspective/internal/api/response"
	"github.com/aks129/fhirspective/internal/assessment"
	"github.com/aks129/fhirspective/internal/cache"
	"github.com/aks129/fhirspective/internal/config"
	"github.com/aks129/fhirspective/internal/databricks"
	"github.com/aks129/fhirspective/internal/fhir"
	"github.com/aks129/fhirspective/internal/store"
	"github.com/aks129/fhirspective/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "auth_disabled", cfg.Server.AuthDisabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and resolve the demo tenant
	pgStore := store.NewPostgresStore(pool)

	demoTenant, err := pgStore.GetDefaultTenant(ctx)
	if err != nil {
		return fmt.Errorf("load default tenant: %w", err)
	}

	// 6. FHIR client factory and assessment runner
	clients := fhir.DefaultFactory(cfg.FHIR.DefaultTimeout)
	runner := assessment.NewService(pgStore, redisCache, clients,
		cfg.Assessment.RunTimeout, cfg.FHIR.SampleCacheTTL)

	// 7. Databricks connector with optional profile fallback
	connector := databricks.NewSDK()
	profile := profileLoader(cfg.Databricks)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore, cfg.Server.AuthDisabled, demoTenant.ID)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)

	deps := api.Dependencies{
		Auth:           auth,
		RateLimit:      rateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,

		HealthHandler: healthHandler(pgStore, redisCache),

		CreateServer: handler.NewCreateServerHandler(pgStore),
		ListServers:  handler.NewListServersHandler(pgStore),
		GetServer:    handler.NewGetServerHandler(pgStore),
		UpdateServer: handler.NewUpdateServerHandler(pgStore),
		DeleteServer: handler.NewDeleteServerHandler(pgStore),
		TestServer:   handler.NewTestServerHandler(pgStore, clients),

		CreateAssessment:  handler.NewCreateAssessmentHandler(pgStore, cfg.Assessment.MaxSampleSize),
		ListAssessments:   handler.NewListAssessmentsHandler(pgStore),
		GetAssessment:     handler.NewGetAssessmentHandler(pgStore),
		RunAssessment:     handler.NewRunAssessmentHandler(pgStore, runner),
		AssessmentStatus:  handler.NewAssessmentStatusHandler(runner),
		AssessmentResults: handler.NewAssessmentResultsHandler(pgStore),

		GetDatabricksConfig: handler.NewGetDatabricksConfigHandler(pgStore),
		PutDatabricksConfig: handler.NewPutDatabricksConfigHandler(pgStore),
		TestDatabricks:      handler.NewTestDatabricksHandler(pgStore, connector, profile),
		ExportDatabricks:    handler.NewExportDatabricksHandler(pgStore, connector, profile),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// profileLoader resolves ~/.databrickscfg lazily so a missing file only
// matters when a tenant without a stored config calls a Databricks endpoint.
func profileLoader(cfg config.DatabricksConfig) handler.ProfileLoader {
	path := cfg.ConfigFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".databrickscfg")
	}
	return func() (*models.DatabricksConfig, error) {
		return databricks.LoadProfile(path, cfg.Profile)
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
