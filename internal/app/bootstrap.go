package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/auth"
	"portal-admin/internal/db"
	"portal-admin/internal/export"
	"portal-admin/internal/gate"
	"portal-admin/internal/observability"
	"portal-admin/internal/registration"
)

type Options struct {
	LoadDotEnv bool
	LogOutput  io.Writer
}

type Runtime struct {
	Config    Config
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Session   *auth.Manager
	Auth      *auth.Service
	API       *apiclient.Client
	Gate      *gate.Gate
	View      *registration.Coordinator
	Selection *registration.Selection
	Executor  *registration.Executor

	database *sql.DB
	plain    *http.Client
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	cfg, err := LoadConfig(options)
	if err != nil {
		return nil, err
	}
	return BuildWithConfig(ctx, cfg, options)
}

func BuildWithConfig(ctx context.Context, cfg Config, options Options) (*Runtime, error) {
	output := options.LogOutput
	if output == nil {
		output = os.Stderr
	}
	logger := observability.NewLoggerTo(output)
	metrics := observability.NewMetrics()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	store, database, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	session := auth.NewManager(store).WithLockout(cfg.LoginMaxAttempts, cfg.LoginLockWindow)
	if err := session.Restore(ctx); err != nil {
		logger.Warn("session_restore_failed", map[string]any{"error": err.Error()})
	}

	plain := &http.Client{
		Timeout:   cfg.APITimeout,
		Transport: observability.NewTransport(http.DefaultTransport, logger, metrics),
	}
	authorized := &http.Client{
		Timeout: cfg.APITimeout,
		Transport: observability.NewTransport(
			auth.NewBearerTransport(http.DefaultTransport, session, logger, metrics),
			logger,
			metrics,
		),
	}

	api := apiclient.New(cfg.APIURL, authorized)
	authService := auth.NewService(api, session, logger)
	sessionGate := gate.New(session, logger, metrics).WithInterval(cfg.SessionCheckInterval)

	view := registration.NewCoordinator(api, session, logger, metrics).
		WithTimeout(cfg.APITimeout).
		WithLimit(cfg.PageLimit)
	selection := registration.NewSelection(view)
	executor := registration.NewExecutor(api, view, selection, session, logger, metrics)

	logger.Info("runtime_ready", map[string]any{
		"api_url":       cfg.APIURL,
		"authenticated": session.IsValid(),
	})

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Session:   session,
		Auth:      authService,
		API:       api,
		Gate:      sessionGate,
		View:      view,
		Selection: selection,
		Executor:  executor,
		database:  database,
		plain:     plain,
	}, nil
}

// ExportSink resolves an export target. S3 uploads go through the logged
// transport but never carry the admin token.
func (r *Runtime) ExportSink(ctx context.Context, target string, stdout io.Writer) (export.Sink, error) {
	s3cfg := r.Config.ExportS3
	s3cfg.HTTPClient = r.plain
	return export.Open(ctx, target, s3cfg, stdout)
}

func (r *Runtime) Close() error {
	r.View.Close()
	observability.FlushSentry()

	if r.Config.MetricsTextfile != "" {
		if err := r.Metrics.WriteTextfile(r.Config.MetricsTextfile); err != nil {
			r.Logger.Warn("metrics_write_failed", map[string]any{"error": err.Error()})
		}
	}

	if r.database != nil {
		return r.database.Close()
	}
	return nil
}

func openStore(ctx context.Context, cfg Config) (auth.Store, *sql.DB, error) {
	if cfg.SessionStoreDSN == MemoryStoreDSN {
		return auth.NewMemoryStore(), nil, nil
	}

	database, dialect, err := db.Open(cfg.SessionStoreDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("ping session store: %w", err)
	}

	if err := db.RunMigrations(ctx, database, dialect); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := auth.NewRepository(database, dialect)
	if cfg.SessionSealKey != "" {
		sealer, err := auth.NewSealer(cfg.SessionSealKey)
		if err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("init session sealer: %w", err)
		}
		repo.WithSealer(sealer)
	}

	return repo, database, nil
}
