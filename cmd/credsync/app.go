package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/credsync/internal/config"
	"github.com/JonMunkholm/credsync/internal/core"
	"github.com/JonMunkholm/credsync/internal/database"
	"github.com/JonMunkholm/credsync/internal/logging"
)

// app holds the wiring shared by the subcommands.
type app struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	metrics *core.Metrics
	logFile io.Closer
}

// loadApp reads configuration and installs the logger. It does not touch
// the database.
func loadApp(configPath string) (*app, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	closer := logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	slog.Debug("configuration loaded", "config", cfg.String())

	return &app{cfg: cfg, metrics: core.NewMetrics(), logFile: closer}, nil
}

// connect opens the pool, applying migrations first when configured.
func (a *app) connect(ctx context.Context) error {
	if a.cfg.Database.AutoMigrate {
		if err := database.Migrate(a.cfg.Database.URL); err != nil {
			return &core.Error{Kind: core.KindConnection, Op: "migrate", Err: err}
		}
	}

	pool, err := database.Connect(ctx, a.cfg.Database)
	if err != nil {
		return &core.Error{Kind: core.KindConnection, Op: "connect", Err: err}
	}
	a.pool = pool
	slog.Info("connected to database", "name", database.Name(a.cfg.Database.URL))
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.logFile.Close(); err != nil {
		slog.Warn("failed to close log file", "error", err)
	}
}

func (a *app) ingestor() *core.Ingestor {
	return core.NewIngestor(
		database.NewAuditLog(a.pool),
		database.NewCanonicalStore(a.pool),
		core.SourcesFromConfig(a.cfg.Source),
		core.WithIngestMetrics(a.metrics),
	)
}

// openValidator gives the Validator its own pooled connection.
func (a *app) openValidator(ctx context.Context) (*core.Validator, error) {
	sess, err := database.OpenSession(ctx, a.pool)
	if err != nil {
		return nil, &core.Error{Kind: core.KindConnection, Op: "open validator", Err: err}
	}
	return core.NewValidator(sess, database.NewRuleEngine(sess), a.cfg.Validation,
		core.WithValidatorMetrics(a.metrics)), nil
}

func (a *app) pipeline() *core.Pipeline {
	opts := []core.PipelineOption{
		core.WithPipelineMetrics(a.metrics, a.cfg.Metrics.TextfilePath),
	}
	if a.cfg.Alert.Enabled {
		opts = append(opts, core.WithNotifier(
			core.NewSMTPNotifier(a.cfg.Alert, nil),
			core.PolicyFromConfig(a.cfg.Alert),
		))
	}
	return core.NewPipeline(a.ingestor(), a.openValidator, a.cfg.Validation.FailureLimit, opts...)
}
