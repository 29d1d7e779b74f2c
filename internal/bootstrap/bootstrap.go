// Package bootstrap wires configuration into the services shared by the api and worker commands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/cds-engine/config"
	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/internal/repository"
	"github.com/jwalitptl/cds-engine/internal/repository/kv"
	"github.com/jwalitptl/cds-engine/internal/repository/postgres"
	"github.com/jwalitptl/cds-engine/internal/service/audit"
	"github.com/jwalitptl/cds-engine/internal/service/cds"
	"github.com/jwalitptl/cds-engine/internal/service/history"
	"github.com/jwalitptl/cds-engine/internal/service/report"
	"github.com/jwalitptl/cds-engine/internal/worker"
	"github.com/jwalitptl/cds-engine/pkg/logger"
	"github.com/jwalitptl/cds-engine/pkg/metrics"
	"github.com/jwalitptl/cds-engine/pkg/store/memory"
	"github.com/jwalitptl/cds-engine/pkg/store/redis"
)

const metricsNamespace = "cds"

type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Store   repository.KVStore

	Engine  *cds.Engine
	History *history.Service
	Audit   *audit.Service
	Report  *report.Service

	closers []func() error
}

// New builds the application graph. reg may be nil to use the default prometheus registry.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	app := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewMetrics(metricsNamespace, "", reg),
	}

	store, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Store = kv.Instrument(store, app.Metrics)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	historyRepo := kv.NewHistoryRepository(app.Store, cfg.Storage.HistoryKey, log)
	auditRepo := kv.NewAuditRepository(app.Store, cfg.Storage.AuditKey, log)

	app.Engine = cds.NewEngine(catalog, log,
		cds.WithMetrics(app.Metrics),
		cds.WithMaxRunningAlerts(cfg.Rules.MaxRunningAlerts),
	)
	app.Audit = audit.NewService(auditRepo, log)
	app.History = history.NewService(historyRepo, app.Audit, log, history.WithMetrics(app.Metrics))
	app.Report = report.NewService(app.History, app.Audit, log, report.WithMetrics(app.Metrics))

	log.Info("cds engine ready",
		"backend", cfg.Storage.Backend,
		"rules", catalog.Len(),
	)
	return app, nil
}

func redisStoreConfig(c config.RedisConfig) redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (a *App) openStore(ctx context.Context) (repository.KVStore, error) {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		return memory.New(), nil

	case config.BackendRedis:
		store, err := redis.New(ctx, redisStoreConfig(cfg.Redis), a.Logger.Zerolog())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return postgres.NewKVStore(db), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func loadCatalog(cfg *config.Config) (*cds.Catalog, error) {
	if cfg.Rules.File == "" {
		return cds.DefaultCatalog(), nil
	}
	return cds.LoadRulesFile(cfg.Rules.File)
}

// RetentionPolicy is the configured policy for the retention worker.
func (a *App) RetentionPolicy() model.RetentionPolicy {
	return model.RetentionPolicy{
		HistoryDays: a.Config.Retention.HistoryDays,
		AuditDays:   a.Config.Retention.AuditDays,
	}
}

// RetentionWorker prunes this app's stores on the configured interval.
func (a *App) RetentionWorker() *worker.RetentionWorker {
	return worker.NewRetentionWorker(a.Report, a.RetentionPolicy(), a.Config.Retention.Interval, a.Logger)
}

// RequireSharedStore fails for backends that live inside this process. A standalone
// worker on such a backend would only ever prune its own empty copy.
func (a *App) RequireSharedStore() error {
	switch a.Config.Storage.Backend {
	case config.BackendMemory, "":
		return fmt.Errorf("storage backend %q is local to one process; run retention inside the api server or use redis/postgres", config.BackendMemory)
	}
	return nil
}

// Close releases backend connections.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
