package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/analytics"
	"github.com/quantumauth-io/credchain/config"
	"github.com/quantumauth-io/credchain/credential"
	"github.com/quantumauth-io/credchain/database"
	"github.com/quantumauth-io/credchain/ethrpc"
	"github.com/quantumauth-io/credchain/log"
	"github.com/quantumauth-io/credchain/metrics"
	"github.com/quantumauth-io/credchain/redis"
)

const (
	metricsNamespace = "credchain"
	cachePrefix      = "credchain:credential:"
)

// runtime owns every long-lived dependency built from config.
type runtime struct {
	logger      *zap.Logger
	metrics     *metrics.Metrics
	chain       *ethrpc.Client
	db          database.Database
	credentials *credential.Service
	analytics   *analytics.Service
	closers     []func() error
}

func setup(ctx context.Context, cfg *config.App, withStorage bool) (*runtime, error) {
	logger, err := log.New(log.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		logger:  logger,
		metrics: metrics.New(metricsNamespace),
	}

	rt.chain, err = ethrpc.New(ethrpc.Config{
		PrimaryURL:      cfg.RPC.URL,
		ChainID:         cfg.RPC.ChainID,
		AttemptTimeout:  cfg.RPC.AttemptTimeout,
		ChainIDFailover: cfg.RPC.ChainIDFailover,
	}, ethrpc.WithLogger(logger.Named("ethrpc")), ethrpc.WithObserver(rt.metrics))
	if err != nil {
		return nil, err
	}
	if !withStorage {
		return rt, nil
	}

	if err := rt.openStorage(ctx, cfg); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) openStorage(ctx context.Context, cfg *config.App) error {
	credStore := credential.Store(credential.NewMemoryStore())
	eventStore := analytics.Store(analytics.NewMemoryStore())

	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database, rt.logger.Named("database"))
		if err != nil {
			return err
		}
		rt.db = db
		rt.closers = append(rt.closers, db.Close)

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return errors.Wrap(err, "auto migrate")
			}
		}
		credStore = credential.NewSQLStore(db)
		eventStore = analytics.NewSQLStore(db)
	} else {
		rt.logger.Warn("database disabled, credentials and analytics are kept in memory")
	}

	credOpts := []credential.Option{
		credential.WithLogger(rt.logger.Named("credential")),
		credential.WithObserver(rt.metrics),
	}
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		})
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, rdb.Close)
		credOpts = append(credOpts, credential.WithCache(redis.NewCache(rdb, cachePrefix, cfg.Redis.TTL)))
	}

	rt.credentials = credential.NewService(credStore, credOpts...)
	rt.analytics = analytics.NewService(eventStore,
		analytics.WithCredentials(rt.credentials),
		analytics.WithLogger(rt.logger.Named("analytics")),
		analytics.WithObserver(rt.metrics),
	)
	return nil
}

func openDatabase(ctx context.Context, cfg config.Database, logger *zap.Logger) (database.Database, error) {
	settings := database.Settings{
		Host:           cfg.Host,
		Port:           cfg.Port,
		User:           cfg.User,
		Password:       cfg.Password,
		Database:       cfg.Name,
		SSLModeDisable: cfg.SSLModeDisable,
		CertPath:       cfg.CertPath,
	}
	if cfg.Driver == "sql" {
		db, err := database.NewSQLDatabase(ctx, settings, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	db, err := database.NewPGXDatabase(ctx, settings, logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (rt *runtime) Close() error {
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	_ = rt.logger.Sync()
	return err
}
