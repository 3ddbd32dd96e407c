package database

import (
	"context"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"go.elastic.co/apm/module/apmpgx/v2"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/log"
	"github.com/quantumauth-io/credchain/retry"
)

type PGXDatabase struct {
	dbPool   *pgxpool.Pool
	settings Settings
	logger   *zap.Logger
}

var _ Database = (*PGXDatabase)(nil)

type pgxExecResult struct {
	cmdTag pgconn.CommandTag
}

type pgxRows struct {
	rows pgx.Rows
}

// NewPGXDatabase connects a pgx pool, retrying transient failures.
func NewPGXDatabase(ctx context.Context, settings Settings, logger *zap.Logger) (*PGXDatabase, error) {
	logger = log.OrNop(logger)
	connStr, err := connectionURL(databaseDriverType, settings)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create connection string")
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid pgx connection settings")
	}
	configurePGXPool(poolCfg, settings)
	apmpgx.Instrument(poolCfg.ConnConfig)

	pool, err := retry.Do(ctx, retryConfig(logger), func(ctx context.Context) (*pgxpool.Pool, error) {
		p, err := pgxpool.ConnectConfig(ctx, poolCfg)
		if err != nil {
			return nil, errors.Wrap(err, "error opening the database")
		}
		return p, nil
	}, isRetryable, "Database Connection")
	if err != nil {
		return nil, errors.Wrap(err, "Failed to instantiate db after retries")
	}

	return &PGXDatabase{dbPool: pool, settings: settings, logger: logger}, nil
}

func (db *PGXDatabase) Migrate(ctx context.Context) error {
	return migrateUp(ctx, db.settings, db.logger)
}

func (db *PGXDatabase) Exec(ctx context.Context, sql string, arguments ...interface{}) (ExecResult, error) {
	res, err := retry.Do(ctx, retryConfig(db.logger), func(ctx context.Context) (*pgxExecResult, error) {
		var tag pgconn.CommandTag
		err := crdb.Execute(func() error {
			var err error
			tag, err = db.dbPool.Exec(ctx, sql, arguments...)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &pgxExecResult{tag}, nil
	}, isRetryable, describe("Exec", sql))
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to execute %s after retries", sql)
	}
	return res, nil
}

func (db *PGXDatabase) QueryRow(ctx context.Context, sql string, arguments ...interface{}) (Row, error) {
	return db.dbPool.QueryRow(ctx, sql, arguments...), nil
}

func (db *PGXDatabase) Query(ctx context.Context, sql string, arguments ...interface{}) (Rows, error) {
	rows, err := retry.Do(ctx, retryConfig(db.logger), func(ctx context.Context) (pgx.Rows, error) {
		return db.dbPool.Query(ctx, sql, arguments...)
	}, isRetryable, describe("Query", sql))
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to queryRows %s after retries", sql)
	}
	return &pgxRows{rows}, nil
}

func (db *PGXDatabase) Close() error {
	db.dbPool.Close()
	return nil
}

func (db *PGXDatabase) Ping(ctx context.Context) error {
	return pingDB(ctx, db.logger, db.dbPool.Ping)
}

func (r *pgxRows) Close() error {
	r.rows.Close()
	return nil
}

func (r *pgxRows) Err() error {
	return r.rows.Err()
}

func (r *pgxRows) Next() bool {
	return r.rows.Next()
}

func (r *pgxRows) Scan(dest ...interface{}) error {
	return r.rows.Scan(dest...)
}

func (r *pgxExecResult) RowsAffected() (int64, error) {
	return r.cmdTag.RowsAffected(), nil
}
