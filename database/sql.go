package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.elastic.co/apm/module/apmsql/v2"
	_ "go.elastic.co/apm/module/apmsql/v2/pq"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/log"
	"github.com/quantumauth-io/credchain/retry"
)

type SQLDatabase struct {
	dbPool   *sql.DB
	settings Settings
	logger   *zap.Logger
}

var _ Database = (*SQLDatabase)(nil)

type sqlRows struct {
	rows *sql.Rows
}

// NewSQLDatabase opens an instrumented lib/pq handle.
func NewSQLDatabase(ctx context.Context, settings Settings, logger *zap.Logger) (*SQLDatabase, error) {
	logger = log.OrNop(logger)
	connStr, err := connectionURL(migrateDriverType, settings)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create connection string")
	}

	db, err := retry.Do(ctx, retryConfig(logger), func(ctx context.Context) (*sql.DB, error) {
		db, err := apmsql.Open("postgres", connStr)
		if err != nil {
			return nil, errors.Wrap(err, "error opening the database")
		}
		return db, nil
	}, isRetryable, "Database Connection")
	if err != nil {
		return nil, errors.Wrap(err, "Failed to instantiate db after retries")
	}

	return NewSQLDatabaseFromDB(db, settings, logger), nil
}

// NewSQLDatabaseFromDB wraps an existing handle, e.g. one from go-sqlmock.
func NewSQLDatabaseFromDB(db *sql.DB, settings Settings, logger *zap.Logger) *SQLDatabase {
	configureSQLPool(db, settings)
	return &SQLDatabase{dbPool: db, settings: settings, logger: log.OrNop(logger)}
}

func (db *SQLDatabase) Migrate(ctx context.Context) error {
	return migrateUp(ctx, db.settings, db.logger)
}

func (db *SQLDatabase) QueryRow(ctx context.Context, sql string, arguments ...interface{}) (Row, error) {
	return db.dbPool.QueryRowContext(ctx, sql, arguments...), nil
}

func (db *SQLDatabase) Query(ctx context.Context, sql string, arguments ...interface{}) (Rows, error) {
	rows, err := db.dbPool.QueryContext(ctx, sql, arguments...)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to query %s", sql)
	}
	return &sqlRows{rows}, nil
}

func (db *SQLDatabase) Exec(ctx context.Context, sql string, arguments ...interface{}) (ExecResult, error) {
	res, err := db.dbPool.ExecContext(ctx, sql, arguments...)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to execute %s", sql)
	}
	return res, nil
}

func (db *SQLDatabase) Close() error {
	return db.dbPool.Close()
}

func (db *SQLDatabase) Ping(ctx context.Context) error {
	return pingDB(ctx, db.logger, db.dbPool.PingContext)
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...interface{}) error {
	return r.rows.Scan(dest...)
}
