package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/retry"
)

const (
	databaseDriverType = "postgresql"
	migrateDriverType  = "postgres"

	defaultMaxRetry = 6

	defaultMinDBPoolSize = 1
	defaultMaxDBPoolSize = 8

	// Keep connections relatively short-lived / not too idle
	defaultConnectionMaxLifetime = 2 * time.Minute
	defaultConnectionMaxIdleTime = 30 * time.Second

	defaultDBPoolSize   = 5
	defaultIdlePoolSize = defaultDBPoolSize

	pingTimeout = 60 * time.Second

	uniqueViolationCode = "23505"
)

func retryConfig(logger *zap.Logger) *retry.Config {
	return retry.Bounded(logger, defaultMaxRetry, time.Second)
}

// connectionURL renders settings as a postgres URL with the given scheme.
func connectionURL(scheme string, s Settings) (string, error) {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(s.User, s.Password),
		Host:   net.JoinHostPort(s.Host, s.Port),
		Path:   "/" + s.Database,
	}
	q := url.Values{}

	switch {
	case s.SSLModeDisable:
		q.Set("sslmode", "disable")
	case s.CertPath == "":
		// Managed Postgres: encryption required, no CA bundle in the image.
		q.Set("sslmode", "require")
	default:
		if _, err := os.Stat(s.CertPath); errors.Is(err, os.ErrNotExist) {
			return "", errors.New("ssl mode was enabled but cert file not found")
		} else if err != nil {
			return "", err
		}
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", s.CertPath)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func withDefaults(s Settings) Settings {
	if s.MinPoolSize == 0 {
		s.MinPoolSize = defaultMinDBPoolSize
	}
	if s.MaxPoolSize == 0 {
		s.MaxPoolSize = defaultMaxDBPoolSize
	}
	if s.ConnectionMaxLifetime == 0 {
		s.ConnectionMaxLifetime = defaultConnectionMaxLifetime
	}
	if s.ConnectionMaxIdleTime == 0 {
		s.ConnectionMaxIdleTime = defaultConnectionMaxIdleTime
	}
	if s.PoolSize == 0 {
		s.PoolSize = defaultDBPoolSize
	}
	if s.MaxIdleConnections == 0 {
		s.MaxIdleConnections = defaultIdlePoolSize
	}
	return s
}

func configurePGXPool(cfg *pgxpool.Config, s Settings) {
	s = withDefaults(s)
	cfg.MinConns = int32(s.MinPoolSize)
	cfg.MaxConns = int32(s.MaxPoolSize)
	cfg.MaxConnLifetime = s.ConnectionMaxLifetime
	cfg.MaxConnIdleTime = s.ConnectionMaxIdleTime
	cfg.HealthCheckPeriod = 15 * time.Second
}

func configureSQLPool(db *sql.DB, s Settings) {
	s = withDefaults(s)
	db.SetMaxOpenConns(int(s.PoolSize))
	db.SetMaxIdleConns(int(s.MaxIdleConnections))
	db.SetConnMaxLifetime(s.ConnectionMaxLifetime)
	db.SetConnMaxIdleTime(s.ConnectionMaxIdleTime)
}

func pingDB(ctx context.Context, logger *zap.Logger, pingFn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	cfg := retry.Bounded(logger, retry.InfiniteRetries, time.Second)
	_, err := retry.Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, pingFn(ctx)
	}, nil, "Database Ping")
	if err != nil {
		return errors.Wrap(err, "failed to ping database")
	}
	return nil
}

// IsNoRows reports whether err means the query matched nothing, for either driver.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports a unique constraint failure from pgx or lib/pq.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

// used by both SQL + PGX drivers
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsNoRows(err) || IsUniqueViolation(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		// let the pool create a fresh connection and retry
		return true
	}

	// optimistic for Cockroach / transient DB errors
	return true
}

func describe(op, sql string) string {
	return fmt.Sprintf("Database %s: %s", op, sql)
}
