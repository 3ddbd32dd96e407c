package database

import (
	"context"
	"time"
)

// Database is the storage surface the credential and analytics stores use.
// Both the pgx pool and database/sql implementations satisfy it.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (ExecResult, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) (Row, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type ExecResult interface {
	RowsAffected() (int64, error)
}

type Row interface {
	Scan(dest ...interface{}) error
}

type Rows interface {
	Row
	Next() bool
	Err() error
	Close() error
}

type Settings struct {
	Host                  string
	Port                  string
	User                  string
	Password              string
	Database              string
	SSLModeDisable        bool
	CertPath              string
	ConnectionMaxLifetime time.Duration
	ConnectionMaxIdleTime time.Duration
	MaxIdleConnections    uint
	MaxPoolSize           uint // pgx
	MinPoolSize           uint // pgx
	PoolSize              uint // sql
}
