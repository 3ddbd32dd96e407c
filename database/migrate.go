package database

import (
	"context"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/retry"
)

//go:embed migrations/*.sql
var migrations embed.FS

func migrateUp(ctx context.Context, settings Settings, logger *zap.Logger) error {
	connStr, err := connectionURL(migrateDriverType, settings)
	if err != nil {
		return errors.Wrap(err, "Failed to create connection string")
	}

	_, err = retry.Do(ctx, retryConfig(logger), func(context.Context) (struct{}, error) {
		src, err := iofs.New(migrations, "migrations")
		if err != nil {
			return struct{}{}, errors.Wrap(err, "Failed to open embedded migrations")
		}
		m, err := migrate.NewWithSourceInstance("iofs", src, connStr)
		if err != nil {
			return struct{}{}, errors.Wrap(err, "Failed to initialize migrations")
		}
		defer m.Close()

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return struct{}{}, errors.Wrap(err, "error migrating database schema")
		}
		return struct{}{}, nil
	}, nil, "Database Migration")
	return err
}
