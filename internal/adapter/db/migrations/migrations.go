// Package migrations embeds the users schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed postgres/*.sql sqlite/*.sql
var embedded embed.FS

var dialects = map[string]goose.Dialect{
	"postgres": goose.DialectPostgres,
	"sqlite":   goose.DialectSQLite3,
}

// Up applies every pending migration for driver ("postgres" or "sqlite").
func Up(ctx context.Context, db *sql.DB, driver string, log *zap.Logger) error {
	dialect, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	dir, err := fs.Sub(embedded, driver)
	if err != nil {
		return fmt.Errorf("failed to open %s migrations: %w", driver, err)
	}

	provider, err := goose.NewProvider(dialect, db, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		log.Info("migration applied",
			zap.String("driver", driver),
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration),
		)
	}
	return nil
}
