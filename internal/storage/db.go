package storage

import (
	"context"
	"errors"
	"fmt"

	"aeronav/internal/aero"
)

// Config holds the connection settings of every backend. Empty sections are
// not opened.
type Config struct {
	ClickHouse *ClickHouseConfig
	Postgres   *PostgresConfig
	SQLitePath string
}

// OverrideStore persists user corrections.
type OverrideStore interface {
	Overrides(ctx context.Context) (map[string]aero.AirspaceOverride, error)
	SaveOverride(ctx context.Context, id string, o aero.AirspaceOverride, author string) (aero.AirspaceOverride, error)
	DeleteOverride(ctx context.Context, id string) error
}

// DB wraps the configured backends.
type DB struct {
	CH   *ClickHouseDB // ClickHouse for the traversal history.
	PG   *PostgresDB   // PostgreSQL for corrections and the published catalog.
	Lite *SQLiteDB     // SQLite for corrections when PostgreSQL is absent.
}

// Open opens every configured backend.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	db := &DB{}

	if cfg.Postgres != nil {
		pg, err := OpenPostgres(ctx, *cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		db.PG = pg
	} else if cfg.SQLitePath != "" {
		lite, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		db.Lite = lite
	}

	if cfg.ClickHouse != nil {
		ch, err := OpenClickHouse(ctx, *cfg.ClickHouse)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		db.CH = ch
	}

	return db, nil
}

// Overrides returns the correction store in use, or nil.
func (d *DB) Overrides() OverrideStore {
	switch {
	case d.PG != nil:
		return d.PG
	case d.Lite != nil:
		return d.Lite
	}
	return nil
}

// Close closes every open connection.
func (d *DB) Close() error {
	var errs []error
	if d.CH != nil {
		if err := d.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.PG != nil {
		d.PG.Close()
	}
	if d.Lite != nil {
		if err := d.Lite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		}
	}
	return errors.Join(errs...)
}

// CreateSchemas creates the schemas of the open backends.
func (d *DB) CreateSchemas(ctx context.Context) error {
	if d.CH != nil {
		if err := d.CH.CreateSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	if d.PG != nil {
		if err := d.PG.CreateSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return nil
}
