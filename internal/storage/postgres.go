package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
)

// PostgresConfig holds PostgreSQL connection settings. URL wins over the
// individual fields when set.
type PostgresConfig struct {
	URL      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ConnString returns the connection string.
func (c PostgresConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// PostgresDB wraps a PostgreSQL connection pool holding user corrections and
// the published catalog.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- User corrections, layered on top of every merge.
	CREATE TABLE IF NOT EXISTS airspace_overrides (
		airspace_id     TEXT PRIMARY KEY,
		override        JSONB NOT NULL,
		author          TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Published catalog, one row per airspace and cache key.
	CREATE TABLE IF NOT EXISTS catalog_airspaces (
		catalog_key     TEXT NOT NULL,
		airspace_id     TEXT NOT NULL,
		name            TEXT NOT NULL,
		type            TEXT NOT NULL,
		class           TEXT,
		floor_ft        INTEGER NOT NULL,
		floor_raw       TEXT,
		ceiling_ft      INTEGER NOT NULL,
		ceiling_raw     TEXT,
		priority        INTEGER NOT NULL,
		source          TEXT NOT NULL,
		frequencies     JSONB,
		geometry        JSONB,
		version         BIGINT NOT NULL,
		published_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (catalog_key, airspace_id)
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_airspaces_type ON catalog_airspaces(type);

	-- Refresh history.
	CREATE TABLE IF NOT EXISTS catalog_refreshes (
		id              BIGSERIAL PRIMARY KEY,
		catalog_key     TEXT NOT NULL,
		version         BIGINT NOT NULL,
		source          TEXT NOT NULL,
		airspaces       INTEGER NOT NULL,
		airports        INTEGER NOT NULL,
		navaids         INTEGER NOT NULL,
		summary         JSONB,
		built_at        TIMESTAMPTZ NOT NULL,
		published_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_refreshes_key ON catalog_refreshes(catalog_key, published_at DESC);
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Overrides returns every stored correction keyed by airspace ID.
func (d *PostgresDB) Overrides(ctx context.Context) (map[string]aero.AirspaceOverride, error) {
	rows, err := d.pool.Query(ctx, `SELECT airspace_id, override FROM airspace_overrides`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]aero.AirspaceOverride)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var o aero.AirspaceOverride
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("override %s: %w", id, err)
		}
		out[id] = o
	}
	return out, rows.Err()
}

// SaveOverride layers o on top of the stored correction for id and returns
// the combined result.
func (d *PostgresDB) SaveOverride(ctx context.Context, id string, o aero.AirspaceOverride, author string) (aero.AirspaceOverride, error) {
	var combined aero.AirspaceOverride
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT override FROM airspace_overrides WHERE airspace_id = $1 FOR UPDATE`, id).Scan(&raw)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &combined); err != nil {
				return fmt.Errorf("decode stored override: %w", err)
			}
		}

		combined = combined.Combine(o)
		data, err := json.Marshal(combined)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO airspace_overrides (airspace_id, override, author)
			VALUES ($1, $2, $3)
			ON CONFLICT (airspace_id) DO UPDATE SET
				override = EXCLUDED.override,
				author = COALESCE(EXCLUDED.author, airspace_overrides.author),
				updated_at = NOW()
		`, id, data, nullString(author))
		return err
	})
	if err != nil {
		return aero.AirspaceOverride{}, fmt.Errorf("save override %s: %w", id, err)
	}
	return combined, nil
}

// DeleteOverride removes the correction for id.
func (d *PostgresDB) DeleteOverride(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM airspace_overrides WHERE airspace_id = $1`, id)
	return err
}

// CatalogPublished replaces the stored airspaces of the catalog's key and
// records the refresh.
func (d *PostgresDB) CatalogPublished(ctx context.Context, c *catalog.Catalog) error {
	summary, err := json.Marshal(c.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM catalog_airspaces WHERE catalog_key = $1`, c.Key); err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}

		batch := &pgx.Batch{}
		for _, a := range c.Airspaces {
			freqs, err := json.Marshal(a.Frequencies)
			if err != nil {
				return err
			}
			var geom []byte
			if len(a.Geometry) > 0 {
				if geom, err = geojson.NewGeometry(a.Geometry).MarshalJSON(); err != nil {
					return fmt.Errorf("marshal geometry %s: %w", a.ID, err)
				}
			}
			batch.Queue(`
				INSERT INTO catalog_airspaces (catalog_key, airspace_id, name, type, class, floor_ft, floor_raw,
					ceiling_ft, ceiling_raw, priority, source, frequencies, geometry, version)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				ON CONFLICT (catalog_key, airspace_id) DO NOTHING
			`, c.Key, a.ID, a.Name, string(a.Type), string(a.Class), a.Floor.Feet, a.Floor.Raw,
				a.Ceiling.Feet, a.Ceiling.Raw, a.Priority, string(a.Source), freqs, geom, int64(c.Version))
		}
		batch.Queue(`
			INSERT INTO catalog_refreshes (catalog_key, version, source, airspaces, airports, navaids, summary, built_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, c.Key, int64(c.Version), string(c.Source), len(c.Airspaces), len(c.Airports), len(c.Navaids), summary, c.BuiltAt)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("store catalog: %w", err)
		}
		return nil
	})
}

// PublishedAirspaces returns the airspaces last published under key, ordered
// by ID.
func (d *PostgresDB) PublishedAirspaces(ctx context.Context, key string) ([]aero.Airspace, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT airspace_id, name, type, COALESCE(class, ''), floor_ft, COALESCE(floor_raw, ''),
			ceiling_ft, COALESCE(ceiling_raw, ''), priority, source, frequencies, geometry
		FROM catalog_airspaces
		WHERE catalog_key = $1
		ORDER BY airspace_id
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []aero.Airspace
	for rows.Next() {
		var (
			a                  aero.Airspace
			typ, class, source string
			freqs, geom        []byte
		)
		if err := rows.Scan(&a.ID, &a.Name, &typ, &class, &a.Floor.Feet, &a.Floor.Raw,
			&a.Ceiling.Feet, &a.Ceiling.Raw, &a.Priority, &source, &freqs, &geom); err != nil {
			return nil, err
		}
		a.Type = aero.AirspaceType(typ)
		a.Class = aero.Class(class)
		a.Source = aero.Source(source)
		if len(freqs) > 0 {
			if err := json.Unmarshal(freqs, &a.Frequencies); err != nil {
				return nil, fmt.Errorf("frequencies of %s: %w", a.ID, err)
			}
		}
		if len(geom) > 0 {
			g, err := geojson.UnmarshalGeometry(geom)
			if err != nil {
				return nil, fmt.Errorf("geometry of %s: %w", a.ID, err)
			}
			switch v := g.Geometry().(type) {
			case orb.MultiPolygon:
				a.Geometry = v
			case orb.Polygon:
				a.Geometry = orb.MultiPolygon{v}
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Refresh is one row of the refresh history.
type Refresh struct {
	CatalogKey  string
	Version     int64
	Source      string
	Airspaces   int
	Airports    int
	Navaids     int
	BuiltAt     time.Time
	PublishedAt time.Time
}

// RecentRefreshes returns the latest refreshes, newest first.
func (d *PostgresDB) RecentRefreshes(ctx context.Context, limit int) ([]Refresh, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT catalog_key, version, source, airspaces, airports, navaids, built_at, published_at
		FROM catalog_refreshes
		ORDER BY published_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Refresh
	for rows.Next() {
		var r Refresh
		if err := rows.Scan(&r.CatalogKey, &r.Version, &r.Source, &r.Airspaces, &r.Airports, &r.Navaids, &r.BuiltAt, &r.PublishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
