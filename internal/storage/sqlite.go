package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"aeronav/internal/aero"
)

// SQLiteDB is the single-node override store used when PostgreSQL is not
// configured.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS airspace_overrides (
		airspace_id TEXT PRIMARY KEY,
		override_json TEXT NOT NULL,
		author TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS override_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		airspace_id TEXT NOT NULL,
		change_json TEXT NOT NULL,
		author TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_override_history_airspace ON override_history(airspace_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Overrides returns every stored correction keyed by airspace ID.
func (d *SQLiteDB) Overrides(ctx context.Context) (map[string]aero.AirspaceOverride, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT airspace_id, override_json FROM airspace_overrides`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]aero.AirspaceOverride)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var o aero.AirspaceOverride
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("override %s: %w", id, err)
		}
		out[id] = o
	}
	return out, rows.Err()
}

// SaveOverride layers o on top of the stored correction for id, appends the
// change to the history and returns the combined result.
func (d *SQLiteDB) SaveOverride(ctx context.Context, id string, o aero.AirspaceOverride, author string) (aero.AirspaceOverride, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return aero.AirspaceOverride{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var combined aero.AirspaceOverride
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT override_json FROM airspace_overrides WHERE airspace_id = ?`, id).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return aero.AirspaceOverride{}, err
	default:
		if err := json.Unmarshal([]byte(raw), &combined); err != nil {
			return aero.AirspaceOverride{}, fmt.Errorf("decode stored override: %w", err)
		}
	}

	combined = combined.Combine(o)
	data, err := json.Marshal(combined)
	if err != nil {
		return aero.AirspaceOverride{}, err
	}
	change, err := json.Marshal(o)
	if err != nil {
		return aero.AirspaceOverride{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO airspace_overrides (airspace_id, override_json, author, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(airspace_id) DO UPDATE SET
			override_json = excluded.override_json,
			author = COALESCE(excluded.author, airspace_overrides.author),
			updated_at = excluded.updated_at
	`, id, string(data), nullString(author), now); err != nil {
		return aero.AirspaceOverride{}, fmt.Errorf("save override %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO override_history (airspace_id, change_json, author, created_at)
		VALUES (?, ?, ?, ?)
	`, id, string(change), nullString(author), now); err != nil {
		return aero.AirspaceOverride{}, fmt.Errorf("record history %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return aero.AirspaceOverride{}, err
	}
	return combined, nil
}

// DeleteOverride removes the correction for id. The history is kept.
func (d *SQLiteDB) DeleteOverride(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM airspace_overrides WHERE airspace_id = ?`, id)
	return err
}

// OverrideChange is one entry of the correction history.
type OverrideChange struct {
	AirspaceID string
	Change     aero.AirspaceOverride
	Author     string
	CreatedAt  time.Time
}

// History returns the corrections submitted for id, oldest first.
func (d *SQLiteDB) History(ctx context.Context, id string) ([]OverrideChange, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT airspace_id, change_json, COALESCE(author, ''), created_at
		FROM override_history WHERE airspace_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []OverrideChange
	for rows.Next() {
		var c OverrideChange
		var raw, created string
		if err := rows.Scan(&c.AirspaceID, &raw, &c.Author, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &c.Change); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, c)
	}
	return out, rows.Err()
}
