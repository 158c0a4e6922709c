// Package storage persists user corrections, published catalogs, catalog
// snapshots and the traversal history.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"aeronav/internal/route"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for the traversal history.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS traversal_reports (
			report_id        String,
			generated_at     DateTime64(3),
			fingerprint      String,
			catalog_key      LowCardinality(String),
			catalog_version  UInt64,
			source           LowCardinality(String),
			altitude_filter  UInt8,
			segments         UInt16,
			traversed        UInt16,
			conflicts        UInt16,
			distance_km      Float64,
			conflict_ids     Array(String),
			report_json      String,
			recorded_at      DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(generated_at)
		ORDER BY (catalog_key, generated_at, report_id)
		SETTINGS index_granularity = 8192`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Skip index for conflict lookups (ignore error if already exists).
	_ = d.conn.Exec(ctx, `ALTER TABLE traversal_reports ADD INDEX IF NOT EXISTS idx_conflict_ids conflict_ids TYPE bloom_filter GRANULARITY 1`)

	return nil
}

// TraversalRecord is one row of the traversal history.
type TraversalRecord struct {
	ReportID       string
	GeneratedAt    time.Time
	Fingerprint    string
	CatalogKey     string
	CatalogVersion uint64
	Source         string
	AltitudeFilter bool
	Segments       int
	Traversed      int
	Conflicts      int
	DistanceKm     float64
	ConflictIDs    []string
	ReportJSON     string
}

// RecordFromReport flattens a report into a history row.
func RecordFromReport(r *route.Report) (TraversalRecord, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return TraversalRecord{}, fmt.Errorf("marshal report: %w", err)
	}

	ids := []string{}
	seen := map[string]bool{}
	for _, s := range r.Segments {
		for _, e := range s.Conflicts {
			if !seen[e.ID] {
				seen[e.ID] = true
				ids = append(ids, e.ID)
			}
		}
	}

	return TraversalRecord{
		ReportID:       r.ID,
		GeneratedAt:    r.GeneratedAt,
		Fingerprint:    r.Fingerprint,
		CatalogKey:     r.CatalogKey,
		CatalogVersion: r.CatalogVersion,
		Source:         string(r.Source),
		AltitudeFilter: r.AltitudeFilter,
		Segments:       len(r.Segments),
		Traversed:      len(r.Traversed),
		Conflicts:      len(ids),
		DistanceKm:     r.TotalDistanceKm,
		ConflictIDs:    ids,
		ReportJSON:     string(data),
	}, nil
}

// RecordReport stores one report.
func (d *ClickHouseDB) RecordReport(ctx context.Context, r *route.Report) error {
	rec, err := RecordFromReport(r)
	if err != nil {
		return err
	}
	return d.InsertBatch(ctx, []TraversalRecord{rec})
}

// InsertBatch stores multiple records in one round trip.
func (d *ClickHouseDB) InsertBatch(ctx context.Context, records []TraversalRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO traversal_reports (report_id, generated_at, fingerprint, catalog_key, catalog_version, source,
			altitude_filter, segments, traversed, conflicts, distance_km, conflict_ids, report_json)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		var filter uint8
		if r.AltitudeFilter {
			filter = 1
		}
		err := batch.Append(r.ReportID, r.GeneratedAt, r.Fingerprint, r.CatalogKey, r.CatalogVersion, r.Source,
			filter, uint16(r.Segments), uint16(r.Traversed), uint16(r.Conflicts), r.DistanceKm, r.ConflictIDs, r.ReportJSON)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// ReportQuery filters the traversal history.
type ReportQuery struct {
	CatalogKey   string
	ConflictID   string // Only reports conflicting with this airspace.
	OnlyConflict bool
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// where builds the WHERE clause and its arguments.
func (p ReportQuery) where() (string, []any) {
	var conditions []string
	var args []any

	if p.CatalogKey != "" {
		conditions = append(conditions, "catalog_key = ?")
		args = append(args, p.CatalogKey)
	}
	if p.ConflictID != "" {
		conditions = append(conditions, "has(conflict_ids, ?)")
		args = append(args, p.ConflictID)
	}
	if p.OnlyConflict {
		conditions = append(conditions, "conflicts > 0")
	}
	if !p.Since.IsZero() {
		conditions = append(conditions, "generated_at >= ?")
		args = append(args, p.Since)
	}
	if !p.Until.IsZero() {
		conditions = append(conditions, "generated_at < ?")
		args = append(args, p.Until)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// QueryReports returns history rows, newest first.
func (d *ClickHouseDB) QueryReports(ctx context.Context, p ReportQuery) ([]TraversalRecord, error) {
	where, args := p.where()
	query := `SELECT report_id, generated_at, fingerprint, catalog_key, catalog_version, source,
		altitude_filter, segments, traversed, conflicts, distance_km, conflict_ids, report_json
		FROM traversal_reports` + where + " ORDER BY generated_at DESC"

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []TraversalRecord
	for rows.Next() {
		var r TraversalRecord
		var filter uint8
		var segments, traversed, conflicts uint16
		err := rows.Scan(&r.ReportID, &r.GeneratedAt, &r.Fingerprint, &r.CatalogKey, &r.CatalogVersion, &r.Source,
			&filter, &segments, &traversed, &conflicts, &r.DistanceKm, &r.ConflictIDs, &r.ReportJSON)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.AltitudeFilter = filter == 1
		r.Segments, r.Traversed, r.Conflicts = int(segments), int(traversed), int(conflicts)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ConflictStat counts how often an airspace conflicted with analysed routes.
type ConflictStat struct {
	AirspaceID string
	Reports    uint64
}

// TopConflicts returns the airspaces most often in conflict.
func (d *ClickHouseDB) TopConflicts(ctx context.Context, p ReportQuery) ([]ConflictStat, error) {
	where, args := p.where()
	limit := 20
	if p.Limit > 0 {
		limit = p.Limit
	}
	query := `SELECT arrayJoin(conflict_ids) AS airspace_id, count() AS n FROM traversal_reports` + where +
		fmt.Sprintf(" GROUP BY airspace_id ORDER BY n DESC LIMIT %d", limit)

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var out []ConflictStat
	for rows.Next() {
		var s ConflictStat
		if err := rows.Scan(&s.AirspaceID, &s.Reports); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
