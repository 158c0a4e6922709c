// Package main exports route traversal history from ClickHouse to CSV format.
// Each row is one analysed route:
// report_id,generated_at,catalog_key,catalog_version,source,segments,traversed,conflicts,distance_km,conflict_ids
// where conflict_ids is a space-separated list of airspace identifiers.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"aeronav/internal/storage"
)

var header = []string{
	"report_id", "generated_at", "catalog_key", "catalog_version", "source",
	"segments", "traversed", "conflicts", "distance_km", "conflict_ids",
}

func main() {
	// ClickHouse connection flags.
	chHost := flag.String("ch-host", "localhost", "ClickHouse host")
	chPort := flag.Int("ch-port", 9000, "ClickHouse native port")
	chUser := flag.String("ch-user", "default", "ClickHouse user")
	chPassword := flag.String("ch-password", "", "ClickHouse password")
	chDB := flag.String("ch-db", "aeronav", "ClickHouse database")

	catalogKey := flag.String("catalog-key", "", "Only reports analysed against this catalog")
	conflict := flag.String("conflict", "", "Only reports in conflict with this airspace ID")
	onlyConflicts := flag.Bool("conflicts-only", false, "Only reports with at least one conflict")
	since := flag.Duration("since", 0, "Only reports newer than this (e.g. 24h)")
	limit := flag.Int("limit", 1000, "Maximum number of rows")
	noHeader := flag.Bool("no-header", false, "Omit the CSV header row")

	output := flag.String("output", "", "Output CSV file (default: stdout)")
	showStats := flag.Bool("stats", false, "Show conflict statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
		Host:     *chHost,
		Port:     *chPort,
		Database: *chDB,
		User:     *chUser,
		Password: *chPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = ch.Close() }()

	q := storage.ReportQuery{
		CatalogKey:   *catalogKey,
		ConflictID:   *conflict,
		OnlyConflict: *onlyConflicts,
		Limit:        *limit,
	}
	if *since > 0 {
		q.Since = time.Now().Add(-*since)
	}

	// Show stats mode.
	if *showStats {
		showConflictStats(ctx, ch, q)
		return
	}

	records, err := ch.QueryReports(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying reports: %v\n", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "No reports found matching criteria\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d reports to CSV\n", len(records))
	}

	var writer *csv.Writer
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = csv.NewWriter(file)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	if !*noHeader {
		if err := writer.Write(header); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
			os.Exit(1)
		}
	}
	for _, r := range records {
		if err := writer.Write(recordRow(r)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing row: %v\n", err)
			os.Exit(1)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose && *output != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d reports to %s\n", len(records), *output)
	}
}

// recordRow flattens one history row in header order.
func recordRow(r storage.TraversalRecord) []string {
	return []string{
		r.ReportID,
		r.GeneratedAt.UTC().Format(time.RFC3339),
		r.CatalogKey,
		strconv.FormatUint(r.CatalogVersion, 10),
		r.Source,
		strconv.Itoa(r.Segments),
		strconv.Itoa(r.Traversed),
		strconv.Itoa(r.Conflicts),
		strconv.FormatFloat(r.DistanceKm, 'f', 1, 64),
		strings.Join(r.ConflictIDs, " "),
	}
}

// showConflictStats displays the airspaces most often in conflict.
func showConflictStats(ctx context.Context, ch *storage.ClickHouseDB, q storage.ReportQuery) {
	q.Limit = 20
	stats, err := ch.TopConflicts(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying conflicts: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Conflict Statistics")
	fmt.Println("───────────────────")
	if len(stats) == 0 {
		fmt.Println("No conflicts recorded")
		return
	}

	var total uint64
	for _, s := range stats {
		total += s.Reports
	}
	fmt.Printf("%-40s %10s %7s\n", "Airspace", "Reports", "Share")
	for _, s := range stats {
		fmt.Printf("%-40s %10d %6.1f%%\n", s.AirspaceID, s.Reports, 100*float64(s.Reports)/float64(total))
	}
}
