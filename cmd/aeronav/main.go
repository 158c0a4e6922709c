// Command-line entry point for aeronav.
//
// The extract command turns a primary AIXM document into normalised JSON.
// The merge command reconciles it with a secondary GeoJSON export, applying
// the named exceptions, and prints the resulting catalog. The analyze command
// runs a route against that catalog and prints the traversal report.
//
// Every command runs offline: the secondary source is read from a file, never
// fetched.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"aeronav/internal/catalog"
	"aeronav/internal/config"
	"aeronav/internal/enrichment"
	"aeronav/internal/extractor"
	"aeronav/internal/logging"
	"aeronav/internal/openaip"
	"aeronav/internal/route"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "aeronav - commands:")
	fmt.Fprintln(w, "  extract  - parse an AIXM document and output JSON")
	fmt.Fprintln(w, "  merge    - merge an AIXM document with a secondary GeoJSON export")
	fmt.Fprintln(w, "  analyze  - list the airspaces crossed by a route")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  aeronav extract -input aixm.xml [-output out.json] [-pretty] [-summary]")
	fmt.Fprintln(w, "  aeronav merge -aixm aixm.xml -openaip airspaces.geojson [-bbox minLon,minLat,maxLon,maxLat] [-exceptions rules.yaml]")
	fmt.Fprintln(w, "  aeronav analyze -route route.json [-aixm aixm.xml] [-openaip airspaces.geojson] [-no-altitude-filter]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Defaults are read from .env and the environment (AERONAV_AIXM_PATH, CATALOG_EXCEPTIONS_PATH, ...).")
	fmt.Fprintln(w, "  - Without any source the built-in minimal catalog is used.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "extract":
		runExtract(cfg, os.Args[2:])
	case "merge":
		runMerge(cfg, os.Args[2:])
	case "analyze":
		runAnalyze(cfg, os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runExtract(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	inPath := fs.String("input", cfg.AIXMPath, "Input AIXM file (default: stdin)")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	raw := fs.Bool("raw", false, "Skip the enrichment pass")
	showSummary := fs.Bool("summary", false, "Print the extraction summary to stderr")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	_ = fs.Parse(args)

	logger := logging.New(*logLevel, "")
	ex := extractor.New(extractor.Options{Logger: logger})

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fail("Failed to open input: %v", err)
		}
		defer f.Close()
		r = f
	}

	// A read error still leaves the elements extracted so far.
	doc, err := ex.Extract(context.Background(), r)
	if err != nil {
		logger.Warn("partial document", "error", err)
	}
	if !*raw {
		enrichment.Enrich(doc, enrichment.Options{VORDMETolerance: cfg.VORDMETolerance})
	}

	writeOutput(*outPath, doc, *pretty)

	if *showSummary {
		s := doc.Summary
		fmt.Fprintf(os.Stderr, "summary: total=%d extracted=%d skipped=%d failed=%d\n",
			s.Total, s.Extracted, s.Skipped, s.Failed)
		for reason, n := range s.Reasons {
			fmt.Fprintf(os.Stderr, "  %-20s %d\n", reason, n)
		}
	}
}

// sourceFlags are shared by merge and analyze.
type sourceFlags struct {
	aixm       *string
	openaip    *string
	exceptions *string
	logLevel   *string
}

func addSourceFlags(fs *flag.FlagSet, cfg *config.Config) sourceFlags {
	return sourceFlags{
		aixm:       fs.String("aixm", cfg.AIXMPath, "Primary AIXM file"),
		openaip:    fs.String("openaip", "", "Secondary GeoJSON or paged JSON export"),
		exceptions: fs.String("exceptions", cfg.ExceptionsPath, "YAML exception and city table (default: built-in)"),
		logLevel:   fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)"),
	}
}

// service builds an offline cache service over the given files.
func (sf sourceFlags) service(cfg *config.Config) (*catalog.Service, *catalog.Rules, *slog.Logger) {
	logger := logging.New(*sf.logLevel, "")

	rules, err := catalog.LoadRules(*sf.exceptions)
	if err != nil {
		fail("Failed to load exceptions: %v", err)
	}

	sc := catalog.Config{Rules: rules, Logger: logger}
	if *sf.aixm != "" {
		ex := extractor.New(extractor.Options{Logger: logger})
		sc.Primary = catalog.NewFilePrimary(*sf.aixm, ex, enrichment.Options{VORDMETolerance: cfg.VORDMETolerance}, logger)
	}
	if *sf.openaip != "" {
		static, err := openaip.LoadFile(*sf.openaip)
		if err != nil {
			fail("Failed to load secondary file: %v", err)
		}
		sc.Secondary = static
	}
	return catalog.NewService(sc), rules, logger
}

func runMerge(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	sf := addSourceFlags(fs, cfg)
	bbox := fs.String("bbox", "", "Restrict to minLon,minLat,maxLon,maxLat")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	svc, _, logger := sf.service(cfg)

	q := openaip.Query{Country: cfg.OpenAIPCountry}
	if *bbox != "" {
		b, err := openaip.ParseBBox(*bbox)
		if err != nil {
			fail("Invalid bbox: %v", err)
		}
		q.BBox = &b
	}

	cat := svc.Get(context.Background(), q)
	logger.Info("catalog built", "source", cat.Source, "airspaces", len(cat.Airspaces), "airports", len(cat.Airports))
	writeOutput(*outPath, cat, *pretty)
}

func runAnalyze(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	sf := addSourceFlags(fs, cfg)
	routePath := fs.String("route", "", "Route JSON file: {\"waypoints\":[{\"id\",\"lat\",\"lon\"}...]}")
	noFilter := fs.Bool("no-altitude-filter", !cfg.AltitudeFilter, "Report airspaces at any altitude")
	altitude := fs.Int("altitude", cfg.PlannedAltitudeFeet, "Planned altitude in feet for segments without one")
	proximity := fs.Float64("proximity", cfg.ProximityKm, "Near-route distance in km")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	pretty := fs.Bool("pretty", true, "Pretty-print JSON output")
	_ = fs.Parse(args)

	if *routePath == "" {
		fail("-route is required")
	}
	data, err := os.ReadFile(*routePath)
	if err != nil {
		fail("Failed to read route: %v", err)
	}
	var req route.Request
	if err := json.Unmarshal(data, &req); err != nil {
		fail("Invalid route file: %v", err)
	}

	svc, rules, logger := sf.service(cfg)
	analyzer := route.NewAnalyzer(svc, route.Options{
		AltitudeFilter:      !*noFilter,
		ProximityKm:         *proximity,
		BBoxMargin:          cfg.BBoxMarginDeg,
		PlannedAltitudeFeet: *altitude,
		Rules:               rules,
		Logger:              logger,
	})

	report, err := analyzer.Analyze(context.Background(), req)
	if err != nil {
		fail("Analysis failed: %v", err)
	}
	writeOutput(*outPath, report, *pretty)

	fmt.Fprintf(os.Stderr, "segments=%d traversed=%d conflicts=%d distance=%.1fkm source=%s\n",
		len(report.Segments), len(report.Traversed), report.ConflictCount(), report.TotalDistanceKm, report.Source)
}

func writeOutput(path string, v any, pretty bool) {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			fail("Failed to create output: %v", err)
		}
		defer f.Close()
		w = f
	}

	enc, err := marshalJSON(v, pretty)
	if err != nil {
		fail("JSON encode error: %v", err)
	}
	_, _ = w.Write(enc)
	if w == os.Stdout {
		_, _ = w.Write([]byte("\n"))
	}
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
