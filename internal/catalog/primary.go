package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"aeronav/internal/aero"
	"aeronav/internal/enrichment"
	"aeronav/internal/extractor"
	"aeronav/internal/openaip"
)

// Primary supplies the extracted and enriched primary document.
type Primary interface {
	Load(ctx context.Context) (*extractor.Document, error)
}

// Secondary supplies secondary-catalog airspaces. It never fails: an
// unavailable catalog yields an empty result.
type Secondary interface {
	Airspaces(ctx context.Context, q openaip.Query) []aero.Airspace
}

// FilePrimary extracts a primary document from disk and memoises the result
// until the file's modification time changes.
type FilePrimary struct {
	path      string
	extractor *extractor.Extractor
	enrich    enrichment.Options
	log       *slog.Logger

	mu      sync.Mutex
	modTime time.Time
	doc     *extractor.Document
}

// NewFilePrimary creates a primary source reading path.
func NewFilePrimary(path string, ex *extractor.Extractor, enrich enrichment.Options, logger *slog.Logger) *FilePrimary {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilePrimary{path: path, extractor: ex, enrich: enrich, log: logger}
}

// Load returns the memoised document or re-extracts a changed file.
func (p *FilePrimary) Load(ctx context.Context) (*extractor.Document, error) {
	if p.path == "" {
		return nil, fmt.Errorf("primary document not configured")
	}
	fi, err := os.Stat(p.path)
	if err != nil {
		return nil, fmt.Errorf("stat primary document: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc != nil && fi.ModTime().Equal(p.modTime) {
		return p.doc, nil
	}

	start := time.Now()
	doc, err := p.extractor.ExtractFile(ctx, p.path)
	if err != nil {
		if doc == nil || (len(doc.Airspaces) == 0 && len(doc.Airports) == 0) {
			return nil, err
		}
		// Truncated documents still publish what was read before the fault.
		p.log.Warn("primary document incomplete", "path", p.path, "error", err)
	}
	enrichment.Enrich(doc, p.enrich)

	p.doc = doc
	p.modTime = fi.ModTime()
	p.log.Info("primary document loaded",
		"path", p.path,
		"airspaces", len(doc.Airspaces),
		"airports", len(doc.Airports),
		"duration", time.Since(start).Round(time.Millisecond))
	return doc, nil
}
