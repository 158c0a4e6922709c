// Package publisher emits catalog and traversal events on NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
	"aeronav/internal/route"
)

// Subject prefixes.
const (
	SubjectCatalogRefreshed = "aeronav.catalog.refreshed"
	SubjectConflict         = "aeronav.traversal.conflict"
)

// Metrics receives publish outcomes. Implemented by metrics.Collector.
type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Conn is the subset of *nats.Conn used by the publisher.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSPublisher publishes JSON events. It implements catalog.Observer.
type NATSPublisher struct {
	nc      Conn
	metrics Metrics
	log     *slog.Logger
}

// Connect dials the server at url.
func Connect(url string, m Metrics, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	setConnected := func(v bool) {
		if m != nil {
			m.NATSSetConnected(v)
		}
	}

	nc, err := nats.Connect(url,
		nats.Name("aeronav"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			setConnected(false)
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			setConnected(true)
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	setConnected(true)
	return New(nc, m, logger), nil
}

// New wraps an established connection.
func New(nc Conn, m Metrics, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, metrics: m, log: logger}
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// CatalogEvent announces a freshly built catalog.
type CatalogEvent struct {
	Key       string         `json:"key"`
	Version   uint64         `json:"version"`
	Source    aero.Source    `json:"source"`
	BuiltAt   time.Time      `json:"built_at"`
	Counts    catalog.Counts `json:"counts"`
	Published time.Time      `json:"published_at"`
}

// CatalogPublished announces c on aeronav.catalog.refreshed.<key>.
func (p *NATSPublisher) CatalogPublished(_ context.Context, c *catalog.Catalog) error {
	ev := CatalogEvent{
		Key:       c.Key,
		Version:   c.Version,
		Source:    c.Source,
		BuiltAt:   c.BuiltAt,
		Counts:    c.Counts(),
		Published: time.Now().UTC(),
	}
	return p.publish(SubjectCatalogRefreshed+"."+subjectToken(c.Key), ev)
}

// ConflictEvent lists the airspaces of a route that require a clearance or
// are restricted.
type ConflictEvent struct {
	ReportID   string        `json:"report_id"`
	SessionID  string        `json:"session_id,omitempty"`
	CatalogKey string        `json:"catalog_key"`
	Source     aero.Source   `json:"source"`
	Route      string        `json:"route"`
	Conflicts  []route.Entry `json:"conflicts"`
	At         time.Time     `json:"generated_at"`
}

// PublishConflicts publishes the conflicts of r, if any, on
// aeronav.traversal.conflict.<route>. The route token joins the first and
// last waypoint ids.
func (p *NATSPublisher) PublishConflicts(_ context.Context, sessionID string, r *route.Report) error {
	var conflicts []route.Entry
	seen := map[string]bool{}
	for _, s := range r.Segments {
		for _, e := range s.Conflicts {
			if !seen[e.ID] {
				seen[e.ID] = true
				conflicts = append(conflicts, e)
			}
		}
	}
	if len(conflicts) == 0 {
		return nil
	}

	name := routeName(r)
	ev := ConflictEvent{
		ReportID:   r.ID,
		SessionID:  sessionID,
		CatalogKey: r.CatalogKey,
		Source:     r.Source,
		Route:      name,
		Conflicts:  conflicts,
		At:         r.GeneratedAt,
	}
	return p.publish(SubjectConflict+"."+subjectToken(name), ev)
}

func routeName(r *route.Report) string {
	if len(r.Segments) == 0 {
		return ""
	}
	first := r.Segments[0].Segment.From.ID
	last := r.Segments[len(r.Segments)-1].Segment.To.ID
	return first + "-" + last
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	p.log.Debug("nats publish", "subject", subject)

	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// subjectToken makes s usable as a single NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_", ":", "_", ",", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
