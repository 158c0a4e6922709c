// Package openaip adapts the secondary airspace catalog: an HTTP API that
// returns accurate polygons with coarse numeric metadata. Fetch failures never
// surface as errors; callers receive an empty result and fall back.
package openaip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
)

// Defaults.
const (
	DefaultBaseURL  = "https://api.core.openaip.net/api"
	DefaultTimeout  = 60 * time.Second
	DefaultMaxPages = 50
	PageLimit       = 1000

	maxBodyBytes = 64 << 20
)

// FranceBBox is used when a query carries no bounding box.
var FranceBBox = orb.Bound{Min: orb.Point{-5.5, 41.0}, Max: orb.Point{10.0, 51.5}}

// Query selects airspaces by bounding box and country.
type Query struct {
	BBox    *orb.Bound
	Country string
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat", the layout of the bbox
// query parameter.
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("want 4 comma-separated numbers, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return orb.Bound{}, fmt.Errorf("%q is not a number", p)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	switch {
	case b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1]:
		return orb.Bound{}, errors.New("min exceeds max")
	case b.Min[1] < -90 || b.Max[1] > 90 || b.Min[0] < -180 || b.Max[0] > 180:
		return orb.Bound{}, errors.New("out of range")
	}
	return b, nil
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxPages   int // Upper bound on pages fetched per query, whatever totalPages says.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client fetches airspaces from the secondary catalog.
type Client struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	maxPages int
	http     *http.Client
	log      *slog.Logger
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		maxPages: cfg.MaxPages,
		http:     cfg.HTTPClient,
		log:      cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxPages <= 0 {
		c.maxPages = DefaultMaxPages
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Airspaces fetches every page for the query within the client timeout. Any
// failure on the first page yields an empty result; a failing later page is
// logged and skipped. Paging stops at MaxPages or when the timeout expires,
// keeping the pages fetched so far.
func (c *Client) Airspaces(ctx context.Context, q Query) []aero.Airspace {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, totalPages, err := c.fetchPage(ctx, q, 1)
	if err != nil {
		c.log.Warn("secondary catalog unavailable", "error", err)
		return nil
	}

	if totalPages > c.maxPages {
		c.log.Warn("secondary catalog page count capped", "total_pages", totalPages, "max_pages", c.maxPages)
		totalPages = c.maxPages
	}
	for p := 2; p <= totalPages; p++ {
		if err := ctx.Err(); err != nil {
			c.log.Warn("secondary catalog paging interrupted", "page", p, "total_pages", totalPages, "error", err)
			break
		}
		items, _, err := c.fetchPage(ctx, q, p)
		if err != nil {
			c.log.Warn("secondary catalog page failed", "page", p, "error", err)
			continue
		}
		out = append(out, items...)
	}

	c.log.Info("secondary catalog fetched",
		"airspaces", len(out),
		"pages", totalPages,
		"duration", time.Since(start).Round(time.Millisecond))
	return out
}

func (c *Client) pageURL(q Query, page int) string {
	b := FranceBBox
	if q.BBox != nil {
		b = *q.BBox
	}

	params := url.Values{}
	params.Set("bbox", fmt.Sprintf("%s,%s,%s,%s",
		ftoa(b.Min[0]), ftoa(b.Min[1]), ftoa(b.Max[0]), ftoa(b.Max[1])))
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	params.Set("format", "geojson")
	if c.apiKey != "" {
		params.Set("apiKey", c.apiKey)
	}
	params.Set("limit", strconv.Itoa(PageLimit))
	params.Set("page", strconv.Itoa(page))

	return c.baseURL + "/airspaces?" + params.Encode()
}

func (c *Client) fetchPage(ctx context.Context, q Query, page int) ([]aero.Airspace, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(q, page), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "aeronav/1.0")
	if c.apiKey != "" {
		req.Header.Set("x-openaip-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, 0, fmt.Errorf("page %d: read body: %w", page, err)
	}
	if len(body) > maxBodyBytes {
		return nil, 0, fmt.Errorf("page %d: body exceeds %d bytes", page, maxBodyBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("page %d: status %d: %.200s", page, resp.StatusCode, body)
	}

	return Decode(body)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
