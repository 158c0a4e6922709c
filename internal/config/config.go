// Package config reads the service configuration from a .env file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aeronav/internal/storage"
)

type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string

	AIXMPath string

	OpenAIPBaseURL string
	OpenAIPAPIKey  string
	OpenAIPCountry string
	OpenAIPTimeout time.Duration

	CatalogTTL     time.Duration
	ExceptionsPath string
	SnapshotDir    string

	AltitudeFilter      bool
	ProximityKm         float64
	BBoxMarginDeg       float64
	PlannedAltitudeFeet int
	VORDMETolerance     float64

	// Postgres is nil unless DATABASE_URL or POSTGRES_HOST is set.
	Postgres   *storage.PostgresConfig
	SQLitePath string
	// ClickHouse is nil unless CLICKHOUSE_HOST is set.
	ClickHouse *storage.ClickHouseConfig

	NATSURL     string
	MetricsAddr string

	LogLevel string
	LogDir   string
}

// Load reads .env (ignored if missing) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AIXMPath:       os.Getenv("AERONAV_AIXM_PATH"),
		OpenAIPBaseURL: getenvDefault("OPENAIP_BASE_URL", "https://api.core.openaip.net/api"),
		OpenAIPAPIKey:  os.Getenv("OPENAIP_API_KEY"),
		OpenAIPCountry: getenvDefault("OPENAIP_COUNTRY", "FR"),
		ExceptionsPath: os.Getenv("CATALOG_EXCEPTIONS_PATH"),
		SnapshotDir:    os.Getenv("CATALOG_SNAPSHOT_DIR"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),
		NATSURL:        os.Getenv("NATS_URL"),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		LogDir:         os.Getenv("LOG_DIR"),
	}

	var err error
	if cfg.Port, err = intVar("AERONAV_PORT", 8081, 1); err != nil {
		return nil, err
	}
	if cfg.AuthEnabled, err = boolVar("AERONAV_AUTH", false); err != nil {
		return nil, err
	}
	cfg.APIKeys = splitList(os.Getenv("AERONAV_API_KEYS"))

	sec, err := intVar("OPENAIP_TIMEOUT_SEC", 60, 1)
	if err != nil {
		return nil, err
	}
	cfg.OpenAIPTimeout = time.Duration(sec) * time.Second

	mins, err := intVar("CATALOG_TTL_MIN", 30, 1)
	if err != nil {
		return nil, err
	}
	cfg.CatalogTTL = time.Duration(mins) * time.Minute

	if cfg.AltitudeFilter, err = boolVar("ANALYSIS_ALTITUDE_FILTER", true); err != nil {
		return nil, err
	}
	if cfg.ProximityKm, err = floatVar("ANALYSIS_PROXIMITY_KM", 5); err != nil {
		return nil, err
	}
	if cfg.BBoxMarginDeg, err = floatVar("ANALYSIS_BBOX_MARGIN_DEG", 0.5); err != nil {
		return nil, err
	}
	if cfg.PlannedAltitudeFeet, err = intVar("ANALYSIS_PLANNED_ALTITUDE_FT", 3000, 0); err != nil {
		return nil, err
	}
	if cfg.VORDMETolerance, err = floatVar("ENRICH_VORDME_TOLERANCE_DEG", 0.001); err != nil {
		return nil, err
	}

	if url, host := os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_HOST"); url != "" || host != "" {
		port, err := intVar("POSTGRES_PORT", 5432, 1)
		if err != nil {
			return nil, err
		}
		cfg.Postgres = &storage.PostgresConfig{
			URL:      url,
			Host:     getenvDefault("POSTGRES_HOST", "localhost"),
			Port:     port,
			Database: firstNonEmpty(os.Getenv("POSTGRES_DATABASE"), os.Getenv("POSTGRES_DB"), "aeronav"),
			User:     getenvDefault("POSTGRES_USER", "aeronav"),
			Password: getenvDefault("POSTGRES_PASSWORD", "aeronav"),
		}
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		port, err := intVar("CLICKHOUSE_PORT", 9000, 1)
		if err != nil {
			return nil, err
		}
		cfg.ClickHouse = &storage.ClickHouseConfig{
			Host:     host,
			Port:     port,
			Database: getenvDefault("CLICKHOUSE_DATABASE", "aeronav"),
			User:     getenvDefault("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		}
	}

	return cfg, nil
}

// Storage returns the backend settings.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		ClickHouse: c.ClickHouse,
		Postgres:   c.Postgres,
		SQLitePath: c.SQLitePath,
	}
}

func intVar(key string, def, lowest int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lowest {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func floatVar(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func boolVar(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q", key, v)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
