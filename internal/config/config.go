// Package config provides configuration management for the kinship services.
// Settings start from defaults, are overlaid by an optional YAML file, and
// finally by environment variables with the KINSHIP_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/kinship/internal/lineage"
)

// Source kinds.
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Config holds all configuration settings.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Source SourceConfig `yaml:"source"`
	Cache  CacheConfig  `yaml:"cache"`
	Query  QueryConfig  `yaml:"query"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // default: 7373
	Host string `yaml:"host"` // default: 127.0.0.1

	// RateLimitRPS and RateLimitBurst bound requests per client IP
	// (defaults: 20 and 40).
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// RequestTimeout bounds one relationship query (default: 20s).
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AllowTrace lets clients request a query trace (default: true).
	AllowTrace bool `yaml:"allow_trace"`
}

// SourceConfig selects and configures the chunk source.
type SourceConfig struct {
	Kind string `yaml:"kind"` // file, http, sqlite, postgres (default: file)

	// Dir is the static archive directory for the file source (default: ./data).
	Dir string `yaml:"dir"`

	// BaseURL is the archive host for the http source.
	BaseURL           string        `yaml:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // default: 20
	Burst             int           `yaml:"burst"`               // default: 10
	Timeout           time.Duration `yaml:"timeout"`             // default: 15s

	SQLitePath  string `yaml:"sqlite_path"` // default: ./data/kinship.db
	PostgresDSN string `yaml:"postgres_dsn"`
}

// CacheConfig sizes the lineage cache.
type CacheConfig struct {
	// DeviceClass forces mobile or desktop sizing. Empty means derive it
	// from ViewportWidth.
	DeviceClass   string `yaml:"device_class"`
	ViewportWidth int    `yaml:"viewport_width"`

	MobileCapacity          int `yaml:"mobile_capacity"`           // default: 3
	DesktopCapacity         int `yaml:"desktop_capacity"`          // default: 6
	MobileViewportThreshold int `yaml:"mobile_viewport_threshold"` // default: 768
}

// QueryConfig bounds relationship queries.
type QueryConfig struct {
	MaxDepth int `yaml:"max_depth"` // default: 6
}

// LoadConfig builds the configuration. path names an optional YAML file;
// when empty, KINSHIP_CONFIG_FILE is consulted. Environment variables take
// precedence over the file.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("KINSHIP_CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceFile:
		if c.Source.Dir == "" {
			return errors.New("config: source dir is required for the file source")
		}
	case SourceHTTP:
		if c.Source.BaseURL == "" {
			return errors.New("config: KINSHIP_SOURCE_URL is required for the http source")
		}
	case SourceSQLite:
		if c.Source.SQLitePath == "" {
			return errors.New("config: sqlite path is required for the sqlite source")
		}
	case SourcePostgres:
		if c.Source.PostgresDSN == "" {
			return errors.New("config: KINSHIP_POSTGRES_DSN is required for the postgres source")
		}
	default:
		return fmt.Errorf("config: unknown source kind %q", c.Source.Kind)
	}

	switch lineage.DeviceClass(c.Cache.DeviceClass) {
	case "", lineage.DeviceMobile, lineage.DeviceDesktop:
	default:
		return fmt.Errorf("config: unknown device class %q", c.Cache.DeviceClass)
	}

	if c.Query.MaxDepth < 1 {
		return fmt.Errorf("config: max depth must be positive, got %d", c.Query.MaxDepth)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	return nil
}

// Sizing returns the cache sizing table.
func (c *CacheConfig) Sizing() lineage.Sizing {
	s := lineage.Sizing{
		MobileCapacity:          c.MobileCapacity,
		DesktopCapacity:         c.DesktopCapacity,
		MobileViewportThreshold: c.MobileViewportThreshold,
	}
	s.Normalize()
	return s
}

// Class returns the configured device class, deriving it from the viewport
// width when none is forced.
func (c *CacheConfig) Class() lineage.DeviceClass {
	if c.DeviceClass != "" {
		return lineage.DeviceClass(c.DeviceClass)
	}
	return c.Sizing().Classify(c.ViewportWidth)
}

// Capacity returns the number of lineage chunks the cache may hold.
func (c *CacheConfig) Capacity() int {
	return c.Sizing().CapacityFor(c.Class())
}

func defaultConfig() *Config {
	sizing := lineage.DefaultSizing()
	return &Config{
		Server: ServerConfig{
			Port:           7373,
			Host:           "127.0.0.1",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			RequestTimeout: 20 * time.Second,
			AllowTrace:     true,
		},
		Source: SourceConfig{
			Kind:              SourceFile,
			Dir:               "./data",
			RequestsPerSecond: 20,
			Burst:             10,
			Timeout:           15 * time.Second,
			SQLitePath:        "./data/kinship.db",
		},
		Cache: CacheConfig{
			MobileCapacity:          sizing.MobileCapacity,
			DesktopCapacity:         sizing.DesktopCapacity,
			MobileViewportThreshold: sizing.MobileViewportThreshold,
		},
		Query: QueryConfig{
			MaxDepth: 6,
		},
	}
}

// overlayFile decodes the YAML file at path over c. Keys absent from the
// file keep their current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides c with any KINSHIP_ environment variables that are set.
func applyEnv(c *Config) {
	c.Server.Port = getEnvInt("KINSHIP_PORT", c.Server.Port)
	c.Server.Host = getEnv("KINSHIP_HOST", c.Server.Host)
	c.Server.RateLimitRPS = getEnvFloat("KINSHIP_RATE_LIMIT_RPS", c.Server.RateLimitRPS)
	c.Server.RateLimitBurst = getEnvInt("KINSHIP_RATE_LIMIT_BURST", c.Server.RateLimitBurst)
	c.Server.RequestTimeout = getEnvDuration("KINSHIP_REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.AllowTrace = getEnvBool("KINSHIP_ALLOW_TRACE", c.Server.AllowTrace)

	c.Source.Kind = strings.ToLower(getEnv("KINSHIP_SOURCE", c.Source.Kind))
	c.Source.Dir = getEnv("KINSHIP_DATA_DIR", c.Source.Dir)
	c.Source.BaseURL = getEnv("KINSHIP_SOURCE_URL", c.Source.BaseURL)
	c.Source.RequestsPerSecond = getEnvFloat("KINSHIP_SOURCE_RPS", c.Source.RequestsPerSecond)
	c.Source.Burst = getEnvInt("KINSHIP_SOURCE_BURST", c.Source.Burst)
	c.Source.Timeout = getEnvDuration("KINSHIP_SOURCE_TIMEOUT", c.Source.Timeout)
	c.Source.SQLitePath = getEnv("KINSHIP_SQLITE_PATH", c.Source.SQLitePath)
	c.Source.PostgresDSN = getEnv("KINSHIP_POSTGRES_DSN", c.Source.PostgresDSN)

	c.Cache.DeviceClass = strings.ToLower(getEnv("KINSHIP_DEVICE_CLASS", c.Cache.DeviceClass))
	c.Cache.ViewportWidth = getEnvInt("KINSHIP_VIEWPORT_WIDTH", c.Cache.ViewportWidth)
	c.Cache.MobileCapacity = getEnvInt("KINSHIP_CACHE_MOBILE", c.Cache.MobileCapacity)
	c.Cache.DesktopCapacity = getEnvInt("KINSHIP_CACHE_DESKTOP", c.Cache.DesktopCapacity)

	c.Query.MaxDepth = getEnvInt("KINSHIP_MAX_DEPTH", c.Query.MaxDepth)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// Unparsable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("15s") or whole seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvBool recognizes "true", "1", "yes" and "false", "0", "no" in any case.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
