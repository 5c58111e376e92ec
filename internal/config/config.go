// Package config loads and validates taxcrawl configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// Cache backends.
const (
	BackendFilesystem = "filesystem"
	BackendGCS        = "gcs"
	BackendS3         = "s3"
	BackendMemory     = "memory"
)

// Queue store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Cache     CacheConfig     `mapstructure:"cache"`
	DB        DBConfig        `mapstructure:"db"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	PDFToText PDFToTextConfig `mapstructure:"pdftotext"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	GeoSearch GeoSearchConfig `mapstructure:"geosearch"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CacheConfig selects and configures the document cache backend.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	// Dir is the filesystem backend's root.
	Dir    string `mapstructure:"dir"`
	Bucket string `mapstructure:"bucket"`
	// Compress stores section pages brotli-compressed.
	Compress   bool     `mapstructure:"compress"`
	HTMLPrefix string   `mapstructure:"html_prefix"`
	PublicRead bool     `mapstructure:"public_read"`
	S3         S3Config `mapstructure:"s3"`
}

// S3Config holds the S3-compatible endpoint settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
}

// DBConfig selects the queue store.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CrawlConfig governs the dispatcher and document filter.
type CrawlConfig struct {
	Table       string `mapstructure:"table"`
	Concurrency int    `mapstructure:"concurrency"`
	OnlyYear    int    `mapstructure:"only_year"`
	OnlyNOPV    bool   `mapstructure:"only_nopv"`
	OnlySOA     bool   `mapstructure:"only_soa"`
	SOAQuarters []int  `mapstructure:"soa_quarters"`
}

// BrowserConfig configures the headless browser sessions.
type BrowserConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Headless     bool          `mapstructure:"headless"`
	RestartAfter int           `mapstructure:"restart_after"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	// SearchQPS caps property searches across all sessions. Zero disables throttling.
	SearchQPS float64 `mapstructure:"search_qps"`
	UserAgent string  `mapstructure:"user_agent"`
	SearchURL string  `mapstructure:"search_url"`
}

// PDFToTextConfig locates the converter executable.
type PDFToTextConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig configures plain HTTP downloads.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// GeoSearchConfig points at the address geocoder.
type GeoSearchConfig struct {
	URL string `mapstructure:"url"`
}

// PubSubConfig enables progress notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether progress should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TAXCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultCacheDir is the filesystem cache root when none is configured.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "taxcrawl")
}

const defaultUserAgent = "taxcrawl/0.1 (+https://github.com/JakeFAU/taxcrawl)"

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("cache.backend", BackendFilesystem)
	v.SetDefault("cache.dir", DefaultCacheDir())
	v.SetDefault("cache.compress", false)
	v.SetDefault("cache.html_prefix", "html")
	v.SetDefault("cache.public_read", true)
	v.SetDefault("cache.s3.region", "us-east-1")
	v.SetDefault("cache.s3.use_ssl", true)
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.dsn", filepath.Join(DefaultCacheDir(), "queue.db"))
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("crawl.table", "bbls")
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.only_year", 0)
	v.SetDefault("crawl.only_nopv", false)
	v.SetDefault("crawl.only_soa", false)
	v.SetDefault("crawl.soa_quarters", []int{1})
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.restart_after", 1000)
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("browser.search_qps", 0)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.search_url", "")
	v.SetDefault("pdftotext.path", "pdftotext")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.user_agent", defaultUserAgent)
	v.SetDefault("geosearch.url", "")
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case BackendFilesystem:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the filesystem backend"))
		}
	case BackendGCS, BackendS3:
		if c.Cache.Bucket == "" {
			errs = append(errs, fmt.Errorf("cache.bucket is required for the %s backend", c.Cache.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of filesystem, gcs, s3, memory", c.Cache.Backend))
	}
	if c.Cache.Backend == BackendS3 && c.Cache.S3.Endpoint == "" {
		errs = append(errs, errors.New("cache.s3.endpoint is required for the s3 backend"))
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
		if c.DB.DSN == "" {
			errs = append(errs, fmt.Errorf("db.dsn is required for the %s driver", c.DB.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not one of postgres, sqlite, memory", c.DB.Driver))
	}
	if err := queue.ValidateTable(c.Crawl.Table); err != nil {
		errs = append(errs, fmt.Errorf("crawl.table: %w", err))
	}
	if c.Crawl.Concurrency <= 0 {
		errs = append(errs, errors.New("crawl.concurrency must be > 0"))
	}
	if c.Crawl.OnlyNOPV && c.Crawl.OnlySOA {
		errs = append(errs, errors.New("crawl.only_nopv and crawl.only_soa are mutually exclusive"))
	}
	for _, q := range c.Crawl.SOAQuarters {
		if q < 1 || q > 4 {
			errs = append(errs, fmt.Errorf("crawl.soa_quarters: %d is not a quarter", q))
		}
	}
	if c.Browser.RestartAfter < 0 {
		errs = append(errs, errors.New("browser.restart_after must be >= 0"))
	}
	if c.Browser.SearchQPS < 0 {
		errs = append(errs, errors.New("browser.search_qps must be >= 0"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic must be set together"))
	}
	return errors.Join(errs...)
}
