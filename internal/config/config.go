// Package config loads and validates roster-crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// EnvPrefix namespaces environment overrides, e.g. ROSTER_CRAWLER_CONCURRENCY.
const EnvPrefix = "ROSTER"

// Output sink names accepted in sink.outputs.
const (
	OutputJSONL    = "jsonl"
	OutputSQLite   = "sqlite"
	OutputPostgres = "postgres"
	OutputGCS      = "gcs"
	OutputPubSub   = "pubsub"
	OutputMemory   = "memory"
)

var knownOutputs = []string{OutputJSONL, OutputSQLite, OutputPostgres, OutputGCS, OutputPubSub, OutputMemory}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Roster   RosterConfig   `mapstructure:"roster"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RosterConfig describes the listing endpoint.
type RosterConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	LayoutID       int      `mapstructure:"layout_id"`
	PageSize       int      `mapstructure:"page_size"`
	SortBy         string   `mapstructure:"sort_by"`
	StartPage      int      `mapstructure:"start_page"`
	MaxPages       int      `mapstructure:"max_pages"`
	AllowedDomains []string `mapstructure:"allowed_domains"`
}

// CrawlerConfig governs fetch behavior.
type CrawlerConfig struct {
	Concurrency           int     `mapstructure:"concurrency"`
	UserAgent             string  `mapstructure:"user_agent"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	RateLimitRPS          float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`
	MaxAttempts           int     `mapstructure:"max_attempts"`
	RetryBaseDelayMillis  int     `mapstructure:"retry_base_delay_ms"`
	ProfileHeadless       bool    `mapstructure:"profile_headless"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WaitSelector  string `mapstructure:"wait_selector"`
}

// SinkConfig selects and configures record outputs.
type SinkConfig struct {
	Outputs    []string       `mapstructure:"outputs"`
	BufferSize int            `mapstructure:"buffer_size"`
	JSONL      JSONLConfig    `mapstructure:"jsonl"`
	SQLite     SQLiteConfig   `mapstructure:"sqlite"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	GCS        GCSConfig      `mapstructure:"gcs"`
	PubSub     PubSubConfig   `mapstructure:"pubsub"`
}

// JSONLConfig configures the JSON Lines output.
type JSONLConfig struct {
	Path   string `mapstructure:"path"`
	Append bool   `mapstructure:"append"`
}

// SQLiteConfig configures the SQLite output.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	RunsTable string `mapstructure:"runs_table"`
	MaxConns  int32  `mapstructure:"max_conns"`
}

// GCSConfig sets the bucket and prefix for record objects.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig holds the destination topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

// DefaultSQLitePath is the database location under the XDG data directory.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, "roster-crawler", "roster.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("roster.base_url", "https://www.bhhsamb.com/CMS/CmsRoster/RosterSearchResults")
	v.SetDefault("roster.layout_id", 963)
	v.SetDefault("roster.page_size", 10)
	v.SetDefault("roster.sort_by", "random")
	v.SetDefault("roster.start_page", 1)
	v.SetDefault("roster.max_pages", 0)
	v.SetDefault("roster.allowed_domains", []string{"www.bhhsamb.com"})
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.user_agent", "roster-crawler/0.1")
	v.SetDefault("crawler.request_timeout_seconds", 15)
	v.SetDefault("crawler.rate_limit_rps", 4.0)
	v.SetDefault("crawler.rate_limit_burst", 4)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.retry_base_delay_ms", 250)
	v.SetDefault("crawler.profile_headless", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("sink.outputs", []string{OutputJSONL})
	v.SetDefault("sink.buffer_size", 64)
	v.SetDefault("sink.jsonl.path", "-")
	v.SetDefault("sink.jsonl.append", false)
	v.SetDefault("sink.sqlite.path", DefaultSQLitePath())
	v.SetDefault("sink.postgres.table", "agent_profiles")
	v.SetDefault("sink.postgres.runs_table", "crawl_runs")
	v.SetDefault("sink.gcs.prefix", "profiles")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if u, err := url.Parse(c.Roster.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("roster.base_url must be an absolute URL")
	}
	if c.Roster.PageSize <= 0 {
		return fmt.Errorf("roster.page_size must be > 0")
	}
	if c.Roster.StartPage < 0 {
		return fmt.Errorf("roster.start_page must be >= 0")
	}
	if c.Roster.MaxPages < 0 {
		return fmt.Errorf("roster.max_pages must be >= 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.RateLimitRPS < 0 {
		return fmt.Errorf("crawler.rate_limit_rps must be >= 0")
	}
	if c.Crawler.MaxAttempts < 0 {
		return fmt.Errorf("crawler.max_attempts must be >= 0")
	}
	if c.Crawler.ProfileHeadless && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when crawler.profile_headless is set")
	}
	if c.Sink.BufferSize <= 0 {
		return fmt.Errorf("sink.buffer_size must be > 0")
	}
	if len(c.Sink.Outputs) == 0 {
		return fmt.Errorf("sink.outputs must name at least one output")
	}
	for _, out := range c.Sink.Outputs {
		if !slices.Contains(knownOutputs, out) {
			return fmt.Errorf("sink.outputs: unknown output %q", out)
		}
	}
	if c.HasOutput(OutputPostgres) && c.Sink.Postgres.DSN == "" {
		return fmt.Errorf("sink.postgres.dsn must be set when the postgres output is enabled")
	}
	if c.HasOutput(OutputGCS) && c.Sink.GCS.Bucket == "" {
		return fmt.Errorf("sink.gcs.bucket must be set when the gcs output is enabled")
	}
	if c.HasOutput(OutputPubSub) && (c.Sink.PubSub.ProjectID == "" || c.Sink.PubSub.Topic == "") {
		return fmt.Errorf("sink.pubsub.project_id and sink.pubsub.topic must be set when the pubsub output is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// HasOutput reports whether name is listed in sink.outputs.
func (c Config) HasOutput(name string) bool {
	return slices.Contains(c.Sink.Outputs, name)
}

// RequestTimeout converts the configured per-request deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// RetryBaseDelay converts the configured first backoff step.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Crawler.RetryBaseDelayMillis) * time.Millisecond
}

// NavigationTimeout converts the configured headless navigation deadline.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// CrawlerConfig maps the loaded settings onto the engine configuration.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		RosterURL:      c.Roster.BaseURL,
		LayoutID:       c.Roster.LayoutID,
		PageSize:       c.Roster.PageSize,
		SortBy:         c.Roster.SortBy,
		StartPage:      c.Roster.StartPage,
		MaxPages:       c.Roster.MaxPages,
		Concurrency:    c.Crawler.Concurrency,
		RequestTimeout: c.RequestTimeout(),
	}
}
