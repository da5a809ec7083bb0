// Package config loads and validates ingest configuration via Viper.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Auth       AuthConfig              `mapstructure:"auth"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Telemetry  TelemetryConfig         `mapstructure:"telemetry"`
	Dispatcher DispatcherConfig        `mapstructure:"dispatcher"`
	Headless   HeadlessConfig          `mapstructure:"headless"`
	Storage    StorageConfig           `mapstructure:"storage"`
	DB         DBConfig                `mapstructure:"db"`
	Archive    ArchiveConfig           `mapstructure:"archive"`
	Notify     NotifyConfig            `mapstructure:"notify"`
	Vocabulary VocabularyConfig        `mapstructure:"vocabulary"`
	Run        RunConfig               `mapstructure:"run"`
	Defaults   SourceConfig            `mapstructure:"source_defaults"`
	Sources    map[string]SourceConfig `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry setup.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}

// DispatcherConfig sizes the worker pool that executes scheduled runs.
type DispatcherConfig struct {
	Workers    int  `mapstructure:"workers"`
	QueueDepth int  `mapstructure:"queue_depth"`
	Schedule   bool `mapstructure:"schedule"`
}

// HeadlessConfig configures the optional browser fallback.
type HeadlessConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxParallel        int  `mapstructure:"max_parallel"`
	NavTimeoutSec      int  `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold int  `mapstructure:"promotion_threshold"`
}

// StorageConfig selects the article repository.
type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	Table        string `mapstructure:"table"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	SQLitePath         string `mapstructure:"sqlite_path"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSec int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ArchiveConfig controls raw HTML archiving of inserted articles.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// NotifyConfig selects how inserted articles are announced downstream.
type NotifyConfig struct {
	Backend string        `mapstructure:"backend"`
	Topic   string        `mapstructure:"topic"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// KafkaConfig holds broker addresses for the Kafka notifier.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// WebhookConfig points the HTTP notifier at the analysis service.
type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Retries        int    `mapstructure:"retries"`
}

// VocabularyConfig holds the canonical source and category vocabularies.
type VocabularyConfig struct {
	Categories      []string          `mapstructure:"categories"`
	CategoryAliases map[string]string `mapstructure:"category_aliases"`
	SourceAliases   map[string]string `mapstructure:"source_aliases"`
	FuzzyThreshold  float64           `mapstructure:"fuzzy_threshold"`
}

// RunConfig tunes the orchestrator.
type RunConfig struct {
	MaxReportErrors int `mapstructure:"max_report_errors"`
}

// SourceConfig is the static, human-edited configuration of one external site.
type SourceConfig struct {
	Name               string             `mapstructure:"name"`
	Aliases            []string           `mapstructure:"aliases"`
	DefaultCategory    string             `mapstructure:"default_category"`
	Target             int                `mapstructure:"target"`
	MaxTarget          int                `mapstructure:"max_target"`
	Identities         []IdentityConfig   `mapstructure:"identities"`
	RequestDelay       DelayConfig        `mapstructure:"request_delay"`
	CandidateDelay     DelayConfig        `mapstructure:"candidate_delay"`
	Retry              RetryConfig        `mapstructure:"retry"`
	TimeoutSeconds     int                `mapstructure:"timeout_seconds"`
	MaxBodyBytes       int                `mapstructure:"max_body_bytes"`
	MaxRPS             float64            `mapstructure:"max_rps"`
	InsecureSkipVerify *bool              `mapstructure:"insecure_skip_verify"`
	CloudflareBypass   *bool              `mapstructure:"cloudflare_bypass"`
	RespectRobots      *bool              `mapstructure:"respect_robots"`
	Headless           *bool              `mapstructure:"headless"`
	Strategies         []StrategyConfig   `mapstructure:"strategies"`
	Authenticity       AuthenticityConfig `mapstructure:"authenticity"`
	Extraction         ExtractionConfig   `mapstructure:"extraction"`
	CategoryAliases    map[string]string  `mapstructure:"category_aliases"`
	ScheduleMinutes    int                `mapstructure:"schedule_minutes"`
}

// IdentityConfig is one request identity in the rotation pool.
type IdentityConfig struct {
	UserAgent      string            `mapstructure:"user_agent"`
	Accept         string            `mapstructure:"accept"`
	AcceptLanguage string            `mapstructure:"accept_language"`
	Referer        string            `mapstructure:"referer"`
	Headers        map[string]string `mapstructure:"headers"`
}

// DelayConfig bounds a uniformly drawn delay.
type DelayConfig struct {
	MinMs int `mapstructure:"min_ms"`
	MaxMs int `mapstructure:"max_ms"`
}

// Min returns the lower bound as a duration.
func (d DelayConfig) Min() time.Duration { return time.Duration(d.MinMs) * time.Millisecond }

// Max returns the upper bound as a duration.
func (d DelayConfig) Max() time.Duration { return time.Duration(d.MaxMs) * time.Millisecond }

// RetryConfig holds the retry ceiling and backoff bounds.
type RetryConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	BaseDelayMs    int `mapstructure:"base_delay_ms"`
	MaxDelayMs     int `mapstructure:"max_delay_ms"`
	RateLimitMinMs int `mapstructure:"rate_limit_min_ms"`
	RateLimitMaxMs int `mapstructure:"rate_limit_max_ms"`
}

// StrategyConfig declares one acquisition strategy.
type StrategyConfig struct {
	Type          string   `mapstructure:"type"`
	URL           string   `mapstructure:"url"`
	URLs          []string `mapstructure:"urls"`
	MinPathDepth  int      `mapstructure:"min_path_depth"`
	DenyFragments []string `mapstructure:"deny_fragments"`
	AllowHosts    []string `mapstructure:"allow_hosts"`
}

// Strategy types understood by the source package.
const (
	StrategyFeed    = "feed"
	StrategyListing = "listing"
	StrategyDirect  = "direct"
)

// AuthenticityConfig tunes the positive-signal classifier.
type AuthenticityConfig struct {
	BrandNames           []string `mapstructure:"brand_names"`
	TitleDelimiters      []string `mapstructure:"title_delimiters"`
	MinTitleLength       int      `mapstructure:"min_title_length"`
	MinDescriptionLength int      `mapstructure:"min_description_length"`
	BoilerplatePhrases   []string `mapstructure:"boilerplate_phrases"`
	MetadataMarkers      []string `mapstructure:"metadata_markers"`
}

// ExtractionConfig holds per-field rule lists and validation bounds.
type ExtractionConfig struct {
	Title               []RuleConfig `mapstructure:"title"`
	Body                []RuleConfig `mapstructure:"body"`
	Category            []RuleConfig `mapstructure:"category"`
	Timestamp           []RuleConfig `mapstructure:"timestamp"`
	MinTitleLength      int          `mapstructure:"min_title_length"`
	MinBodyLength       int          `mapstructure:"min_body_length"`
	MaxBodyLength       int          `mapstructure:"max_body_length"`
	BoilerplatePhrases  []string     `mapstructure:"boilerplate_phrases"`
	TitleRejectPatterns []string     `mapstructure:"title_reject_patterns"`
	TitleStripSuffixes  []string     `mapstructure:"title_strip_suffixes"`
}

// RuleConfig is the tagged-variant form of one extraction rule.
type RuleConfig struct {
	Kind     string `mapstructure:"kind"`
	Name     string `mapstructure:"name"`
	Selector string `mapstructure:"selector"`
	Attr     string `mapstructure:"attr"`
	Segment  int    `mapstructure:"segment"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
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
	if err := cfg.applySourceDefaults(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "realtime-news-ingest")
	v.SetDefault("dispatcher.workers", 2)
	v.SetDefault("dispatcher.queue_depth", 64)
	v.SetDefault("dispatcher.schedule", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.table", "articles")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("notify.backend", "none")
	v.SetDefault("notify.topic", "articles.inserted")
	v.SetDefault("notify.webhook.timeout_seconds", 10)
	v.SetDefault("notify.webhook.retries", 2)
	v.SetDefault("vocabulary.fuzzy_threshold", 0.92)
	v.SetDefault("run.max_report_errors", ingest.DefaultMaxReportErrors)

	v.SetDefault("source_defaults.target", 20)
	v.SetDefault("source_defaults.max_target", 100)
	v.SetDefault("source_defaults.default_category", "general")
	v.SetDefault("source_defaults.request_delay.min_ms", 1500)
	v.SetDefault("source_defaults.request_delay.max_ms", 4000)
	v.SetDefault("source_defaults.candidate_delay.min_ms", 2000)
	v.SetDefault("source_defaults.candidate_delay.max_ms", 6000)
	v.SetDefault("source_defaults.retry.max_attempts", 3)
	v.SetDefault("source_defaults.retry.base_delay_ms", 1000)
	v.SetDefault("source_defaults.retry.max_delay_ms", 15000)
	v.SetDefault("source_defaults.retry.rate_limit_min_ms", 30000)
	v.SetDefault("source_defaults.retry.rate_limit_max_ms", 60000)
	v.SetDefault("source_defaults.timeout_seconds", 20)
	v.SetDefault("source_defaults.max_body_bytes", 5<<20)
	v.SetDefault("source_defaults.identities", []map[string]any{
		{
			"user_agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
			"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"accept_language": "en-US,en;q=0.9",
			"referer":         "https://www.google.com/",
		},
		{
			"user_agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"accept_language": "en-GB,en;q=0.8",
			"referer":         "https://www.bing.com/",
		},
		{
			"user_agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0",
			"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"accept_language": "en-US,en;q=0.5",
			"referer":         "https://duckduckgo.com/",
		},
	})
}

// applySourceDefaults layers source_defaults under every configured source.
func (c *Config) applySourceDefaults() error {
	for id, src := range c.Sources {
		merged := src
		if err := mergo.Merge(&merged, c.Defaults); err != nil {
			return fmt.Errorf("merge defaults into source %q: %w", id, err)
		}
		if merged.Name == "" {
			merged.Name = id
		}
		c.Sources[id] = merged
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("dispatcher.workers must be > 0")
	}
	if c.Dispatcher.QueueDepth <= 0 {
		return fmt.Errorf("dispatcher.queue_depth must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	for _, id := range c.SourceIDs() {
		if err := c.Sources[id].Validate(id); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("db.sqlite_path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, postgres, sqlite")
	}
	return nil
}

func (c Config) validateArchive() error {
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs")
	}
	return nil
}

func (c Config) validateNotify() error {
	switch c.Notify.Backend {
	case "", "none", "memory":
	case "pubsub":
		if c.Notify.PubSub.ProjectID == "" {
			return fmt.Errorf("notify.pubsub.project_id must be set for the pubsub backend")
		}
	case "kafka":
		if len(c.Notify.Kafka.Brokers) == 0 {
			return fmt.Errorf("notify.kafka.brokers must be set for the kafka backend")
		}
	case "webhook":
		if c.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url must be set for the webhook backend")
		}
	default:
		return fmt.Errorf("notify.backend must be one of none, memory, pubsub, kafka, webhook")
	}
	if c.Notify.Backend != "" && c.Notify.Backend != "none" && c.Notify.Topic == "" {
		return fmt.Errorf("notify.topic must be set")
	}
	return nil
}

// Validate checks one source block; errors wrap ingest.ErrConfiguration.
func (s SourceConfig) Validate(id string) error {
	prefix := "sources." + id
	if strings.TrimSpace(s.Name) == "" {
		return ingest.Configf("%s.name must be set", prefix)
	}
	if len(s.Identities) == 0 {
		return ingest.Configf("%s.identities must not be empty", prefix)
	}
	for i, identity := range s.Identities {
		if strings.TrimSpace(identity.UserAgent) == "" {
			return ingest.Configf("%s.identities[%d].user_agent must be set", prefix, i)
		}
	}
	if err := validateDelay(prefix+".request_delay", s.RequestDelay); err != nil {
		return err
	}
	if err := validateDelay(prefix+".candidate_delay", s.CandidateDelay); err != nil {
		return err
	}
	if s.Retry.MaxAttempts <= 0 {
		return ingest.Configf("%s.retry.max_attempts must be > 0", prefix)
	}
	if s.Retry.BaseDelayMs < 0 || s.Retry.MaxDelayMs < s.Retry.BaseDelayMs {
		return ingest.Configf("%s.retry.max_delay_ms must be >= base_delay_ms >= 0", prefix)
	}
	if s.Retry.RateLimitMinMs < 0 || s.Retry.RateLimitMaxMs < s.Retry.RateLimitMinMs {
		return ingest.Configf("%s.retry.rate_limit_max_ms must be >= rate_limit_min_ms >= 0", prefix)
	}
	if s.TimeoutSeconds <= 0 {
		return ingest.Configf("%s.timeout_seconds must be > 0", prefix)
	}
	if s.Target < 0 || (s.MaxTarget > 0 && s.Target > s.MaxTarget) {
		return ingest.Configf("%s.target must be between 0 and max_target", prefix)
	}
	if len(s.Strategies) == 0 {
		return ingest.Configf("%s.strategies must not be empty", prefix)
	}
	for i, strategy := range s.Strategies {
		if err := strategy.validate(fmt.Sprintf("%s.strategies[%d]", prefix, i)); err != nil {
			return err
		}
	}
	return nil
}

func (s StrategyConfig) validate(prefix string) error {
	switch s.Type {
	case StrategyFeed:
		if s.URL == "" {
			return ingest.Configf("%s.url must be set for feed strategies", prefix)
		}
	case StrategyListing:
		if s.URL == "" && len(s.URLs) == 0 {
			return ingest.Configf("%s.url or urls must be set for listing strategies", prefix)
		}
		if s.MinPathDepth <= 0 {
			return ingest.Configf("%s.min_path_depth must be > 0", prefix)
		}
	case StrategyDirect:
		if len(s.URLs) == 0 {
			return ingest.Configf("%s.urls must be set for direct strategies", prefix)
		}
	default:
		return ingest.Configf("%s.type must be one of feed, listing, direct", prefix)
	}
	return nil
}

func validateDelay(prefix string, d DelayConfig) error {
	if d.MinMs < 0 || d.MaxMs < d.MinMs {
		return ingest.Configf("%s.max_ms must be >= min_ms >= 0", prefix)
	}
	return nil
}

// SourceIDs returns the configured source identifiers in sorted order.
func (c Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for id := range c.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Timeout returns the per-attempt request timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout.
func (h HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(h.NavTimeoutSec) * time.Second
}

// MaxConnLifetime converts the pool lifetime setting.
func (d DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(d.MaxConnLifetimeSec) * time.Second
}

// Enabled dereferences an optional flag, treating nil as false.
func Enabled(flag *bool) bool {
	return flag != nil && *flag
}
