// Package config provides configuration management for the paper analysis service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the paper analysis service.
type Config struct {
	// Server contains HTTP server settings for the admin API.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains LLM client settings for paper analysis.
	LLM LLMConfig `mapstructure:"llm"`
	// Kafka contains Kafka publisher settings for lifecycle events.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// ArXiv contains arXiv API client settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// Mentions contains social/news mention tracking settings.
	Mentions MentionsConfig `mapstructure:"mentions"`
	// Ingestion contains paper ingestion worker settings.
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	// Gaps contains gap detection and backfill settings.
	Gaps GapsConfig `mapstructure:"gaps"`
	// Analysis contains analysis pipeline settings (v1 and v3).
	Analysis AnalysisConfig `mapstructure:"analysis"`
	// Runtime contains runtime toggle and budget defaults.
	Runtime RuntimeConfig `mapstructure:"runtime"`
}

// ServerConfig holds admin API server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxTokens is the completion token budget per call.
	MaxTokens int `mapstructure:"max_tokens"`
	// CallsPerMinute caps LLM calls per minute per analysis queue.
	CallsPerMinute int `mapstructure:"calls_per_minute"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from PAPERPULSE_LLM_OPENAI_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from PAPERPULSE_LLM_ANTHROPIC_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// KafkaConfig holds Kafka publisher settings for lifecycle events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish pipeline events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// ArXivConfig holds arXiv API client settings.
type ArXivConfig struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second (arXiv recommends <= 3).
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query page.
	MaxResults int `mapstructure:"max_results"`
}

// MentionsConfig holds social/news mention tracking settings.
type MentionsConfig struct {
	// SocialAPIKey is the social search API key (loaded from PAPERPULSE_MENTIONS_SOCIAL_API_KEY).
	SocialAPIKey string `mapstructure:"-"`
	// NewsAPIKey is the news search API key (loaded from PAPERPULSE_MENTIONS_NEWS_API_KEY).
	NewsAPIKey string `mapstructure:"-"`
	// SocialBaseURL is the social search API base URL.
	SocialBaseURL string `mapstructure:"social_base_url"`
	// NewsBaseURL is the news search API base URL.
	NewsBaseURL string `mapstructure:"news_base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// EnqueueStagger is the per-item delay between social-monitor jobs for
	// newly ingested papers.
	EnqueueStagger time.Duration `mapstructure:"enqueue_stagger"`
}

// IngestionConfig holds paper ingestion worker settings.
type IngestionConfig struct {
	// Categories is the list of arXiv categories to ingest daily.
	Categories []string `mapstructure:"categories"`
	// RecentFetchSize is the page size for the daily recent fetch.
	RecentFetchSize int `mapstructure:"recent_fetch_size"`
	// OverlapDays is the trailing window re-fetched daily to cover
	// late-arriving papers.
	OverlapDays int `mapstructure:"overlap_days"`
}

// GapsConfig holds gap detection and backfill settings.
type GapsConfig struct {
	// WindowDays is the trailing window scanned for under-filled days.
	WindowDays int `mapstructure:"window_days"`
	// MinPapersPerDay is the per-day threshold below which a non-weekend
	// day is flagged as a gap.
	MinPapersPerDay int `mapstructure:"min_papers_per_day"`
	// MaxBackfillSpanDays is the maximum date span accepted by manual
	// backfill requests.
	MaxBackfillSpanDays int `mapstructure:"max_backfill_span_days"`
	// PerDateEstimate is the average processing time per backfill date,
	// used for completion estimates returned to operators.
	PerDateEstimate time.Duration `mapstructure:"per_date_estimate"`
}

// AnalysisConfig holds analysis pipeline settings shared by v1 and v3.
type AnalysisConfig struct {
	// V1SchemaVersion is the current paper-card schema version.
	V1SchemaVersion string `mapstructure:"v1_schema_version"`
	// V3SchemaVersion is the current v3 analysis schema version.
	V3SchemaVersion string `mapstructure:"v3_schema_version"`
	// EstimatedCostCentsPerPaper is the projected LLM spend per paper,
	// used for budget gating before a batch starts.
	EstimatedCostCentsPerPaper int64 `mapstructure:"estimated_cost_cents_per_paper"`
}

// RuntimeConfig holds process defaults for runtime toggles and budgets.
// These apply when the shared config store is unreachable or unset.
type RuntimeConfig struct {
	// AIEnabledDefault is the process default for the global AI toggle.
	AIEnabledDefault bool `mapstructure:"ai_enabled_default"`
	// V3AutoEnabledDefault is the process default for v3 auto-analysis.
	V3AutoEnabledDefault bool `mapstructure:"v3_auto_enabled_default"`
	// DailyBudgetCents is the default daily LLM spend ceiling.
	DailyBudgetCents int64 `mapstructure:"daily_budget_cents"`
	// MonthlyBudgetCents is the default monthly LLM spend ceiling.
	MonthlyBudgetCents int64 `mapstructure:"monthly_budget_cents"`
	// CacheTTL is the local config cache time-to-live.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// AIKillSwitch reports whether the PAPERPULSE_AI_ENABLED environment variable
// is set, and its value. When set, the supervisor forces the shared runtime
// toggle to match it on startup (env always wins over a stale store value).
func AIKillSwitch() (value, set bool) {
	raw, ok := os.LookupEnv("PAPERPULSE_AI_ENABLED")
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	default:
		return false, true
	}
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAPERPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paperpulse-analysis-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("PAPERPULSE_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("PAPERPULSE_LLM_ANTHROPIC_API_KEY")
	cfg.Mentions.SocialAPIKey = os.Getenv("PAPERPULSE_MENTIONS_SOCIAL_API_KEY")
	cfg.Mentions.NewsAPIKey = os.Getenv("PAPERPULSE_MENTIONS_NEWS_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paperpulse")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paperpulse_analysis")
	// Default to "require" for production security. Use PAPERPULSE_DATABASE_SSL_MODE=disable locally.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "paperpulse")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.calls_per_minute", 20)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.paperpulse.analysis")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// arXiv defaults
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.timeout", "30s")
	v.SetDefault("arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("arxiv.max_results", 100)

	// Mentions defaults
	v.SetDefault("mentions.social_base_url", "https://api.social-searcher.com/v2")
	v.SetDefault("mentions.news_base_url", "https://newsapi.org/v2")
	v.SetDefault("mentions.timeout", "20s")
	v.SetDefault("mentions.enqueue_stagger", "5s")

	// Ingestion defaults
	v.SetDefault("ingestion.categories", []string{"cs.AI", "cs.LG", "cs.CL"})
	v.SetDefault("ingestion.recent_fetch_size", 100)
	v.SetDefault("ingestion.overlap_days", 2)

	// Gaps defaults
	v.SetDefault("gaps.window_days", 30)
	v.SetDefault("gaps.min_papers_per_day", 50)
	v.SetDefault("gaps.max_backfill_span_days", 60)
	v.SetDefault("gaps.per_date_estimate", "90s")

	// Analysis defaults
	v.SetDefault("analysis.v1_schema_version", "dtlp-1.2")
	v.SetDefault("analysis.v3_schema_version", "v3.0")
	v.SetDefault("analysis.estimated_cost_cents_per_paper", 3)

	// Runtime defaults
	v.SetDefault("runtime.ai_enabled_default", true)
	v.SetDefault("runtime.v3_auto_enabled_default", false)
	v.SetDefault("runtime.daily_budget_cents", 500)
	v.SetDefault("runtime.monthly_budget_cents", 10000)
	v.SetDefault("runtime.cache_ttl", "5s")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires PAPERPULSE_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires PAPERPULSE_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	if len(c.Ingestion.Categories) == 0 {
		return fmt.Errorf("at least one ingestion category is required")
	}
	if c.Gaps.WindowDays <= 0 {
		return fmt.Errorf("gaps window_days must be positive")
	}
	if c.Gaps.MinPapersPerDay < 0 {
		return fmt.Errorf("gaps min_papers_per_day must be non-negative")
	}
	if c.Gaps.MaxBackfillSpanDays <= 0 {
		return fmt.Errorf("gaps max_backfill_span_days must be positive")
	}
	if c.Runtime.DailyBudgetCents < 0 || c.Runtime.MonthlyBudgetCents < 0 {
		return fmt.Errorf("budget ceilings must be non-negative")
	}

	return nil
}
