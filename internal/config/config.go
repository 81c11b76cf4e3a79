package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the job store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	UserIDHeader        string   `yaml:"user_id_header" mapstructure:"user_id_header"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig holds the scheduler's time budgets.
type PipelineConfig struct {
	ResearchTimeoutSecs   int `yaml:"research_timeout_secs" mapstructure:"research_timeout_secs"`
	GenerationTimeoutSecs int `yaml:"generation_timeout_secs" mapstructure:"generation_timeout_secs"`
	TotalBudgetSecs       int `yaml:"total_budget_secs" mapstructure:"total_budget_secs"`
	WriteTimeoutSecs      int `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	GraceWindowSecs       int `yaml:"grace_window_secs" mapstructure:"grace_window_secs"`
}

// ResearchTimeout returns the research stage deadline.
func (p PipelineConfig) ResearchTimeout() time.Duration {
	return time.Duration(p.ResearchTimeoutSecs) * time.Second
}

// GenerationTimeout returns the generation stage deadline.
func (p PipelineConfig) GenerationTimeout() time.Duration {
	return time.Duration(p.GenerationTimeoutSecs) * time.Second
}

// TotalBudget returns the end-to-end driver deadline.
func (p PipelineConfig) TotalBudget() time.Duration {
	return time.Duration(p.TotalBudgetSecs) * time.Second
}

// WriteTimeout returns the deadline for a single job store write.
func (p PipelineConfig) WriteTimeout() time.Duration {
	return time.Duration(p.WriteTimeoutSecs) * time.Second
}

// GraceWindow returns how long an unknown job id is reported as pending.
func (p PipelineConfig) GraceWindow() time.Duration {
	return time.Duration(p.GraceWindowSecs) * time.Second
}

// Research modes.
const (
	ResearchModeWeb  = "web"
	ResearchModeHTTP = "http"
	ResearchModeOff  = "off"
)

// ResearchConfig selects and tunes the research stage.
type ResearchConfig struct {
	Mode                    string  `yaml:"mode" mapstructure:"mode"`
	URL                     string  `yaml:"url" mapstructure:"url"`
	RatePerSec              float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// Generation modes.
const (
	GenerationModeModel    = "model"
	GenerationModeHTTP     = "http"
	GenerationModeFallback = "fallback"
)

// GenerationConfig selects the generation stage.
type GenerationConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"`
	URL  string `yaml:"url" mapstructure:"url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// RetryConfig tunes retries of transient job store write failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// MonitoringConfig configures background alert checks.
type MonitoringConfig struct {
	Enabled                   bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold      float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DegradedResearchThreshold float64 `yaml:"degraded_research_threshold" mapstructure:"degraded_research_threshold"`
	StuckAfterSecs            int     `yaml:"stuck_after_secs" mapstructure:"stuck_after_secs"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours       int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	ScrapeCacheSecs           int     `yaml:"scrape_cache_secs" mapstructure:"scrape_cache_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dealscore.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_secs", 20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.user_id_header", "X-User-Id")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.research_timeout_secs", 8)
	v.SetDefault("pipeline.generation_timeout_secs", 8)
	v.SetDefault("pipeline.total_budget_secs", 18)
	v.SetDefault("pipeline.write_timeout_secs", 5)
	v.SetDefault("pipeline.grace_window_secs", 30)
	v.SetDefault("research.mode", ResearchModeWeb)
	v.SetDefault("research.rate_per_sec", 2.0)
	v.SetDefault("research.circuit_failure_threshold", 5)
	v.SetDefault("research.circuit_reset_secs", 60)
	v.SetDefault("generation.mode", GenerationModeModel)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 100)
	v.SetDefault("retry.max_backoff_ms", 1000)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.degraded_research_threshold", 0.5)
	v.SetDefault("monitoring.stuck_after_secs", 120)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.scrape_cache_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that defaults cannot cover.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for postgres")
		}
	case "sqlite", "badger":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}

	switch c.Research.Mode {
	case ResearchModeHTTP:
		if c.Research.URL == "" {
			return eris.New("config: research.url is required when research.mode=http")
		}
	case ResearchModeWeb, ResearchModeOff:
	default:
		return eris.Errorf("config: unsupported research mode %q", c.Research.Mode)
	}

	switch c.Generation.Mode {
	case GenerationModeHTTP:
		if c.Generation.URL == "" {
			return eris.New("config: generation.url is required when generation.mode=http")
		}
	case GenerationModeModel, GenerationModeFallback:
	default:
		return eris.Errorf("config: unsupported generation mode %q", c.Generation.Mode)
	}

	p := c.Pipeline
	if p.ResearchTimeoutSecs <= 0 || p.GenerationTimeoutSecs <= 0 {
		return eris.New("config: stage timeouts must be positive")
	}
	if p.TotalBudgetSecs < p.ResearchTimeoutSecs+p.GenerationTimeoutSecs {
		return eris.Errorf("config: pipeline.total_budget_secs (%d) must cover both stage timeouts (%d)",
			p.TotalBudgetSecs, p.ResearchTimeoutSecs+p.GenerationTimeoutSecs)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
