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
	OpenAI     ProviderConfig   `yaml:"openai" mapstructure:"openai"`
	Perplexity ProviderConfig   `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     ProviderConfig   `yaml:"gemini" mapstructure:"gemini"`
	Anthropic  ProviderConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Provider   ProviderDefaults `yaml:"provider" mapstructure:"provider"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Merger     MergerConfig     `yaml:"merger" mapstructure:"merger"`
	Overlay    OverlayConfig    `yaml:"overlay" mapstructure:"overlay"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderConfig holds one LLM provider's credentials and model chain.
// Models lists the fallback chain in priority order; the first entry is the
// primary model.
type ProviderConfig struct {
	Key     string   `yaml:"key" mapstructure:"key"`
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Models  []string `yaml:"models" mapstructure:"models"`
}

// Enabled reports whether the provider has a credential configured.
func (p ProviderConfig) Enabled() bool {
	return p.Key != ""
}

// ProviderDefaults holds tuning shared by all provider adapters.
type ProviderDefaults struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffSecs    int     `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxOutputToken int     `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
}

// Timeout returns the per-call budget as a duration.
func (p ProviderDefaults) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// ClassifierConfig configures candidate classification.
type ClassifierConfig struct {
	MinConfidence float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
	GenericTerms  []string `yaml:"generic_terms" mapstructure:"generic_terms"`
	KnownBrands   []string `yaml:"known_brands" mapstructure:"known_brands"`
}

// MergerConfig configures the catalog merge policy. The frequency gate and
// retention window are deliberate policy knobs, not fixed law.
type MergerConfig struct {
	LookbackDays    int     `yaml:"lookback_days" mapstructure:"lookback_days"`
	MinMentions     int     `yaml:"min_mentions" mapstructure:"min_mentions"`
	ScoreGate       float64 `yaml:"score_gate" mapstructure:"score_gate"`
	RetentionDays   int     `yaml:"retention_days" mapstructure:"retention_days"`
	DedupeThreshold float64 `yaml:"dedupe_threshold" mapstructure:"dedupe_threshold"`
	AfterEachRun    bool    `yaml:"after_each_run" mapstructure:"after_each_run"`
}

// OverlayConfig configures the in-process overlay cache.
type OverlayConfig struct {
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// CacheTTL returns the overlay cache TTL as a duration.
func (o OverlayConfig) CacheTTL() time.Duration {
	return time.Duration(o.CacheTTLSecs) * time.Second
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PricingConfig maps model names to token pricing. Unpriced models cost zero.
type PricingConfig map[string]ModelPricing

// Estimate returns the USD cost of one call.
func (p PricingConfig) Estimate(model string, tokensIn, tokensOut int) float64 {
	mp, ok := p[model]
	if !ok {
		return 0
	}
	return float64(tokensIn)*mp.Input/1e6 + float64(tokensOut)*mp.Output/1e6
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BRANDLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("openai.models", []string{"gpt-4.1", "gpt-4.1-mini", "gpt-4o-mini"})
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.models", []string{"sonar-pro", "sonar"})
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.models", []string{"gemini-2.5-pro", "gemini-2.5-flash"})
	v.SetDefault("anthropic.models", []string{"claude-sonnet-4-5-20250929", "claude-haiku-4-5-20251001"})
	v.SetDefault("provider.timeout_secs", 20)
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.backoff_secs", 1)
	v.SetDefault("provider.rate_per_second", 2.0)
	v.SetDefault("provider.rate_burst", 4)
	v.SetDefault("provider.max_output_tokens", 2000)
	v.SetDefault("classifier.min_confidence", 0.6)
	v.SetDefault("merger.lookback_days", 7)
	v.SetDefault("merger.min_mentions", 3)
	v.SetDefault("merger.score_gate", 7.0)
	v.SetDefault("merger.retention_days", 14)
	v.SetDefault("merger.dedupe_threshold", 0.7)
	v.SetDefault("merger.after_each_run", true)
	v.SetDefault("overlay.cache_ttl_secs", 300)

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
