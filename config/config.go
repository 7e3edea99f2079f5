package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the riddle service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Buffer    BufferConfig    `mapstructure:"buffer"`
	Targets   TargetsConfig   `mapstructure:"targets"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`
}

// LLMConfig contains text generation provider configurations
type LLMConfig struct {
	Providers  map[string]LLMProvider `mapstructure:"providers"`
	Generators []string               `mapstructure:"generators"` // ordered: primary first
	Critic     string                 `mapstructure:"critic"`     // empty disables critique
	Critics    []string               `mapstructure:"critics"`    // ordered fallback chain, overrides critic
	Proposer   string                 `mapstructure:"proposer"`   // empty uses static pools only
}

// LLMProvider represents a single provider configuration
type LLMProvider struct {
	Type        string        `mapstructure:"type"` // openai, groq, gemini, cohere
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CriticChain returns the critics in the order they are tried.
func (l LLMConfig) CriticChain() []string {
	if len(l.Critics) > 0 {
		return l.Critics
	}
	if l.Critic != "" {
		return []string{l.Critic}
	}
	return nil
}

// Validate checks that every referenced provider exists.
func (l LLMConfig) Validate() error {
	for name, p := range l.Providers {
		switch strings.ToLower(strings.TrimSpace(p.Type)) {
		case "openai", "groq", "gemini", "cohere":
		default:
			return fmt.Errorf("llm.providers.%s.type %q unsupported", name, p.Type)
		}
	}
	for _, name := range l.Generators {
		if _, ok := l.Providers[name]; !ok {
			return fmt.Errorf("llm.generators references unknown provider %q", name)
		}
	}
	for _, name := range l.CriticChain() {
		if _, ok := l.Providers[name]; !ok {
			return fmt.Errorf("llm.critics references unknown provider %q", name)
		}
	}
	if l.Proposer != "" {
		if _, ok := l.Providers[l.Proposer]; !ok {
			return fmt.Errorf("llm.proposer references unknown provider %q", l.Proposer)
		}
	}
	return nil
}

// PipelineConfig bounds the generation pipeline.
type PipelineConfig struct {
	Timeout               time.Duration `mapstructure:"timeout"`
	ProviderTimeout       time.Duration `mapstructure:"provider_timeout"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	RetryBaseDelay        time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay         time.Duration `mapstructure:"retry_max_delay"`
	MinLength             int           `mapstructure:"min_length"`
	MaxLength             int           `mapstructure:"max_length"`
	CritiqueMaxIterations int           `mapstructure:"critique_max_iterations"`
	CacheTimeout          time.Duration `mapstructure:"cache_timeout"`
	ProposerTimeout       time.Duration `mapstructure:"proposer_timeout"`
}

// Normalize applies defaults for unset pipeline values.
func (p PipelineConfig) Normalize() PipelineConfig {
	if p.Timeout <= 0 {
		p.Timeout = 15 * time.Second
	}
	if p.ProviderTimeout <= 0 {
		p.ProviderTimeout = 8 * time.Second
	}
	if p.RetryAttempts <= 0 {
		p.RetryAttempts = 3
	}
	if p.RetryBaseDelay <= 0 {
		p.RetryBaseDelay = 2 * time.Second
	}
	if p.RetryMaxDelay <= 0 {
		p.RetryMaxDelay = 10 * time.Second
	}
	if p.MinLength <= 0 {
		p.MinLength = 50
	}
	if p.MaxLength <= 0 {
		p.MaxLength = 500
	}
	if p.CritiqueMaxIterations <= 0 {
		p.CritiqueMaxIterations = 1
	}
	if p.CacheTimeout <= 0 {
		p.CacheTimeout = 2 * time.Second
	}
	if p.ProposerTimeout <= 0 {
		p.ProposerTimeout = 4 * time.Second
	}
	return p
}

// Validate checks pipeline bounds.
func (p PipelineConfig) Validate() error {
	if p.ProviderTimeout > p.Timeout {
		return fmt.Errorf("pipeline.provider_timeout (%s) must not exceed pipeline.timeout (%s)", p.ProviderTimeout, p.Timeout)
	}
	if p.MinLength >= p.MaxLength {
		return fmt.Errorf("pipeline.min_length must be below pipeline.max_length")
	}
	if p.RetryBaseDelay > p.RetryMaxDelay {
		return fmt.Errorf("pipeline.retry_base_delay must not exceed pipeline.retry_max_delay")
	}
	return nil
}

// BufferConfig controls the per-session prefetch buffer.
type BufferConfig struct {
	Size       int           `mapstructure:"size"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
}

// Normalize applies defaults for unset buffer values.
func (b BufferConfig) Normalize() BufferConfig {
	if b.Size <= 0 {
		b.Size = 3
	}
	if b.SessionTTL <= 0 {
		b.SessionTTL = time.Hour
	}
	if b.Workers <= 0 {
		b.Workers = 4
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 256
	}
	return b
}

// TargetsConfig points at the versioned target pool document.
type TargetsConfig struct {
	PoolFile string `mapstructure:"pool_file"` // empty uses the embedded pools
}

// CacheConfig controls retention of the persistent riddle cache.
type CacheConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	PruneCron     string `mapstructure:"prune_cron"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	KeyStore string         `mapstructure:"keystore"` // redis or inmemory
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether enough is configured to attempt a connection.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() {
		return nil
	}
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("general.listen", ":10001")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("storage.keystore", "redis")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("pipeline.timeout", "15s")
	v.SetDefault("pipeline.provider_timeout", "8s")
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_base_delay", "2s")
	v.SetDefault("pipeline.retry_max_delay", "10s")
	v.SetDefault("pipeline.min_length", 50)
	v.SetDefault("pipeline.max_length", 500)
	v.SetDefault("pipeline.critique_max_iterations", 1)
	v.SetDefault("pipeline.cache_timeout", "2s")
	v.SetDefault("pipeline.proposer_timeout", "4s")
	v.SetDefault("buffer.size", 3)
	v.SetDefault("buffer.session_ttl", "1h")
	v.SetDefault("buffer.workers", 4)
	v.SetDefault("buffer.queue_size", 256)
	v.SetDefault("cache.retention_days", 30)
	v.SetDefault("cache.prune_cron", "@daily")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ATLAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // ATLAST_STORAGE_REDIS_HOST etc.

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Pipeline = config.Pipeline.Normalize()
	config.Buffer = config.Buffer.Normalize()

	if err := config.Validate(); err != nil {
		panic(err)
	}
	return &config
}

// Validate runs every section validator.
func (c *Config) Validate() error {
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	switch c.Storage.KeyStore {
	case "redis":
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	case "inmemory":
	default:
		return fmt.Errorf("storage.keystore %q unsupported (redis, inmemory)", c.Storage.KeyStore)
	}
	if err := c.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	return c.Pipeline.Validate()
}
