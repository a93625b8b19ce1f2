package config

// Package config handles configuration loading for finanalyst.
// It supports YAML config files, a .env file and environment variable overrides.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/seenimoa/finanalyst/internal/errors"
)

const (
	AppName    = "Multi-Agent Financial Analyst"
	AppVersion = "1.0.0"
)

// Provider names accepted by llm.provider.
const (
	ProviderOpenAI = "openai"
	ProviderEino   = "eino"
)

// Config represents the complete application configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"     yaml:"app"     json:"app"`
	LLM     LLMConfig     `mapstructure:"llm"     yaml:"llm"     json:"llm"`
	Data    DataConfig    `mapstructure:"data"    yaml:"data"    json:"data"`
	Cache   CacheConfig   `mapstructure:"cache"   yaml:"cache"   json:"cache"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"     json:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	source string
}

// AppConfig holds deployment-level settings.
type AppConfig struct {
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"` // "development", "production"
	Debug       bool   `mapstructure:"debug"       yaml:"debug"       json:"debug"`
}

// LLMConfig holds generation backend settings.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider"            yaml:"provider"            json:"provider"` // "openai" or "eino"
	APIKey            string  `mapstructure:"api_key"             yaml:"api_key"             json:"-"`
	BaseURL           string  `mapstructure:"base_url"            yaml:"base_url"            json:"base_url"`
	Model             string  `mapstructure:"model"               yaml:"model"               json:"model"`
	Temperature       float64 `mapstructure:"temperature"         yaml:"temperature"         json:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"          yaml:"max_tokens"          json:"max_tokens"`
	MaxToolIterations int     `mapstructure:"max_tool_iterations" yaml:"max_tool_iterations" json:"max_tool_iterations"`
	TimeoutSec        int     `mapstructure:"timeout_sec"         yaml:"timeout_sec"         json:"timeout_sec"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DataConfig holds market data source settings.
type DataConfig struct {
	QuoteURL          string  `mapstructure:"quote_url"           yaml:"quote_url"           json:"quote_url"`
	SummaryURL        string  `mapstructure:"summary_url"         yaml:"summary_url"         json:"summary_url"`
	ChartURL          string  `mapstructure:"chart_url"           yaml:"chart_url"           json:"chart_url"`
	ProfileURL        string  `mapstructure:"profile_url"         yaml:"profile_url"         json:"profile_url"`
	NewsURL           string  `mapstructure:"news_url"            yaml:"news_url"            json:"news_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	TimeoutSec        int     `mapstructure:"timeout_sec"         yaml:"timeout_sec"         json:"timeout_sec"`
	NewsLimit         int     `mapstructure:"news_limit"          yaml:"news_limit"          json:"news_limit"`
}

// CacheConfig controls the short-lived metrics cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	TTL     int  `mapstructure:"ttl"     yaml:"ttl"     json:"ttl"` // seconds
}

// APIConfig holds dashboard HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"         json:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"         json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"       yaml:"level"       json:"level"` // "debug", "info", "warn", "error"
	File       bool   `mapstructure:"file"        yaml:"file"        json:"file"`
	FilePath   string `mapstructure:"file_path"   yaml:"file_path"   json:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.finanalyst/config.yaml (home directory)
//  3. /etc/finanalyst/config.yaml (system)
//
// A .env file in the working directory is applied first; variables already
// present in the environment win. Environment variables override config
// file values. Format: FINANALYST_<SECTION>_<KEY>, e.g. FINANALYST_LLM_MODEL.
// The plain names SAMBANOVA_API_KEY, ENVIRONMENT, DEBUG, LOG_LEVEL and
// CACHE_ENABLED are honoured as well.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".finanalyst"))
	v.AddConfigPath("/etc/finanalyst")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

// SaveToFile writes cfg as YAML. The API key is never written.
func SaveToFile(cfg *Config, path string) error {
	out := *cfg
	out.LLM.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the settings every pipeline command depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("%w: set SAMBANOVA_API_KEY in the environment or .env file", apperrors.ErrMissingAPIKey)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderEino:
	default:
		return apperrors.NewValidationError("llm.provider", c.LLM.Provider, "must be openai or eino")
	}
	if c.Cache.TTL < 0 {
		return apperrors.NewValidationError("cache.ttl", c.Cache.TTL, "must not be negative")
	}
	return nil
}

// Source returns the config file that was read, or "" when only defaults
// and the environment were used.
func (c *Config) Source() string { return c.source }

// FilePath returns the file SaveToFile should target: the file that was
// read, or ~/.finanalyst/config.yaml.
func (c *Config) FilePath() string {
	if c.source != "" {
		return c.source
	}
	return filepath.Join(homeDir(), ".finanalyst", "config.yaml")
}

// CacheTTL returns the metrics cache lifetime, zero when caching is off.
func (c *Config) CacheTTL() time.Duration {
	if !c.Cache.Enabled {
		return 0
	}
	return time.Duration(c.Cache.TTL) * time.Second
}

// LLMTimeout returns the deadline applied to one pipeline run.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// IsProduction reports whether the environment is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FINANALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain variable names, checked after the prefixed form.
	_ = v.BindEnv("llm.api_key", "FINANALYST_LLM_API_KEY", "SAMBANOVA_API_KEY")
	_ = v.BindEnv("app.environment", "FINANALYST_APP_ENVIRONMENT", "ENVIRONMENT")
	_ = v.BindEnv("app.debug", "FINANALYST_APP_DEBUG", "DEBUG")
	_ = v.BindEnv("logging.level", "FINANALYST_LOGGING_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("cache.enabled", "FINANALYST_CACHE_ENABLED", "CACHE_ENABLED")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.base_url", "https://api.sambanova.ai/v1")
	v.SetDefault("llm.model", "Llama-4-Maverick-17B-128E-Instruct")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.max_tool_iterations", 5)
	v.SetDefault("llm.timeout_sec", 300)
	v.SetDefault("llm.requests_per_minute", 60)

	v.SetDefault("data.quote_url", "https://query1.finance.yahoo.com/v7/finance/quote")
	v.SetDefault("data.summary_url", "https://query2.finance.yahoo.com/v10/finance/quoteSummary")
	v.SetDefault("data.chart_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("data.profile_url", "https://finance.yahoo.com/quote")
	v.SetDefault("data.news_url", "https://feeds.finance.yahoo.com/rss/2.0/headline")
	v.SetDefault("data.requests_per_second", 2.0)
	v.SetDefault("data.timeout_sec", 30)
	v.SetDefault("data.news_limit", 5)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 300) // 5 minutes

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8501)
	v.SetDefault("api.cors_origins", []string{"http://localhost:8501"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", filepath.Join(homeDir(), ".finanalyst", "logs", "finanalyst.log"))
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
}

// loadDotEnv applies KEY=VALUE pairs from path without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
