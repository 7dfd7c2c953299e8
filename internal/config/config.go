// Package config loads application configuration from environment
// variables and an optional YAML file. Environment takes precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	EStat    EStatConfig    `yaml:"estat" envconfig:"ESTAT"`
	Analysis AnalysisConfig `yaml:"analysis" envconfig:"ANALYSIS"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains CORS and rate limiting configuration.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"20"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"10"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// EStatConfig contains credentials and endpoint for the statistics API.
type EStatConfig struct {
	AppID   string        `yaml:"app_id" envconfig:"APP_ID"`
	BaseURL string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://api.e-stat.go.jp/rest/3.0/app/json"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
}

// AnalysisConfig bounds the forecasting workload.
type AnalysisConfig struct {
	// MinObservations is the smallest normalized history the engine will
	// accept for a forecast request.
	MinObservations int `yaml:"min_observations" envconfig:"MIN_OBSERVATIONS" default:"24"`
	// DefaultHorizon is the forecast horizon used when the request does
	// not specify n_periods.
	DefaultHorizon int `yaml:"default_horizon" envconfig:"DEFAULT_HORIZON" default:"12"`
	// MaxHorizon caps the requested horizon.
	MaxHorizon int `yaml:"max_horizon" envconfig:"MAX_HORIZON" default:"60"`
	// MaxConcurrentSearches bounds simultaneous stepwise model searches,
	// which are CPU-bound and potentially slow.
	MaxConcurrentSearches int `yaml:"max_concurrent_searches" envconfig:"MAX_CONCURRENT_SEARCHES" default:"4"`
	// SeasonalPeriod is the seasonal period handed to the model search.
	SeasonalPeriod int `yaml:"seasonal_period" envconfig:"SEASONAL_PERIOD" default:"12"`
}

// Load loads configuration from environment variables and config file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("MACROLINK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.EStat.AppID == "" {
		envConfig.EStat.AppID = fileConfig.EStat.AppID
	}
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	return envConfig
}

// validate validates the configuration.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.EStat.BaseURL == "" {
		return fmt.Errorf("estat base URL must not be empty")
	}
	if c.Analysis.MinObservations < 1 {
		return fmt.Errorf("analysis min observations must be positive")
	}
	if c.Analysis.DefaultHorizon < 1 {
		return fmt.Errorf("analysis default horizon must be positive")
	}
	if c.Analysis.MaxConcurrentSearches < 1 {
		return fmt.Errorf("analysis max concurrent searches must be positive")
	}
	if c.Analysis.SeasonalPeriod < 2 {
		return fmt.Errorf("analysis seasonal period must be at least 2")
	}
	return nil
}

// getConfigFilePath returns the path to the config file, if any.
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration, used in tests and as the
// fallback when neither environment nor file provide values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   10,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		EStat: EStatConfig{
			BaseURL: "https://api.e-stat.go.jp/rest/3.0/app/json",
			Timeout: 30 * time.Second,
		},
		Analysis: AnalysisConfig{
			MinObservations:       24,
			DefaultHorizon:        12,
			MaxHorizon:            60,
			MaxConcurrentSearches: 4,
			SeasonalPeriod:        12,
		},
	}
}
