package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"bizdir/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Budget     BudgetConfig     `yaml:"budget"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // duration string, e.g. "24h"
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// EnrichmentConfig governs the queue processor and the places source.
type EnrichmentConfig struct {
	CostPerCallUSD   string        `yaml:"cost_per_call_usd"`
	MaxAttempts      int           `yaml:"max_attempts"`
	DefaultBatchSize int           `yaml:"default_batch_size"`
	ScheduleSecret   string        `yaml:"schedule_secret"`
	SchedulerEnabled bool          `yaml:"scheduler_enabled"`
	Interval         time.Duration `yaml:"interval"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	Places           PlacesConfig  `yaml:"places"`
}

type PlacesConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}

type BudgetConfig struct {
	MonthlyCapUSD        string  `yaml:"monthly_cap_usd"`
	WarnThresholdPercent float64 `yaml:"warn_threshold_percent"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; the environment may already be populated by the runtime.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	cost, err := c.CostPerCall()
	if err != nil {
		return err
	}
	if cost <= 0 {
		return errors.New("enrichment.cost_per_call_usd must be positive")
	}

	if _, err := c.MonthlyCap(); err != nil {
		return err
	}

	if c.API.Enabled && c.Enrichment.ScheduleSecret == "" {
		return errors.New("enrichment.schedule_secret is required when the API is enabled")
	}

	return nil
}

// CostPerCall returns the fixed billable cost of one places call in cents.
func (c *Config) CostPerCall() (models.Cents, error) {
	return models.ParseUSD(c.Enrichment.CostPerCallUSD)
}

// MonthlyCap returns the per-period spend ceiling in cents.
func (c *Config) MonthlyCap() (models.Cents, error) {
	return models.ParseUSD(c.Budget.MonthlyCapUSD)
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Enrichment.CostPerCallUSD == "" {
		c.Enrichment.CostPerCallUSD = "0.20"
	}
	if c.Budget.MonthlyCapUSD == "" {
		c.Budget.MonthlyCapUSD = "0"
	}
	if c.Budget.WarnThresholdPercent == 0 {
		c.Budget.WarnThresholdPercent = models.DefaultBudgetWarnPercent
	}
	if c.Enrichment.MaxAttempts == 0 {
		c.Enrichment.MaxAttempts = models.DefaultMaxAttempts
	}
	if c.Enrichment.DefaultBatchSize == 0 {
		c.Enrichment.DefaultBatchSize = models.DefaultBatchSize
	}
	if c.Enrichment.Interval == 0 {
		c.Enrichment.Interval = models.DefaultSchedulerIntervalMinutes * time.Minute
	}
	if c.Enrichment.StaleAfter == 0 {
		c.Enrichment.StaleAfter = models.DefaultStaleAfterMinutes * time.Minute
	}
	if c.Enrichment.Places.Timeout == 0 {
		c.Enrichment.Places.Timeout = 10 * time.Second
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
