package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		MaxAttempts  int           `yaml:"max_attempts"`
		Linger       time.Duration `yaml:"linger"`
		BatchBytes   int           `yaml:"batch_bytes"`
		BatchSize    int           `yaml:"batch_size"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
	} `yaml:"kafka"`
	Provider struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Symbols []string      `yaml:"symbols"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"provider"`
	Sheet struct {
		BaseURL       string        `yaml:"base_url"`
		SpreadsheetID string        `yaml:"spreadsheet_id"`
		Token         string        `yaml:"token"`
		Columns       []string      `yaml:"columns"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"sheet"`
	Analysis struct {
		Workers              int          `yaml:"workers"`
		BarHistory           int          `yaml:"bar_history"`
		StatementHistory     int          `yaml:"statement_history"`
		MinIndicatorFraction float64      `yaml:"min_indicator_fraction"`
		Weights              []WeightRule `yaml:"weights"`
	} `yaml:"analysis"`
	Sync struct {
		Policy      string        `yaml:"policy"` // prefer-local, prefer-remote, manual
		MaxAttempts int           `yaml:"max_attempts"`
		BackoffMin  time.Duration `yaml:"backoff_min"`
		BackoffMax  time.Duration `yaml:"backoff_max"`
	} `yaml:"sync"`
	Schedule struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"schedule"`
}

// WeightRule is one row of the indicator weighting table.
type WeightRule struct {
	Indicator string  `yaml:"indicator"`
	Weight    float64 `yaml:"weight"`
	Center    float64 `yaml:"center"`
	Scale     float64 `yaml:"scale"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("SHEET_TOKEN"); v != "" {
		c.Sheet.Token = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Provider.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Provider.Symbols) == 0 {
		return fmt.Errorf("provider.symbols cannot be empty")
	}
	if c.Sheet.SpreadsheetID == "" {
		return fmt.Errorf("sheet.spreadsheet_id is required")
	}
	if len(c.Analysis.Weights) == 0 {
		return fmt.Errorf("analysis.weights cannot be empty")
	}
	if c.Analysis.MinIndicatorFraction < 0 || c.Analysis.MinIndicatorFraction > 1 {
		return fmt.Errorf("analysis.min_indicator_fraction must be within [0,1]")
	}
	switch c.Sync.Policy {
	case "", "manual", "prefer-local", "prefer-remote":
	default:
		return fmt.Errorf("sync.policy must be 'manual', 'prefer-local' or 'prefer-remote', got '%s'", c.Sync.Policy)
	}
	return nil
}
