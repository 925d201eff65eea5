package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
environment: test
server:
  port: 9090
  read_timeout: 5s
  write_timeout: 5s
  shutdown_timeout: 5s
clickhouse:
  host: localhost
  port: 9000
  database: finsheet
provider:
  base_url: https://provider.test
  api_key: key-from-file
  symbols: [AAPL, MSFT]
  timeout: 10s
sheet:
  base_url: https://sheets.test
  spreadsheet_id: sheet-1
  columns: [rsi_14]
analysis:
  workers: 2
  min_indicator_fraction: 0.5
  weights:
    - indicator: rsi_14
      weight: -0.3
      center: 50
      scale: 25
sync:
  policy: manual
  max_attempts: 3
  backoff_min: 100ms
  backoff_max: 2s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Provider.Symbols) != 2 {
		t.Fatalf("symbols = %v", cfg.Provider.Symbols)
	}
	if cfg.Sync.BackoffMin != 100*time.Millisecond {
		t.Fatalf("backoff_min = %v", cfg.Sync.BackoffMin)
	}
	if len(cfg.Analysis.Weights) != 1 || cfg.Analysis.Weights[0].Scale != 25 {
		t.Fatalf("weights = %+v", cfg.Analysis.Weights)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		edit func(c *Config)
	}{
		{"missing environment", func(c *Config) { c.Environment = "" }},
		{"no symbols", func(c *Config) { c.Provider.Symbols = nil }},
		{"no spreadsheet id", func(c *Config) { c.Sheet.SpreadsheetID = "" }},
		{"no weights", func(c *Config) { c.Analysis.Weights = nil }},
		{"bad fraction", func(c *Config) { c.Analysis.MinIndicatorFraction = 2 }},
		{"bad policy", func(c *Config) { c.Sync.Policy = "coin-flip" }},
	}
	for _, tc := range cases {
		cfg, err := Load(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("%s: load: %v", tc.name, err)
		}
		tc.edit(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("PROVIDER_API_KEY", "key-from-env")
	t.Setenv("SYMBOLS", "TSLA,NVDA,AMD")

	cfg, err := LoadWithEnv(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.APIKey != "key-from-env" {
		t.Fatalf("api key override not applied")
	}
	if len(cfg.Provider.Symbols) != 3 || cfg.Provider.Symbols[0] != "TSLA" {
		t.Fatalf("symbols override not applied: %v", cfg.Provider.Symbols)
	}
}
