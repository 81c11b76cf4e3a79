package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the temp dir
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "X-User-Id", cfg.Server.UserIDHeader)
	assert.Equal(t, 8*time.Second, cfg.Pipeline.ResearchTimeout())
	assert.Equal(t, 8*time.Second, cfg.Pipeline.GenerationTimeout())
	assert.Equal(t, 18*time.Second, cfg.Pipeline.TotalBudget())
	assert.Equal(t, 5*time.Second, cfg.Pipeline.WriteTimeout())
	assert.Equal(t, 30*time.Second, cfg.Pipeline.GraceWindow())
	assert.Equal(t, ResearchModeWeb, cfg.Research.Mode)
	assert.InDelta(t, 2.0, cfg.Research.RatePerSec, 0.001)
	assert.Equal(t, GenerationModeModel, cfg.Generation.Mode)
	assert.Equal(t, "sonar", cfg.Perplexity.Model)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 120, cfg.Monitoring.StuckAfterSecs)
	assert.Equal(t, 30, cfg.Monitoring.ScrapeCacheSecs)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: badger
  database_url: /tmp/dealscore-badger
log:
  level: debug
  format: console
server:
  port: 9090
research:
  mode: http
  url: http://research.internal/api/research
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ResearchModeHTTP, cfg.Research.Mode)
	// Defaults still apply for unset values
	assert.Equal(t, 18, cfg.Pipeline.TotalBudgetSecs)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DEALSCORE_STORE_DRIVER", "postgres")
	t.Setenv("DEALSCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DEALSCORE_SERVER_PORT", "3000")
	t.Setenv("DEALSCORE_PIPELINE_RESEARCH_TIMEOUT_SECS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 4*time.Second, cfg.Pipeline.ResearchTimeout())
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Research.Mode = ResearchModeWeb
	cfg.Generation.Mode = GenerationModeModel
	cfg.Pipeline.ResearchTimeoutSecs = 8
	cfg.Pipeline.GenerationTimeoutSecs = 8
	cfg.Pipeline.TotalBudgetSecs = 18
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }, "store.database_url is required"},
		{"postgres with url", func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DatabaseURL = "postgres://localhost/dealscore"
		}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "unsupported store driver"},
		{"http research without url", func(c *Config) { c.Research.Mode = ResearchModeHTTP }, "research.url is required"},
		{"research off", func(c *Config) { c.Research.Mode = ResearchModeOff }, ""},
		{"unknown research mode", func(c *Config) { c.Research.Mode = "crawl" }, "unsupported research mode"},
		{"http generation without url", func(c *Config) { c.Generation.Mode = GenerationModeHTTP }, "generation.url is required"},
		{"unknown generation mode", func(c *Config) { c.Generation.Mode = "gpt" }, "unsupported generation mode"},
		{"zero stage timeout", func(c *Config) { c.Pipeline.ResearchTimeoutSecs = 0 }, "stage timeouts must be positive"},
		{"budget too small", func(c *Config) { c.Pipeline.TotalBudgetSecs = 10 }, "must cover both stage timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
