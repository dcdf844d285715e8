package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the duration of the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(Sources{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 8, cfg.Model.ResetEvery)
	assert.Equal(t, 30*time.Second, cfg.Model.InferenceTimeout)
	assert.Equal(t, 30, cfg.Subscription.PeriodDays)
	assert.Equal(t, 100, cfg.Queue.Buffer)
	assert.Equal(t, 5, cfg.Queue.Workers)
	assert.False(t, cfg.BigQuery.Enabled)

	tol, err := cfg.Tolerance()
	require.NoError(t, err)
	assert.Equal(t, "0.05", tol.String())
}

func TestLoadFrom_LayerPrecedence(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log:
  level: debug
store:
  backend: sqlite
  sqlite_path: /tmp/ledger.db
model:
  reset_every: 4
  inference_timeout: 5s
queue:
  workers: 3
`)
	t.Setenv("ALERTLEDGER_QUEUE__WORKERS", "7")
	t.Setenv("ALERTLEDGER_SUBSCRIPTION__TOLERANCE", "0.1")

	cfg, err := LoadFrom(Sources{File: path})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/ledger.db", cfg.Store.SQLitePath)
	assert.Equal(t, 4, cfg.Model.ResetEvery)
	assert.Equal(t, 5*time.Second, cfg.Model.InferenceTimeout)
	assert.Equal(t, 7, cfg.Queue.Workers)
	assert.Equal(t, "0.1", cfg.Subscription.Tolerance)
}

func TestLoadFrom_DotEnv(t *testing.T) {
	unsetEnv(t, "ALERTLEDGER_HTTP__PORT")
	unsetEnv(t, "ALERTLEDGER_MODEL__ENABLED")
	unsetEnv(t, "ALERTLEDGER_MODEL__ARTIFACT_PATH")
	dotenv := writeFile(t, ".env", "ALERTLEDGER_HTTP__PORT=9090\nALERTLEDGER_MODEL__ENABLED=true\nALERTLEDGER_MODEL__ARTIFACT_PATH=gs://models/ledger.yaml\n")

	cfg, err := LoadFrom(Sources{DotEnv: dotenv})
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.True(t, cfg.Model.Enabled)
	assert.Equal(t, "gs://models/ledger.yaml", cfg.Model.ArtifactPath)
}

func TestLoadFrom_MissingDotEnvIsIgnored(t *testing.T) {
	_, err := LoadFrom(Sources{DotEnv: filepath.Join(t.TempDir(), ".env")})
	assert.NoError(t, err)
}

func TestLoadFrom_MissingFileFails(t *testing.T) {
	_, err := LoadFrom(Sources{File: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadFrom(Sources{})
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"sqlite without path", func(c *Config) { c.Store.Backend = BackendSQLite; c.Store.SQLitePath = "" }},
		{"model without artifact", func(c *Config) { c.Model.Enabled = true }},
		{"zero reset cadence", func(c *Config) { c.Model.ResetEvery = 0 }},
		{"negative token budget", func(c *Config) { c.Model.MaxSessionTokens = -1 }},
		{"bad tolerance", func(c *Config) { c.Subscription.Tolerance = "five" }},
		{"negative tolerance", func(c *Config) { c.Subscription.Tolerance = "-0.05" }},
		{"zero period", func(c *Config) { c.Subscription.PeriodDays = 0 }},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"bigquery without project", func(c *Config) { c.BigQuery.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestQueueWorkers(t *testing.T) {
	cfg := &Config{Queue: QueueConfig{Workers: 5}}
	assert.Equal(t, 5, cfg.QueueWorkers(false))
	assert.Equal(t, 1, cfg.QueueWorkers(true))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "model.artifact_path", envKey("ALERTLEDGER_MODEL__ARTIFACT_PATH"))
	assert.Equal(t, "log.level", envKey("ALERTLEDGER_LOG__LEVEL"))
}
