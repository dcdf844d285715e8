// Package config loads layered settings: built-in defaults, an optional YAML
// file, an optional .env file and ALERTLEDGER_ environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// EnvPrefix prefixes every environment override. A double underscore separates
// key levels: ALERTLEDGER_MODEL__ARTIFACT_PATH sets model.artifact_path.
const EnvPrefix = "ALERTLEDGER_"

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type HTTPConfig struct {
	Port int `koanf:"port"`
}

type StoreConfig struct {
	Backend    string `koanf:"backend"`
	SQLitePath string `koanf:"sqlite_path"`
}

type ModelConfig struct {
	Enabled          bool          `koanf:"enabled"`
	ArtifactPath     string        `koanf:"artifact_path"`
	ResetEvery       int           `koanf:"reset_every"`
	MaxSessionTokens int           `koanf:"max_session_tokens"`
	InferenceTimeout time.Duration `koanf:"inference_timeout"`
}

type SubscriptionConfig struct {
	Tolerance  string `koanf:"tolerance"`
	PeriodDays int    `koanf:"period_days"`
}

type QueueConfig struct {
	Buffer  int `koanf:"buffer"`
	Workers int `koanf:"workers"`
}

type BigQueryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Project string `koanf:"project"`
	Dataset string `koanf:"dataset"`
	Table   string `koanf:"table"`
}

// Config is the full service configuration.
type Config struct {
	Log          LogConfig          `koanf:"log"`
	HTTP         HTTPConfig         `koanf:"http"`
	Store        StoreConfig        `koanf:"store"`
	Model        ModelConfig        `koanf:"model"`
	Subscription SubscriptionConfig `koanf:"subscription"`
	Queue        QueueConfig        `koanf:"queue"`
	BigQuery     BigQueryConfig     `koanf:"bigquery"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.level":                "info",
		"log.format":               "console",
		"http.port":                8080,
		"store.backend":            BackendMemory,
		"store.sqlite_path":        "data/alertledger.db",
		"model.enabled":            false,
		"model.artifact_path":      "",
		"model.reset_every":        8,
		"model.max_session_tokens": 0,
		"model.inference_timeout":  "30s",
		"subscription.tolerance":   "0.05",
		"subscription.period_days": 30,
		"queue.buffer":             100,
		"queue.workers":            5,
		"bigquery.enabled":         false,
		"bigquery.project":         "",
		"bigquery.dataset":         "alertledger",
		"bigquery.table":           "transactions",
	}
}

// Sources names the files Load reads. A missing .env is skipped; a named
// config file must exist.
type Sources struct {
	File   string
	DotEnv string
}

// Load reads configuration from path (may be empty) and a .env file in the
// working directory.
func Load(path string) (*Config, error) {
	return LoadFrom(Sources{File: path, DotEnv: ".env"})
}

// LoadFrom reads configuration from the given sources.
func LoadFrom(src Sources) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("LoadFrom: defaults: %w", err)
	}

	if src.File != "" {
		if err := k.Load(file.Provider(src.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("LoadFrom: config file %s: %w", src.File, err)
		}
	}

	if src.DotEnv != "" {
		if err := godotenv.Load(src.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("LoadFrom: dotenv %s: %w", src.DotEnv, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("LoadFrom: environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("LoadFrom: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("Validate: store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("Validate: unknown store.backend %q", c.Store.Backend)
	}

	if c.Model.Enabled && c.Model.ArtifactPath == "" {
		return fmt.Errorf("Validate: model.artifact_path is required when the model is enabled")
	}
	if c.Model.ResetEvery < 1 {
		return fmt.Errorf("Validate: model.reset_every must be positive, got %d", c.Model.ResetEvery)
	}
	if c.Model.MaxSessionTokens < 0 {
		return fmt.Errorf("Validate: model.max_session_tokens must not be negative")
	}

	tol, err := c.Tolerance()
	if err != nil {
		return err
	}
	if tol.IsNegative() {
		return fmt.Errorf("Validate: subscription.tolerance must not be negative")
	}
	if c.Subscription.PeriodDays < 1 {
		return fmt.Errorf("Validate: subscription.period_days must be positive, got %d", c.Subscription.PeriodDays)
	}

	if c.Queue.Buffer < 1 || c.Queue.Workers < 1 {
		return fmt.Errorf("Validate: queue.buffer and queue.workers must be positive")
	}

	if c.BigQuery.Enabled && (c.BigQuery.Project == "" || c.BigQuery.Dataset == "" || c.BigQuery.Table == "") {
		return fmt.Errorf("Validate: bigquery.project, bigquery.dataset and bigquery.table are required when export is enabled")
	}
	return nil
}

// Tolerance parses subscription.tolerance.
func (c *Config) Tolerance() (decimal.Decimal, error) {
	tol, err := decimal.NewFromString(c.Subscription.Tolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Tolerance: invalid subscription.tolerance %q: %w", c.Subscription.Tolerance, err)
	}
	return tol, nil
}

// QueueWorkers is the worker count to run with. A single model session is not
// safe to share, so an active model strategy forces one worker.
func (c *Config) QueueWorkers(modelActive bool) int {
	if modelActive {
		return 1
	}
	return c.Queue.Workers
}
