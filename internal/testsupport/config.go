package testsupport

import (
	"path/filepath"
	"testing"

	"scanflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.SourcedataDir = filepath.Join(base, "sourcedata")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.DeidentifiedDataDir = filepath.Join(base, "deidentified")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Database.Path = filepath.Join(base, "db", "scanflow.db")
	cfg.Validation.RoutingConfigPath = filepath.Join(base, "routing_config.json")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithQueryAttempts overrides the statement retry bound on the test config.
func WithQueryAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Database.QueryAttempts = attempts
	}
}

// WithSummaryWaitHours overrides the pass-B wait bound on the test config.
func WithSummaryWaitHours(hours int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Validation.SummaryWaitHours = hours
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.InboxDir)
}
