package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the pipeline.
type Paths struct {
	InboxDir            string `toml:"inbox_dir"`
	WorkDir             string `toml:"work_dir"`
	SourcedataDir       string `toml:"sourcedata_dir"`
	DataDir             string `toml:"data_dir"`
	DeidentifiedDataDir string `toml:"deidentified_data_dir"`
	LogDir              string `toml:"log_dir"`
}

// Database contains store location and access tuning.
type Database struct {
	Path string `toml:"path"`
	// QueryAttempts bounds retries of an individual statement before the
	// operation is reported as failed.
	QueryAttempts int `toml:"query_attempts"`
	// LockRetrySeconds is the interval between attempts to acquire the
	// store's advisory lock.
	LockRetrySeconds int `toml:"lock_retry_seconds"`
	// LockMaxWaitSeconds bounds the total lock wait. Zero keeps waiting
	// until an operator intervenes, favoring availability over liveness.
	LockMaxWaitSeconds int `toml:"lock_max_wait_seconds"`
}

// IdentifierFormat describes how a subject or session identifier is
// normalized: a search regex (subjects only), the desired prefix, the
// token the numeric run follows, and the zero-padded digit width.
type IdentifierFormat struct {
	Regex         string `toml:"regex"`
	DesiredPrefix string `toml:"desired_prefix"`
	DesiredStart  string `toml:"desired_start"`
	DesiredDigits int    `toml:"desired_digits"`
}

// Study contains study metadata and identifier normalization formats.
type Study struct {
	Title              string           `toml:"title"`
	Description        string           `toml:"description"`
	DefaultGroup       string           `toml:"default_group"`
	DeidentifyData     bool             `toml:"deidentify_data"`
	SubjectFormat      IdentifierFormat `toml:"subject_format"`
	DeidentifiedFormat IdentifierFormat `toml:"deidentified_format"`
	SessionFormat      IdentifierFormat `toml:"session_format"`
}

// Validation contains tuning for the two validation passes.
type Validation struct {
	// RoutingConfigPath points at the converter routing configuration whose
	// criteria blocks define recognized fingerprints.
	RoutingConfigPath string `toml:"routing_config_path"`
	// ConversionLogName is the converter log file name inside a session's
	// convert/log directory.
	ConversionLogName string `toml:"conversion_log_name"`
	// SummaryWaitHours bounds how long pass B waits for a summary document
	// before proceeding without one.
	SummaryWaitHours int `toml:"summary_wait_hours"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Discovery      bool   `toml:"discovery"`
	Validation     bool   `toml:"validation"`
	Reminders      bool   `toml:"reminders"`
	// ReminderIntervalHours is the minimum gap between repeated reminders
	// for a session still awaiting identifier confirmation.
	ReminderIntervalHours int  `toml:"reminder_interval_hours"`
	Errors                bool `toml:"errors"`
}

// Workflow contains daemon-loop timing and observability endpoints.
type Workflow struct {
	PollInterval int    `toml:"poll_interval"`
	MetricsBind  string `toml:"metrics_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scanflow.
//
// Configuration sections by subsystem:
//   - Paths: inbox, working, and output directories
//   - Database: store path, statement retry, and advisory-lock tuning
//   - Study: identifier formats and deidentification policy
//   - Validation: routing config location and summary wait bound
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon poll interval and metrics bind address
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Study         Study         `toml:"study"`
	Validation    Validation    `toml:"validation"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scanflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scanflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.WorkDir,
		c.Paths.SourcedataDir,
		c.Paths.DataDir,
		c.Paths.LogDir,
		filepath.Dir(c.Database.Path),
	}
	if c.Study.DeidentifyData {
		dirs = append(dirs, c.Paths.DeidentifiedDataDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueryAttemptCount returns the statement retry bound with the default applied.
func (c *Config) QueryAttemptCount() int {
	if c.Database.QueryAttempts <= 0 {
		return defaultQueryAttempts
	}
	return c.Database.QueryAttempts
}

// LockRetryInterval returns the advisory lock retry interval.
func (c *Config) LockRetryInterval() time.Duration {
	seconds := c.Database.LockRetrySeconds
	if seconds <= 0 {
		seconds = defaultLockRetrySeconds
	}
	return time.Duration(seconds) * time.Second
}

// LockMaxWait returns the advisory lock wait bound. Zero means no bound.
func (c *Config) LockMaxWait() time.Duration {
	if c.Database.LockMaxWaitSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Database.LockMaxWaitSeconds) * time.Second
}

// SummaryWaitBound returns how long pass B waits for a summary document.
func (c *Config) SummaryWaitBound() time.Duration {
	hours := c.Validation.SummaryWaitHours
	if hours <= 0 {
		hours = defaultSummaryWaitHours
	}
	return time.Duration(hours) * time.Hour
}

// ReminderInterval returns the minimum gap between repeated identifier
// validation reminders for one session.
func (c *Config) ReminderInterval() time.Duration {
	hours := c.Notifications.ReminderIntervalHours
	if hours <= 0 {
		hours = defaultReminderHours
	}
	return time.Duration(hours) * time.Hour
}

// PollIntervalDuration returns the daemon loop interval.
func (c *Config) PollIntervalDuration() time.Duration {
	seconds := c.Workflow.PollInterval
	if seconds <= 0 {
		seconds = defaultPollInterval
	}
	return time.Duration(seconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	return filepath.Abs(trimmed)
}

// ExpandPath exposes tilde-aware path expansion for callers outside the package.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
