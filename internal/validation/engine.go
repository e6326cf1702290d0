// Package validation reconciles converted session data against two
// independent sources of truth: the converter's own run log plus sidecars
// (structural validation) and the scanner console's acquisition summary
// (cross validation). Mismatches are recorded on the affected rows and
// reported; they never abort a run. Unreadable inputs do.
package validation

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"scanflow/internal/config"
	"scanflow/internal/conversion"
	"scanflow/internal/logging"
	"scanflow/internal/store"
)

// Engine drives both validation passes for one run.
type Engine struct {
	store   *store.Store
	cfg     *config.Config
	routing *conversion.RoutingConfig
	logger  *slog.Logger
	now     func() time.Time
}

// Option adjusts an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New builds a validation engine over an open store.
func New(st *store.Store, cfg *config.Config, routing *conversion.RoutingConfig, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		store:   st,
		cfg:     cfg,
		routing: routing,
		logger:  logger.With(logging.String(logging.FieldComponent, "validation")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sessionName is the working-directory name of a session, the data file stem.
func sessionName(dataFile string) string {
	base := filepath.Base(dataFile)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func (e *Engine) sessionDir(session *store.Session) string {
	return filepath.Join(e.cfg.Paths.WorkDir, sessionName(session.DataFile))
}

func (e *Engine) niftiDir(session *store.Session) string {
	return filepath.Join(e.sessionDir(session), "convert", "nifti")
}

func (e *Engine) conversionLogPath(session *store.Session) string {
	return filepath.Join(e.sessionDir(session), "convert", "log", e.cfg.Validation.ConversionLogName)
}

func (e *Engine) summaryPath(session *store.Session) string {
	return filepath.Join(e.sessionDir(session), session.SummaryFile)
}
