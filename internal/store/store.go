package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"scanflow/internal/config"
	"scanflow/internal/logging"
	"scanflow/internal/metrics"
	"scanflow/internal/services"
)

// Store manages pipeline state persistence backed by SQLite. One advisory
// file lock per store location serializes access across processes; the lock
// is acquired on Open and held until Close.
//
// Writes accumulate in a lazily-begun transaction. Callers decide batch
// boundaries through Commit, so a job can choose atomic-per-item or
// atomic-per-run semantics. Close rolls back anything uncommitted.
type Store struct {
	db   *sql.DB
	tx   *sql.Tx
	lock *flock.Flock
	path string

	attempts int
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// execHook, when set, runs before each mutating statement; an error it
	// returns consumes a retry attempt. Tests use it to simulate transient
	// driver failures.
	execHook func(op string) error
}

// Open acquires the store's advisory lock, connects to the database, and
// creates or upgrades the schema. Lock acquisition retries on the configured
// interval; waits are logged and observed as metrics. A zero max-wait keeps
// retrying until an operator intervenes.
func Open(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", "nil config", nil)
	}
	logger = logging.NewComponentLogger(logger, "store")

	dbPath := cfg.Database.Path
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", "create database directory", err)
		}
	}

	lock := flock.New(dbPath + ".lock")
	if err := acquireLock(lock, cfg.LockRetryInterval(), cfg.LockMaxWait(), logger, m); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", "open sqlite db", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{
		db:       db,
		lock:     lock,
		path:     dbPath,
		attempts: cfg.QueryAttemptCount(),
		logger:   logger,
		metrics:  m,
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", "initialize schema", err)
	}

	return store, nil
}

func acquireLock(lock *flock.Flock, interval, maxWait time.Duration, logger *slog.Logger, m *metrics.Metrics) error {
	start := time.Now()
	var deadline time.Time
	if maxWait > 0 {
		deadline = start.Add(maxWait)
	}

	for {
		acquired, err := lock.TryLock()
		if err != nil {
			return services.Wrap(services.ErrStoreUnavailable, "store", "lock", "acquire advisory lock", err)
		}
		if acquired {
			m.ObserveLockWait(time.Since(start))
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return services.Wrap(services.ErrStoreUnavailable, "store", "lock",
				fmt.Sprintf("another process held the lock for longer than %s", maxWait), nil)
		}
		logger.Warn("another process is accessing the store, waiting",
			logging.Duration("retry_in", interval),
			logging.Duration("waited", time.Since(start).Round(time.Second)),
		)
		time.Sleep(interval)
	}
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Commit commits the open transaction, if any. Safe to call when nothing is
// pending.
func (s *Store) Commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return services.Wrap(services.ErrQuery, "store", "commit", "", err)
	}
	return nil
}

// Rollback discards the open transaction, if any.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return services.Wrap(services.ErrQuery, "store", "rollback", "", err)
	}
	return nil
}

// Close rolls back uncommitted work, closes the database, and releases the
// advisory lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil {
			firstErr = err
		}
		s.tx = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.db = nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.lock = nil
	}
	return firstErr
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// writer returns the open transaction, beginning one on first write.
func (s *Store) writer(ctx context.Context) (dbtx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	return s.tx, nil
}

// reader returns the open transaction when present so reads observe
// uncommitted writes, otherwise the bare connection.
func (s *Store) reader() dbtx {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// exec runs a mutating statement inside the store transaction, retrying
// transient failures up to the configured attempt count.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		res, err := s.execOnce(ctx, op, query, args...)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt < s.attempts {
			s.metrics.StatementRetried(op)
			s.logger.Warn("store statement failed, retrying",
				logging.String("operation", op),
				logging.Int("remaining_attempts", s.attempts-attempt),
				logging.Error(lastErr),
			)
		}
	}
	s.metrics.StatementFailed(op)
	return nil, services.Wrap(services.ErrQuery, "store", op,
		fmt.Sprintf("exhausted %d attempts", s.attempts), lastErr)
}

func (s *Store) execOnce(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	if s.execHook != nil {
		if err := s.execHook(op); err != nil {
			return nil, err
		}
	}
	w, err := s.writer(ctx)
	if err != nil {
		return nil, err
	}
	return w.ExecContext(ctx, query, args...)
}

// query runs a read statement with the same retry policy as exec.
func (s *Store) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		rows, err := s.reader().QueryContext(ctx, query, args...)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if attempt < s.attempts {
			s.metrics.StatementRetried(op)
			s.logger.Warn("store query failed, retrying",
				logging.String("operation", op),
				logging.Int("remaining_attempts", s.attempts-attempt),
				logging.Error(lastErr),
			)
		}
	}
	s.metrics.StatementFailed(op)
	return nil, services.Wrap(services.ErrQuery, "store", op,
		fmt.Sprintf("exhausted %d attempts", s.attempts), lastErr)
}

// Query exposes parameterized read access for callers with needs beyond the
// typed finders. Mutation must go through the typed operations.
func (s *Store) Query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	return s.query(ctx, "raw query", stmt, args...)
}
