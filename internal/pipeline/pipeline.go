// Package pipeline implements the batch jobs that move imaging sessions
// through the processing stages: discovery, download, conversion, the two
// validation passes, standard-layout conversion, upload, notification, and
// cleanup. Every job reads one store snapshot, acts on eligible sessions
// sequentially, and persists outcomes as it goes; a failed item never blocks
// the rest of the batch unless the failure is fatal for the run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"scanflow/internal/config"
	"scanflow/internal/logging"
	"scanflow/internal/metrics"
	"scanflow/internal/notifications"
	"scanflow/internal/store"
)

// Pipeline bundles the shared dependencies of all jobs.
type Pipeline struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier notifications.Service

	inventory Inventory
	fetcher   Fetcher
	nifti     NIfTIConverter
	bids      BIDSConverter
	uploader  Uploader

	now func() time.Time
}

// Option adjusts a Pipeline.
type Option func(*Pipeline)

// WithInventory overrides the source inventory.
func WithInventory(inv Inventory) Option {
	return func(p *Pipeline) { p.inventory = inv }
}

// WithFetcher overrides the data fetcher.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithNIfTIConverter overrides the DICOM to NIfTI converter.
func WithNIfTIConverter(c NIfTIConverter) Option {
	return func(p *Pipeline) { p.nifti = c }
}

// WithBIDSConverter overrides the standard-layout converter.
func WithBIDSConverter(c BIDSConverter) Option {
	return func(p *Pipeline) { p.bids = c }
}

// WithUploader overrides the archive uploader.
func WithUploader(u Uploader) Option {
	return func(p *Pipeline) { p.uploader = u }
}

// WithClock overrides the pipeline's time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a pipeline over an open store. Collaborators default to the
// local implementations; tests and alternative deployments may override
// them.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, m *metrics.Metrics, notifier notifications.Service, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg, m)
	}
	p := &Pipeline{
		cfg:       cfg,
		store:     st,
		logger:    logger,
		metrics:   m,
		notifier:  notifier,
		inventory: NewLocalInventory(cfg.Paths.InboxDir),
		fetcher:   NewLocalFetcher(cfg.Paths.InboxDir),
		nifti:     NewCommandNIfTIConverter(nil),
		bids:      NewCommandBIDSConverter(cfg, nil),
		uploader:  NewLocalUploader(cfg.Paths.DataDir),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TestNotification pushes a test message through the configured notifier.
func (p *Pipeline) TestNotification(ctx context.Context) error {
	return p.notifier.TestNotification(ctx)
}

// run wraps a job body with per-job logging and outcome metrics.
func (p *Pipeline) run(ctx context.Context, job string, body func(ctx context.Context, logger *slog.Logger) error) error {
	logger := p.logger.With(logging.String(logging.FieldComponent, job))
	started := p.now()
	logger.Info("job started")

	err := body(logging.WithStage(ctx, job), logger)
	elapsed := p.now().Sub(started)
	if err != nil {
		p.metrics.JobObserved(job, "error", elapsed)
		logger.Error("job failed", logging.Error(err))
		if p.cfg.Notifications.Errors {
			if notifyErr := p.notifier.NotifyError(ctx, err, job); notifyErr != nil {
				logger.Warn("error notification failed", logging.Error(notifyErr))
			}
		}
		return err
	}
	p.metrics.JobObserved(job, "ok", elapsed)
	logger.Info("job finished", slog.Duration("elapsed", elapsed))
	return nil
}
