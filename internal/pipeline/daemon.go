package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"scanflow/internal/logging"
	"scanflow/internal/services"
)

// jobOrder is the sequence one pass over the pipeline runs the jobs in.
// Sync comes first so later jobs see the freshest sessions, cleanup last so
// a session converted and uploaded within a single pass is reclaimed in the
// same pass.
var jobOrder = []struct {
	name string
	run  func(*Pipeline, context.Context) error
}{
	{"sync", (*Pipeline).Sync},
	{"nifti-convert", (*Pipeline).ConvertToNIfTI},
	{"validate", (*Pipeline).Validate},
	{"summary-validate", (*Pipeline).ValidateWithSummary},
	{"notify", (*Pipeline).Notify},
	{"bids-convert", (*Pipeline).ConvertToBIDS},
	{"upload", (*Pipeline).Upload},
	{"cleanup", (*Pipeline).Cleanup},
}

// JobNames lists the runnable job names in execution order.
func JobNames() []string {
	names := make([]string, 0, len(jobOrder))
	for _, job := range jobOrder {
		names = append(names, job.name)
	}
	return names
}

// RunJob runs the named job once.
func (p *Pipeline) RunJob(ctx context.Context, name string) error {
	for _, job := range jobOrder {
		if job.name == name {
			return job.run(p, ctx)
		}
	}
	return services.Wrap(services.ErrConfig, name, "select job", "unknown job name", nil)
}

// RunAll runs one complete pass. Every job gets its chance even when an
// earlier one fails; the first store or config failure still stops the pass
// since nothing downstream can make progress without the store.
func (p *Pipeline) RunAll(ctx context.Context) error {
	ctx = logging.WithRunID(ctx, uuid.NewString())
	var errs []error
	for _, job := range jobOrder {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := job.run(p, ctx); err != nil {
			if services.IsFatal(err) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Daemon repeatedly runs full pipeline passes and serves metrics over HTTP.
type Daemon struct {
	pipeline *Pipeline
	logger   *slog.Logger
	interval time.Duration
	bind     string
}

// NewDaemon wraps a pipeline in a polling loop using the workflow settings
// from its configuration.
func NewDaemon(p *Pipeline) *Daemon {
	return &Daemon{
		pipeline: p,
		logger:   p.logger.With(logging.String(logging.FieldComponent, "daemon")),
		interval: p.cfg.PollIntervalDuration(),
		bind:     p.cfg.Workflow.MetricsBind,
	}
}

// Run loops until the context is canceled. The first pass starts
// immediately; later passes wait out the poll interval. A fatal pass error
// stops the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	server := d.startMetricsServer()
	if server != nil {
		defer server.Shutdown(context.Background())
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.pipeline.RunAll(ctx); err != nil {
			if services.IsFatal(err) || errors.Is(err, context.Canceled) {
				return err
			}
			d.logger.Warn("pass completed with errors", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Daemon) startMetricsServer() *http.Server {
	if d.bind == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.pipeline.metrics.Handler())
	server := &http.Server{Addr: d.bind, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", logging.Error(err))
		}
	}()
	d.logger.Info("metrics server listening", logging.String("bind", d.bind))
	return server
}
