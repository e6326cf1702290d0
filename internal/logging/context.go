package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSession is the standardized structured logging key for session directory names.
	FieldSession = "session"
	// FieldSubject is the standardized structured logging key for subject identifiers.
	FieldSubject = "subject"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldSeries is the standardized structured logging key for series descriptions.
	FieldSeries = "series"
	// FieldRunID is the standardized structured logging key for pipeline run identifiers.
	FieldRunID = "run_id"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	stageContextKey   contextKey = "stage"
	runIDContextKey   contextKey = "run_id"
)

// WithSession stores a session directory name in the context for log enrichment.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// WithStage stores a pipeline stage name in the context for log enrichment.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageContextKey, stage)
}

// WithRunID stores a pipeline run identifier in the context for log enrichment.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey, runID)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if session, ok := ctx.Value(sessionContextKey).(string); ok && session != "" {
		fields = append(fields, slog.String(FieldSession, session))
	}
	if stage, ok := ctx.Value(stageContextKey).(string); ok && stage != "" {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if runID, ok := ctx.Value(runIDContextKey).(string); ok && runID != "" {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
