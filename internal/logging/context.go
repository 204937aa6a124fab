package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for pipeline run identifiers.
	FieldRunID = "run_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldScene is the standardized structured logging key for 1-based scene numbers.
	FieldScene = "scene_number"
	// FieldEventType is the standardized structured logging key for machine-readable event labels.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next diagnostic step when an operation fails.
	FieldErrorHint = "error_hint"
)

type contextKey int

const (
	runIDKey contextKey = iota
	stageKey
)

// WithRunID stores the run identifier on the context for downstream log calls.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithStage stores the pipeline stage name on the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, slog.String(FieldStage, stage))
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
