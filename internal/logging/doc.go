// Package logging builds the slog loggers used across genflow.
//
// It supplies console and JSON handlers, standardized attribute helpers, and
// the structured field names shared by the orchestrator, the event stream,
// and the CLI so that run activity can be filtered consistently.
package logging
