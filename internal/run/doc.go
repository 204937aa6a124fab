// Package run defines the canonical state of one ad-video pipeline run.
//
// State is the single shared mutable resource of the orchestration layer.
// Two asynchronous sources write into it: direct responses to orchestrator
// calls and the generation service's push-event stream. Both go through the
// merge methods defined here, which serialize writes behind one mutex and
// keep the per-stage collections consistent under reordering (partial
// upserts by scene number, full replaces that seal a stage against stale
// partials).
//
// MaxReachableStage derives navigation from data completeness and is
// monotonically non-decreasing over the lifetime of a run.
package run
