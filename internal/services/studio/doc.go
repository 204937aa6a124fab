// Package studio wraps the generation service's HTTP API: script writing,
// avatar and storyboard generation, video rendering, per-scene regeneration,
// stitching, and review submission. All calls are synchronous request/response
// pairs; progress for long-running operations arrives separately over the
// job event stream.
package studio
