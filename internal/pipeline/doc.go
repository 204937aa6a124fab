// Package pipeline sequences the ad-video generation workflow: product input
// to script, avatar selection, storyboard, video variants, stitch, and
// review. The Orchestrator drives whole-stage operations single-flight over
// shared run state; the Regenerator handles per-scene quality retries with
// independent per-scene locks.
package pipeline
