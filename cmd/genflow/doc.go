// Package main hosts the genflow CLI entrypoint and command graph.
//
// The Cobra-based command tree drives the ad-video pipeline against the
// remote generation service: starting runs, editing scripts, selecting
// avatars, regenerating scenes, stitching, and review submission. It
// centralizes configuration resolution, run-state restoration, and
// structured logging setup so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
