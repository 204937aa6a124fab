// Package config loads, normalizes, and validates genflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GENFLOW_API_KEY. The Config type centralizes every knob the CLI and the
// orchestration layer need: generation service connection settings, local
// data directories, per-stage generation defaults, and logging output.
package config
