// Package runstore persists pipeline run snapshots and their logs in a
// local SQLite database, giving the CLI a run history to list, resume, and
// inspect across sessions.
package runstore
