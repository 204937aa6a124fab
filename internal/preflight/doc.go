// Package preflight provides readiness checks for the generation service
// and the filesystem paths genflow depends on.
//
// The CLI "genflow config validate" command runs RunAll before a user
// commits to a pipeline run; each generation call is long-running, so
// surfacing an unreachable service or an unwritable data directory up
// front avoids wasting a run on a doomed setup.
package preflight
