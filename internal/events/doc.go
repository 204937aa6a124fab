// Package events decodes generation-service pipeline events and folds them
// into run state. Events arrive over a server-sent event stream as JSON
// envelopes; the reconciler applies them idempotently so that replayed or
// out-of-order deliveries converge on the same state.
package events
