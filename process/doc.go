// Package process implements the ingress service: it accepts pipeline
// submissions over HTTP, verifies and optimizes them, stores the request
// record, enqueues the initial ready set, and serves response polling and
// cancellation.
package process
