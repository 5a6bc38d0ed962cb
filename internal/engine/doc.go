// Package engine drains the outbox against the remote order API.
//
// Per-row state machine: pending -> pending (retry), pending -> dead, or
// deletion on confirmed success. There is no persisted in-flight state; a
// crash mid-attempt leaves the row pending for the next pass. Delivery is
// at-least-once by design - the idempotency key attached to every attempt
// is what makes the effective application at-most-once on the server.
//
// Within one pass rows are attempted strictly oldest-first, one request
// in flight at a time. Sequential delivery trades throughput for FIFO
// ordering and keeps the idempotency bookkeeping trivial: two concurrent
// attempts can never race to mint duplicate clientRefs for one row.
//
// The loop never short-circuits. Every failure is caught, classified
// (see classify.go), recorded on the row, and reported in the pass
// summary with a recommended next action.
package engine
