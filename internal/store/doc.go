// Package store provides the SQLite-backed local store for the offline
// order sync engine.
//
// Tables:
//   - products_cache / variant_cache: last known server catalog snapshot,
//     read while offline, overwritten in bulk on refresh
//   - orders_cache: last known server order records
//   - outbox: durable log of pending mutation intents awaiting delivery
//   - sync_state: key/value bookkeeping (last_sync_at)
//
// Invariants enforced at the schema level:
//   - outbox.client_ref is unique across all rows ever created (partial
//     unique index; empty refs from pre-envelope clients are exempt until
//     backfilled on read)
//   - (event_type, payload_hash, status) indexed for the dedup lookup
//   - (status, created_at) indexed for FIFO draining
//
// Every persisted value travels through a bound parameter; no query text
// is ever built from caller input.
//
// Bulk writes (catalog and order upserts) run in a single transaction so
// a crash mid-write never leaves the cache partially updated. Single-row
// mutations rely on SQLite's implicit per-statement atomicity.
//
// Database configuration: WAL mode, synchronous=NORMAL, busy_timeout=5000,
// foreign_keys=ON, single connection (one writer process owns the file).
package store
