// Package stores persists run history in a local SQLite database: one
// row per run, the terminal outcome of every component, and the full
// event stream as flattened JSON payloads.
//
// The store is an append-only audit record. The engine never consults
// it: idempotency decisions come from live cluster state, not from
// history.
package stores
