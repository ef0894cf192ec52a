// Package storage persists broadcasts.
//
// It implements lifecycle.Repository on top of three drivers:
//   - "sqlite": a local database file (modernc.org/sqlite, no cgo)
//   - "postgres": a shared database reached through a DSN (lib/pq)
//   - "file": a JSON snapshot rewritten atomically, for single-node setups
//
// Instants are stored as unix milliseconds in every driver.
package storage
