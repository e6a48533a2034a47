// Package store provides durable storage for encoded chained-state
// snapshots and a handful of named blobs.
//
// Snapshots are opaque byte strings keyed by block height. Encoding,
// verification and retention are the caller's business; a backend only
// has to keep what it is given and list heights in ascending order.
//
// # Backends
//
//   - SQLite: the default. WAL mode, NORMAL synchronous, 5-second busy
//     timeout, schema migrations tracked in PRAGMA user_version.
//   - LevelDB: keys built with orderedcode so snapshot heights iterate in
//     numeric order.
//   - Memory: for tests and dry runs.
//
// Every backend returns ErrNotFound for a missing height or name.
package store
