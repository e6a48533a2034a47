// Package chainstate keeps the per-height history of the replay.
//
// A ChainedState is the exchange as it stood after one block, together with
// the bookkeeping needed to continue from it: the init ids already used, the
// request sequence counter, the requests the block produced and a short
// trade history per asset. States are immutable once pushed.
//
// Store persists states through a store.Backend. It retains every one of the
// most recent RetainRecent heights plus every height divisible by
// CheckpointInterval, and rolls back exactly one height at a time.
//
// Snapshots are encoded as versioned JSON documents whose body is covered by
// a domain-separated SHA-256 digest. A snapshot that fails to decode or
// verify is reported as an engine.ConsistencyError.
package chainstate
