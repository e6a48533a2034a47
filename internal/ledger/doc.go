// Package ledger holds the exchange's domain model.
//
// An Exchange owns a set of colored-coin assets. Each Asset carries its
// shareholders, its two limit-order books and its votes. Every instruction
// observed on chain becomes an immutable Request recording what was asked,
// what happened and which outgoing payments it created.
//
// Types in this package carry no behavior beyond small invariant-preserving
// helpers. The state machine that mutates them lives in internal/engine.
//
// # Amounts
//
// All amounts are int64 satoshis or share counts. Order prices are satoshis
// per share.
//
// # Aliasing
//
// A resting limit order is referenced from two places: its side of the asset
// order book and its owner's ActiveOrders. Both hold the same *Order. Clone
// preserves that aliasing in the copy.
package ledger
