// Package engine replays blocks into the exchange ledger.
//
// The engine is a deterministic state machine. ProcessBlock takes the
// current Exchange and the next block, routes every payment to a service
// address through the address book to its handler, and returns the ordered
// list of requests it produced. Given the same exchange, block and asset
// init data it always produces the same requests and the same resulting
// state.
//
// # Instruction Encoding
//
// Instructions are payments. The satoshi amount sent to a service address is
// the instruction parameter; see encoding.go for each decoding.
//
// # Pause Gating
//
// While the exchange is paused only its state-control address is honored.
// While an asset is paused only that asset's state-control address is
// honored. Every other instruction becomes an Ignored request with no side
// effects.
//
// # Matching
//
// Limit orders rest in price/time priority. An incoming order crosses the
// opposite book from the best price and fills at the resting price. Market
// orders cross the same way but never rest.
//
// # Errors
//
// Rejected instructions are not errors: they produce requests with a fatal
// or not-as-expected status. Handlers return an error only for consistency
// violations (*ConsistencyError), which stop the replay.
//
// The engine is single-writer. ProcessBlock mutates the exchange it is
// given in place; callers hand it a private copy.
package engine
