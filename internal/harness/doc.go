// Package harness replays scenario files against the full replay service
// and checks the resulting request trace, final state and payments.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: limit_cross
//	description: "A resting sell is crossed by a buy at the same price"
//	assets:
//	  - id: 1
//	    name: TEST
//	    holders: {holder: 1000}
//	blocks:
//	  - txs:
//	      - {from: exchange-open, to: exchange-state-control, amount: 1}
//	  - fork: 240001
//	    txs:
//	      - {from: holder, to: TEST-limit-sell, amount: 200010}
//	assertions:
//	  - type: request
//	    kind: sell_limit_order
//	    status: ok
//	  - type: final_state
//	    asset: TEST
//	    user: holder
//	    expect: {available: 990, total: 996}
//	  - type: paid
//	    address: holder
//	    amount: 280010
//
// Asset addresses follow testutil.Addresses: the asset name, a dash and the
// role ("TEST-limit-sell"). Exchange addresses are the testutil constants.
//
// A consistency error stops the replay and is recorded as a halt event.
//
// Blocks are processed as soon as they are added: one confirmation is the
// block itself. A block with fork: H is built on top of the block at height
// H of the chain built so far, replacing every block above it. Nothing
// rolls back until the new branch reaches one past the processed height;
// the service then rolls back one height per block that fails to link.
//
// # Assertion Types
//
//   - request: some request matches every non-empty field
//   - request_order: requests of the listed kinds appear in that order
//   - request_count: exactly count requests match kind (and status)
//   - rollback_count: exactly count rollbacks happened
//   - final_state: exchange, asset or user fields of the final state
//   - paid: the total sent to address across all payment transactions
//   - halted: the replay stopped with the consistency error code message
//
// # Determinism
//
// Every run uses a fresh in-memory store, synthetic block hashes, a fixed
// block clock and a dry-run sender, so traces are stable across runs and
// can be compared against golden files.
package harness
