// Package assets loads the asset init data: the templates an exchange
// operator prepares before announcing a create-asset or reinit instruction.
//
// Templates are written in CUE. Each file contributes entries to a top-level
// assets struct keyed by init id:
//
//	package assets
//
//	assets: "1": {
//		name:         "TEST"
//		total_shares: 100000
//		addresses: {limit_buy: "...", issuer: "...", ...}
//		holders: "mmy8qpLmZoxe1rSynrnx7k1XwHDm3BKpeQ": 100000
//	}
//
// Loading is fail-fast. A template with colliding addresses, a holder table
// that does not add up to total_shares, or an address that does not decode
// for the configured network is rejected before any block is replayed.
package assets
