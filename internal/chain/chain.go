// Package chain defines the blockchain data the exchange replays and the
// collaborators that supply it.
//
// The exchange never talks to a node directly. A BlockSource returns blocks
// by height; MemorySource and the YAML fixture loader are the in-process
// implementations used by tests and offline replays.
package chain

import (
	"context"
	"errors"
	"time"
)

// ErrBlockNotFound is returned by a BlockSource for heights it does not have.
var ErrBlockNotFound = errors.New("block not found")

// Output is one transaction output.
type Output struct {
	Address string `yaml:"address"`
	Amount  int64  `yaml:"amount"`
}

// Transaction is the subset of a transaction the exchange interprets.
type Transaction struct {
	Hash           string   `yaml:"hash"`
	InputAddresses []string `yaml:"inputs"`
	Outputs        []Output `yaml:"outputs"`
}

// Sender returns the address credited as the author of the transaction: its
// first input. Transactions without inputs have no sender.
func (tx Transaction) Sender() (string, bool) {
	if len(tx.InputAddresses) == 0 || tx.InputAddresses[0] == "" {
		return "", false
	}
	return tx.InputAddresses[0], true
}

// Block is one block of the chain.
type Block struct {
	Height       int64         `yaml:"height"`
	Hash         string        `yaml:"hash"`
	PreviousHash string        `yaml:"previous_hash"`
	Timestamp    time.Time     `yaml:"timestamp"`
	Transactions []Transaction `yaml:"transactions"`
}

// BlockSource supplies blocks to the replay.
type BlockSource interface {
	// LatestHeight returns the height of the best known block.
	LatestHeight(ctx context.Context) (int64, error)

	// BlockAt returns the block at height on the best chain.
	BlockAt(ctx context.Context, height int64) (Block, error)
}
