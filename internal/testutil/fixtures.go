// Package testutil provides fixtures shared by package tests: symbolic
// addresses, asset templates and block builders.
package testutil

import (
	"fmt"
	"sort"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/ledger"
)

// Exchange-wide addresses used by fixtures.
const (
	StateControlAddress = "exchange-state-control"
	CreateAssetAddress  = "exchange-create-asset"
	OpenExchangeAddress = "exchange-open"
	PaymentLogAddress   = "exchange-payment-log"

	GenesisHeight = 240000
	GenesisHash   = "000000000000000e7ad69c72afc00dc4e05fc15ae3061c47d3591d07c09f2928"
)

// ExchangeAddresses returns the fixture exchange addresses.
func ExchangeAddresses() ledger.ExchangeAddresses {
	return ledger.ExchangeAddresses{
		StateControl: StateControlAddress,
		CreateAsset:  CreateAssetAddress,
		OpenExchange: OpenExchangeAddress,
		PaymentLog:   PaymentLogAddress,
	}
}

// NewExchange returns a paused genesis exchange.
func NewExchange() *ledger.Exchange {
	return ledger.NewExchange(GenesisHeight, GenesisHash, ExchangeAddresses())
}

// Addresses derives a distinct address set for an asset named name.
func Addresses(name string) ledger.AssetAddresses {
	a := func(role string) string { return fmt.Sprintf("%s-%s", name, role) }
	return ledger.AssetAddresses{
		LimitBuy:     a("limit-buy"),
		LimitSell:    a("limit-sell"),
		MarketBuy:    a("market-buy"),
		MarketSell:   a("market-sell"),
		ClearOrder:   a("clear-order"),
		Transfer:     a("transfer"),
		Pay:          a("pay"),
		CreateVote:   a("create-vote"),
		Vote:         a("vote"),
		StateControl: a("state-control"),
		Issuer:       a("issuer"),
	}
}

// Template returns an asset template whose shares are held by holders.
func Template(id int64, name string, holders map[string]int64) assets.Template {
	var total int64
	for _, n := range holders {
		total += n
	}
	return assets.Template{
		ID:          id,
		Name:        name,
		TotalShares: total,
		Addresses:   Addresses(name),
		Holders:     holders,
	}
}

// RunningAsset installs a running asset built from tmpl into ex.
func RunningAsset(ex *ledger.Exchange, tmpl assets.Template) *ledger.Asset {
	a := tmpl.Instantiate()
	a.State = ledger.Running
	ex.Assets[tmpl.Name] = a
	return a
}

// Tx builds a transaction from sender with the given outputs.
func Tx(hash, sender string, outputs ...chain.Output) chain.Transaction {
	return chain.Transaction{Hash: hash, InputAddresses: []string{sender}, Outputs: outputs}
}

// Pay is shorthand for a transaction output.
func Pay(addr string, amount int64) chain.Output {
	return chain.Output{Address: addr, Amount: amount}
}

// TxSpec describes a transaction paying Amount to To, plus any Extra
// outputs. It doubles as the YAML shape of scenario transactions.
type TxSpec struct {
	Hash   string           `yaml:"hash,omitempty"`
	Sender string           `yaml:"from"`
	To     string           `yaml:"to"`
	Amount int64            `yaml:"amount"`
	Extra  map[string]int64 `yaml:"extra,omitempty"`
}

// Tx builds the transaction. Extra outputs follow the main one in address
// order. An empty Hash is replaced by fallback.
func (s TxSpec) Tx(fallback string) chain.Transaction {
	hash := s.Hash
	if hash == "" {
		hash = fallback
	}
	outs := []chain.Output{{Address: s.To, Amount: s.Amount}}
	addrs := make([]string, 0, len(s.Extra))
	for a := range s.Extra {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		outs = append(outs, chain.Output{Address: a, Amount: s.Extra[a]})
	}
	return Tx(hash, s.Sender, outs...)
}

// Txs builds one transaction per spec, naming unnamed ones by position.
func Txs(specs ...TxSpec) []chain.Transaction {
	txs := make([]chain.Transaction, len(specs))
	for i, s := range specs {
		txs[i] = s.Tx(fmt.Sprintf("tx%d", i))
	}
	return txs
}

// Chain builds linked blocks on top of a starting point.
type Chain struct {
	Clock  *BlockClock
	height int64
	hash   string
	forks  int
}

// NewChain starts a chain at the fixture genesis block.
func NewChain() *Chain {
	return &Chain{Clock: NewBlockClock(), height: GenesisHeight, hash: GenesisHash}
}

// Next returns the block following the last one built.
func (c *Chain) Next(txs ...chain.Transaction) chain.Block {
	b := chain.Block{
		Height:       c.height + 1,
		PreviousHash: c.hash,
		Timestamp:    c.Clock.Next(),
		Transactions: txs,
	}
	b.Hash = chain.SyntheticHash(fmt.Sprintf("%s#%d", b.PreviousHash, c.forks), b.Height)
	c.height, c.hash = b.Height, b.Hash
	return b
}

// Fork rewinds the builder so the next block is built on height with hash.
// Blocks built after a fork get hashes distinct from the abandoned branch.
func (c *Chain) Fork(height int64, hash string) {
	c.height, c.hash = height, hash
	c.forks++
}

// NextAfter returns a block extending ex directly, independent of any Chain.
func NextAfter(ex *ledger.Exchange, clock *BlockClock, txs ...chain.Transaction) chain.Block {
	b := chain.Block{
		Height:       ex.ProcessedBlockHeight + 1,
		PreviousHash: ex.ProcessedBlockHash,
		Timestamp:    clock.Next(),
		Transactions: txs,
	}
	b.Hash = chain.SyntheticHash(b.PreviousHash, b.Height)
	return b
}
