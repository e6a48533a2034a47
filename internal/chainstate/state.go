package chainstate

import (
	"slices"

	"github.com/stealth-startup/openexchange/internal/engine"
	"github.com/stealth-startup/openexchange/internal/ledger"
)

// RecentTradesLimit caps the per-asset trade history kept in a state.
const RecentTradesLimit = 100

// ChainedState is the replay state after one processed block.
type ChainedState struct {
	Exchange *ledger.Exchange

	// UsedAssetInitIDs lists, ascending, the init ids consumed by accepted
	// create-asset and reinitialize requests.
	UsedAssetInitIDs []int64

	// RequestSeq is the last request sequence number issued.
	RequestSeq int64

	// Requests are the requests produced by the block at this height.
	Requests []ledger.Request

	// RecentTrades holds the latest fills per asset, oldest first.
	RecentTrades map[string][]ledger.TradeItem
}

// Genesis wraps a freshly created exchange.
func Genesis(ex *ledger.Exchange) *ChainedState {
	return &ChainedState{
		Exchange:     ex,
		RecentTrades: make(map[string][]ledger.TradeItem),
	}
}

// Height is the processed block height of the state.
func (s *ChainedState) Height() int64 {
	return s.Exchange.ProcessedBlockHeight
}

// Hash is the processed block hash of the state.
func (s *ChainedState) Hash() string {
	return s.Exchange.ProcessedBlockHash
}

// WorkingCopy returns a deep copy of the exchange for the next block to be
// applied to. s itself is not modified.
func (s *ChainedState) WorkingCopy() *ledger.Exchange {
	return s.Exchange.Clone()
}

// Next builds the successor of s from the exchange the next block produced,
// that block's requests and the sequence counter after it.
func (s *ChainedState) Next(ex *ledger.Exchange, requests []ledger.Request, seq int64) *ChainedState {
	next := &ChainedState{
		Exchange:         ex,
		UsedAssetInitIDs: slices.Clone(s.UsedAssetInitIDs),
		RequestSeq:       seq,
		Requests:         requests,
		RecentTrades:     make(map[string][]ledger.TradeItem, len(s.RecentTrades)),
	}
	for name, trades := range s.RecentTrades {
		next.RecentTrades[name] = trades
	}

	for _, id := range engine.ConsumedInitIDs(requests) {
		if !slices.Contains(next.UsedAssetInitIDs, id) {
			next.UsedAssetInitIDs = append(next.UsedAssetInitIDs, id)
		}
	}
	slices.Sort(next.UsedAssetInitIDs)

	for _, req := range requests {
		if r, ok := req.(*ledger.AssetStateControl); ok {
			if _, reinit := engine.ReinitID(r); reinit {
				delete(next.RecentTrades, r.AssetName)
			}
			continue
		}
		trades := ledger.TradesOf(req)
		if len(trades) == 0 {
			continue
		}
		name := req.Head().AssetName
		merged := append(slices.Clone(next.RecentTrades[name]), trades...)
		if n := len(merged); n > RecentTradesLimit {
			merged = merged[n-RecentTradesLimit:]
		}
		next.RecentTrades[name] = merged
	}
	return next
}

// PriceLevel is the aggregated volume resting at one price.
type PriceLevel struct {
	UnitPrice int64
	Volume    int64
	Orders    int
}

// Depth aggregates an asset's books by price, best price first.
func Depth(a *ledger.Asset) (bids, asks []PriceLevel) {
	return levels(a.BuyBook), levels(a.SellBook)
}

func levels(book []*ledger.Order) []PriceLevel {
	var out []PriceLevel
	for _, o := range book {
		if n := len(out); n > 0 && out[n-1].UnitPrice == o.UnitPrice {
			out[n-1].Volume += o.VolumeUnfulfilled
			out[n-1].Orders++
			continue
		}
		out = append(out, PriceLevel{UnitPrice: o.UnitPrice, Volume: o.VolumeUnfulfilled, Orders: 1})
	}
	return out
}
