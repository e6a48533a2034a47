package engine

import (
	"errors"
	"fmt"

	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/ledger"
)

// ProcessBlock applies block to ex and returns the requests it produced in
// transaction-then-output order.
//
// ex is mutated in place. On error it is left partially updated and must be
// discarded. ErrChainMismatch means the block does not extend ex; any other
// error is a *ConsistencyError.
func ProcessBlock(ex *ledger.Exchange, block chain.Block, initData InitData, clock *Clock) ([]ledger.Request, error) {
	if block.Height != ex.ProcessedBlockHeight+1 || block.PreviousHash != ex.ProcessedBlockHash {
		return nil, fmt.Errorf("%w: processed %d (%s), got %d on top of %s",
			ErrChainMismatch, ex.ProcessedBlockHeight, ex.ProcessedBlockHash, block.Height, block.PreviousHash)
	}

	book, err := BuildAddressBook(ex)
	if err != nil {
		return nil, atHeight(err, block.Height)
	}

	scoped := &blockInit{InitData: initData, used: make(map[int64]bool)}
	var requests []ledger.Request
	for _, tx := range block.Transactions {
		sender, ok := tx.Sender()
		if !ok {
			continue
		}
		for _, out := range tx.Outputs {
			route, ok := book.Lookup(out.Address)
			if !ok {
				continue
			}
			in := &Instruction{
				Tx:             tx,
				Sender:         sender,
				ServiceAddress: out.Address,
				Amount:         out.Amount,
				BlockHeight:    block.Height,
				BlockTime:      block.Timestamp,
				Exchange:       ex,
				AssetName:      route.AssetName,
				Asset:          route.Asset,
				Init:           scoped,
			}

			var req ledger.Request
			if msg, ignored := gate(ex, route); ignored {
				ig := &ledger.Ignored{Header: in.header(route.Kind)}
				ig.Reject(ledger.StatusFatal, msg)
				req = ig
			} else {
				req, err = handlers[route.Kind](in)
				if err != nil {
					return nil, atHeight(err, block.Height)
				}
				if changesAddresses(req) {
					for _, id := range ConsumedInitIDs([]ledger.Request{req}) {
						scoped.used[id] = true
					}
					if book, err = BuildAddressBook(ex); err != nil {
						return nil, atHeight(err, block.Height)
					}
				}
			}
			req.Head().Seq = clock.Next()
			requests = append(requests, req)
		}
	}

	ex.ProcessedBlockHeight = block.Height
	ex.ProcessedBlockHash = block.Hash
	return requests, nil
}

// gate applies pause state. It returns the ignore reason when the route may
// not be honored right now.
func gate(ex *ledger.Exchange, r Route) (ledger.MessageCode, bool) {
	if ex.State == ledger.Paused {
		if r.Kind == ledger.KindExchangeStateControl {
			return ledger.MsgNone, false
		}
		return ledger.MsgIgnoredExchangePaused, true
	}
	if r.Asset != nil && r.Asset.State == ledger.Paused && r.Kind != ledger.KindAssetStateControl {
		return ledger.MsgIgnoredAssetPaused, true
	}
	return ledger.MsgNone, false
}

// changesAddresses reports whether req added or replaced an asset.
func changesAddresses(req ledger.Request) bool {
	switch r := req.(type) {
	case *ledger.CreateAsset:
		return r.Status == ledger.StatusOK
	case *ledger.AssetStateControl:
		_, ok := ReinitID(r)
		return ok
	}
	return false
}

// ConsumedInitIDs returns the asset init ids used by accepted create-asset
// and reinitialize requests.
func ConsumedInitIDs(requests []ledger.Request) []int64 {
	var ids []int64
	for _, req := range requests {
		switch r := req.(type) {
		case *ledger.CreateAsset:
			if r.Status == ledger.StatusOK {
				ids = append(ids, r.FileID)
			}
		case *ledger.AssetStateControl:
			if id, ok := ReinitID(r); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func atHeight(err error, height int64) error {
	var ce *ConsistencyError
	if errors.As(err, &ce) && ce.Height == 0 {
		ce.Height = height
	}
	return err
}

// blockInit hides init ids already consumed earlier in the same block.
type blockInit struct {
	InitData
	used map[int64]bool
}

func (b *blockInit) Lookup(id int64) (string, *ledger.Asset, bool) {
	if b.used[id] || b.InitData == nil {
		return "", nil, false
	}
	return b.InitData.Lookup(id)
}
