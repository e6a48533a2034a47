package engine

import (
	"slices"
	"sort"
	"time"

	"github.com/stealth-startup/openexchange/internal/ledger"
)

// placeOrder inserts o into its side of the book ahead of the first order
// with a strictly worse price. Orders at the same price keep arrival order.
func placeOrder(a *ledger.Asset, o *ledger.Order) {
	if o.Side == ledger.Buy {
		i := sort.Search(len(a.BuyBook), func(i int) bool { return a.BuyBook[i].UnitPrice < o.UnitPrice })
		a.BuyBook = slices.Insert(a.BuyBook, i, o)
		return
	}
	i := sort.Search(len(a.SellBook), func(i int) bool { return a.SellBook[i].UnitPrice > o.UnitPrice })
	a.SellBook = slices.Insert(a.SellBook, i, o)
}

// removeOrder takes o out of its book. It reports false if o is not there.
func removeOrder(a *ledger.Asset, o *ledger.Order) bool {
	book := &a.SellBook
	if o.Side == ledger.Buy {
		book = &a.BuyBook
	}
	i := slices.Index(*book, o)
	if i < 0 {
		return false
	}
	*book = slices.Delete(*book, i, i+1)
	return true
}

// fill is one execution against a resting order.
type fill struct {
	resting *ledger.Order
	price   int64
	volume  int64
	at      time.Time
}

// execute moves volume shares from seller to buyer and records the trade
// on the resting order. Exhausted resting orders leave the book and their
// owner's active orders. The returned item is the incoming side's record.
func execute(assetName string, a *ledger.Asset, f fill, buyer, seller string, initiator ledger.Side) (ledger.TradeItem, error) {
	b, ok := a.Users[buyer]
	if !ok {
		return ledger.TradeItem{}, NewInvariantError(assetName, "buyer %s has no record", buyer)
	}
	s, ok := a.Users[seller]
	if !ok {
		return ledger.TradeItem{}, NewInvariantError(assetName, "seller %s has no record", seller)
	}
	if s.Total-s.Available < f.volume {
		return ledger.TradeItem{}, NewInvariantError(assetName,
			"seller %s has %d locked shares, trade needs %d", seller, s.Total-s.Available, f.volume)
	}

	b.Available += f.volume
	b.Total += f.volume
	s.Total -= f.volume

	r := f.resting
	r.VolumeUnfulfilled -= f.volume
	r.TradeHistory = append(r.TradeHistory, ledger.TradeItem{
		UnitPrice: f.price,
		Volume:    f.volume,
		Timestamp: f.at,
		Side:      r.Side,
		Initiator: initiator,
	})
	if r.VolumeUnfulfilled == 0 {
		removeOrder(a, r)
		if owner, ok := a.Users[r.Owner]; ok {
			delete(owner.ActiveOrders, r.Index)
		}
	}

	return ledger.TradeItem{
		UnitPrice: f.price,
		Volume:    f.volume,
		Timestamp: f.at,
		Side:      initiator,
		Initiator: initiator,
	}, nil
}

// bestSell returns the head of the sell book.
func bestSell(a *ledger.Asset) (*ledger.Order, bool) {
	if len(a.SellBook) == 0 {
		return nil, false
	}
	return a.SellBook[0], true
}

// bestBuy returns the head of the buy book.
func bestBuy(a *ledger.Asset) (*ledger.Order, bool) {
	if len(a.BuyBook) == 0 {
		return nil, false
	}
	return a.BuyBook[0], true
}
