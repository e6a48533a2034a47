package ledger

import (
	"sort"
	"time"
)

// RunState is the running/paused flag shared by the exchange and assets.
type RunState string

const (
	Running RunState = "running"
	Paused  RunState = "paused"
)

// Exchange is the root of the replayed state.
type Exchange struct {
	// ProcessedBlockHeight is the height of the last block applied.
	ProcessedBlockHeight int64

	// ProcessedBlockHash is the hash of the last block applied.
	ProcessedBlockHash string

	StateControlAddress string
	CreateAssetAddress  string
	OpenExchangeAddress string
	PaymentLogAddress   string

	State  RunState
	Assets map[string]*Asset
}

// NewExchange returns a paused exchange positioned at the given genesis block.
func NewExchange(height int64, hash string, addrs ExchangeAddresses) *Exchange {
	return &Exchange{
		ProcessedBlockHeight: height,
		ProcessedBlockHash:   hash,
		StateControlAddress:  addrs.StateControl,
		CreateAssetAddress:   addrs.CreateAsset,
		OpenExchangeAddress:  addrs.OpenExchange,
		PaymentLogAddress:    addrs.PaymentLog,
		State:                Paused,
		Assets:               make(map[string]*Asset),
	}
}

// ExchangeAddresses groups the exchange-wide addresses fixed at genesis.
type ExchangeAddresses struct {
	StateControl string
	CreateAsset  string
	OpenExchange string
	PaymentLog   string
}

// AssetNames returns the registered asset names in sorted order.
func (e *Exchange) AssetNames() []string {
	names := make([]string, 0, len(e.Assets))
	for name := range e.Assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the exchange.
func (e *Exchange) Clone() *Exchange {
	if e == nil {
		return nil
	}
	c := *e
	c.Assets = make(map[string]*Asset, len(e.Assets))
	for name, a := range e.Assets {
		c.Assets[name] = a.Clone()
	}
	return &c
}

// Clone returns a deep copy of the asset. Book orders and the owners'
// ActiveOrders keep pointing at the same copied *Order.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	copied := make(map[*Order]*Order, len(a.SellBook)+len(a.BuyBook))
	cloneBook := func(book []*Order) []*Order {
		if book == nil {
			return nil
		}
		out := make([]*Order, len(book))
		for i, o := range book {
			oc := o.clone()
			copied[o] = oc
			out[i] = oc
		}
		return out
	}
	c.SellBook = cloneBook(a.SellBook)
	c.BuyBook = cloneBook(a.BuyBook)

	c.Users = make(map[string]*User, len(a.Users))
	for addr, u := range a.Users {
		uc := *u
		uc.Votes = make(map[int64]int64, len(u.Votes))
		for k, v := range u.Votes {
			uc.Votes[k] = v
		}
		uc.ActiveOrders = make(map[int64]*Order, len(u.ActiveOrders))
		for idx, o := range u.ActiveOrders {
			if oc, ok := copied[o]; ok {
				uc.ActiveOrders[idx] = oc
			} else {
				uc.ActiveOrders[idx] = o.clone()
			}
		}
		c.Users[addr] = &uc
	}

	c.Votes = make(map[int64]*Vote, len(a.Votes))
	for idx, v := range a.Votes {
		vc := *v
		vc.Stat = make(map[int64]int64, len(v.Stat))
		for k, n := range v.Stat {
			vc.Stat[k] = n
		}
		c.Votes[idx] = &vc
	}
	return &c
}

func (o *Order) clone() *Order {
	c := *o
	if o.TradeHistory != nil {
		c.TradeHistory = append([]TradeItem(nil), o.TradeHistory...)
	}
	return &c
}

// Vote is a shareholder vote opened by the asset issuer.
type Vote struct {
	StartTime  time.Time
	ExpireTime time.Time

	// Stat maps option to accumulated share weight.
	Stat map[int64]int64
}

// Closed reports whether the vote no longer accepts ballots at t.
func (v *Vote) Closed(t time.Time) bool {
	return !t.Before(v.ExpireTime)
}
