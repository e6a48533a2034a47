package ledger

import "time"

// AssetAddresses lists the service addresses of one asset plus its issuer.
type AssetAddresses struct {
	LimitBuy     string `json:"limit_buy" yaml:"limit_buy"`
	LimitSell    string `json:"limit_sell" yaml:"limit_sell"`
	MarketBuy    string `json:"market_buy" yaml:"market_buy"`
	MarketSell   string `json:"market_sell" yaml:"market_sell"`
	ClearOrder   string `json:"clear_order" yaml:"clear_order"`
	Transfer     string `json:"transfer" yaml:"transfer"`
	Pay          string `json:"pay" yaml:"pay"`
	CreateVote   string `json:"create_vote" yaml:"create_vote"`
	Vote         string `json:"vote" yaml:"vote"`
	StateControl string `json:"state_control" yaml:"state_control"`
	Issuer       string `json:"issuer" yaml:"issuer"`
}

// ServiceAddresses returns every address that carries an instruction, paired
// with the instruction kind, in a fixed order. The issuer is not included.
func (a AssetAddresses) ServiceAddresses() []KindAddress {
	return []KindAddress{
		{KindBuyLimitOrder, a.LimitBuy},
		{KindSellLimitOrder, a.LimitSell},
		{KindBuyMarketOrder, a.MarketBuy},
		{KindSellMarketOrder, a.MarketSell},
		{KindClearOrder, a.ClearOrder},
		{KindTransfer, a.Transfer},
		{KindPay, a.Pay},
		{KindCreateVote, a.CreateVote},
		{KindUserVote, a.Vote},
		{KindAssetStateControl, a.StateControl},
	}
}

// KindAddress pairs a service address with the instruction it triggers.
type KindAddress struct {
	Kind    Kind
	Address string
}

// Asset is one colored coin listed on the exchange.
type Asset struct {
	TotalShares int64
	Addresses   AssetAddresses
	State       RunState

	// SellBook is sorted by ascending unit price, BuyBook by descending
	// unit price. Orders at the same price keep arrival order.
	SellBook []*Order
	BuyBook  []*Order

	Users map[string]*User
	Votes map[int64]*Vote
}

// NewAsset returns a paused asset whose shares are held by holders.
func NewAsset(totalShares int64, addrs AssetAddresses, holders map[string]int64) *Asset {
	a := &Asset{
		TotalShares: totalShares,
		Addresses:   addrs,
		State:       Paused,
		Users:       make(map[string]*User, len(holders)),
		Votes:       make(map[int64]*Vote),
	}
	for addr, n := range holders {
		u := NewUser()
		u.Available = n
		u.Total = n
		a.Users[addr] = u
	}
	return a
}

// User returns the shareholder record for addr, creating an empty one if
// the address has never interacted with the asset.
func (a *Asset) User(addr string) *User {
	u, ok := a.Users[addr]
	if !ok {
		u = NewUser()
		a.Users[addr] = u
	}
	return u
}

// SharesOutstanding sums every user's total.
func (a *Asset) SharesOutstanding() int64 {
	var sum int64
	for _, u := range a.Users {
		sum += u.Total
	}
	return sum
}

// User is one shareholder of an asset.
type User struct {
	// Available is the share count not locked by resting sell orders.
	Available int64
	Total     int64

	// Votes maps vote index to the option chosen.
	Votes map[int64]int64

	OrderCounter int64
	ActiveOrders map[int64]*Order
}

// NewUser returns an empty shareholder record.
func NewUser() *User {
	return &User{
		Votes:        make(map[int64]int64),
		ActiveOrders: make(map[int64]*Order),
	}
}

// Side is the direction of an order or trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Order is a resting limit order.
type Order struct {
	Owner             string
	Index             int64
	Side              Side
	UnitPrice         int64
	VolumeRequested   int64
	VolumeUnfulfilled int64
	PlacedAt          time.Time
	TxHash            string
	TradeHistory      []TradeItem
}

// TradeItem records one fill from the point of view of one order.
type TradeItem struct {
	UnitPrice int64
	Volume    int64
	Timestamp time.Time

	// Side is the side of the order holding this record.
	Side Side

	// Initiator is the side of the incoming order that caused the fill.
	Initiator Side
}
