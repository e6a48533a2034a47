package chainstate

import (
	"fmt"
	"time"

	"github.com/stealth-startup/openexchange/internal/ledger"
)

// The DTOs below are the on-disk shape of a ChainedState. They are kept
// separate from the ledger types so the ledger can change without silently
// changing the stored format.

type stateDTO struct {
	Exchange         exchangeDTO           `json:"exchange"`
	UsedAssetInitIDs []int64               `json:"used_asset_init_ids,omitempty"`
	RequestSeq       int64                 `json:"request_seq"`
	Requests         []requestDTO          `json:"requests,omitempty"`
	RecentTrades     map[string][]tradeDTO `json:"recent_trades,omitempty"`
}

type exchangeDTO struct {
	ProcessedBlockHeight int64               `json:"processed_block_height"`
	ProcessedBlockHash   string              `json:"processed_block_hash"`
	StateControlAddress  string              `json:"state_control_address"`
	CreateAssetAddress   string              `json:"create_asset_address"`
	OpenExchangeAddress  string              `json:"open_exchange_address"`
	PaymentLogAddress    string              `json:"payment_log_address"`
	State                ledger.RunState     `json:"state"`
	Assets               map[string]assetDTO `json:"assets"`
}

type assetDTO struct {
	TotalShares int64                 `json:"total_shares"`
	Addresses   ledger.AssetAddresses `json:"addresses"`
	State       ledger.RunState       `json:"state"`
	SellBook    []orderDTO            `json:"sell_book,omitempty"`
	BuyBook     []orderDTO            `json:"buy_book,omitempty"`
	Users       map[string]userDTO    `json:"users"`
	Votes       map[int64]voteDTO     `json:"votes,omitempty"`
}

// userDTO omits active orders; they are rebuilt from the books.
type userDTO struct {
	Available    int64           `json:"available"`
	Total        int64           `json:"total"`
	Votes        map[int64]int64 `json:"votes,omitempty"`
	OrderCounter int64           `json:"order_counter,omitempty"`
}

type orderDTO struct {
	Owner             string      `json:"owner"`
	Index             int64       `json:"index"`
	Side              ledger.Side `json:"side"`
	UnitPrice         int64       `json:"unit_price"`
	VolumeRequested   int64       `json:"volume_requested"`
	VolumeUnfulfilled int64       `json:"volume_unfulfilled"`
	PlacedAt          time.Time   `json:"placed_at"`
	TxHash            string      `json:"tx_hash"`
	TradeHistory      []tradeDTO  `json:"trade_history,omitempty"`
}

type tradeDTO struct {
	UnitPrice int64       `json:"unit_price"`
	Volume    int64       `json:"volume"`
	Timestamp time.Time   `json:"timestamp"`
	Side      ledger.Side `json:"side"`
	Initiator ledger.Side `json:"initiator"`
}

type voteDTO struct {
	StartTime  time.Time       `json:"start_time"`
	ExpireTime time.Time       `json:"expire_time"`
	Stat       map[int64]int64 `json:"stat"`
}

// requestDTO flattens the request variants. Exactly one of the detail
// fields is set, except for ignored requests which carry none.
type requestDTO struct {
	Seq             int64              `json:"seq"`
	Kind            ledger.Kind        `json:"kind"`
	Ignored         bool               `json:"ignored,omitempty"`
	TxHash          string             `json:"tx_hash"`
	Sender          string             `json:"sender"`
	ServiceAddress  string             `json:"service_address"`
	AssetName       string             `json:"asset_name,omitempty"`
	BlockHeight     int64              `json:"block_height"`
	BlockTime       time.Time          `json:"block_time"`
	Amount          int64              `json:"amount"`
	Status          ledger.Status      `json:"status"`
	Message         ledger.MessageCode `json:"message,omitempty"`
	RelatedPayments map[string]int64   `json:"related_payments,omitempty"`

	CreateAsset  *createAssetDTO  `json:"create_asset,omitempty"`
	StateControl *stateControlDTO `json:"state_control,omitempty"`
	LimitOrder   *limitOrderDTO   `json:"limit_order,omitempty"`
	MarketBuy    *marketBuyDTO    `json:"market_buy,omitempty"`
	MarketSell   *marketSellDTO   `json:"market_sell,omitempty"`
	ClearOrder   *clearOrderDTO   `json:"clear_order,omitempty"`
	Transfer     *transferDTO     `json:"transfer,omitempty"`
	CreateVote   *createVoteDTO   `json:"create_vote,omitempty"`
	UserVote     *userVoteDTO     `json:"user_vote,omitempty"`
	Pay          *payDTO          `json:"pay,omitempty"`
}

type createAssetDTO struct {
	FileID       int64  `json:"file_id"`
	NewAssetName string `json:"new_asset_name,omitempty"`
}

type stateControlDTO struct {
	RequestedState int64 `json:"requested_state"`
}

type limitOrderDTO struct {
	UserAddress       string     `json:"user_address"`
	OrderIndex        int64      `json:"order_index"`
	VolumeRequested   int64      `json:"volume_requested"`
	VolumeUnfulfilled int64      `json:"volume_unfulfilled"`
	UnitPrice         int64      `json:"unit_price"`
	ImmediateTrades   []tradeDTO `json:"immediate_trades,omitempty"`
}

type marketBuyDTO struct {
	UserAddress           string     `json:"user_address"`
	TotalPriceRequested   int64      `json:"total_price_requested"`
	TotalPriceUnfulfilled int64      `json:"total_price_unfulfilled"`
	VolumeFulfilled       int64      `json:"volume_fulfilled"`
	Trades                []tradeDTO `json:"trades,omitempty"`
}

type marketSellDTO struct {
	UserAddress       string     `json:"user_address"`
	VolumeRequested   int64      `json:"volume_requested"`
	VolumeUnfulfilled int64      `json:"volume_unfulfilled"`
	PriceTotalSold    int64      `json:"price_total_sold"`
	Trades            []tradeDTO `json:"trades,omitempty"`
}

type clearOrderDTO struct {
	UserAddress string    `json:"user_address"`
	OrderIndex  int64     `json:"order_index"`
	Cleared     *orderDTO `json:"cleared,omitempty"`
}

type transferDTO struct {
	UserAddress string           `json:"user_address"`
	Targets     map[string]int64 `json:"targets,omitempty"`
}

type createVoteDTO struct {
	VoteIndex  int64     `json:"vote_index"`
	Days       int64     `json:"days"`
	ExpireTime time.Time `json:"expire_time"`
}

type userVoteDTO struct {
	VoteIndex int64 `json:"vote_index"`
	Option    int64 `json:"option"`
	Weight    int64 `json:"weight"`
}

type payDTO struct {
	PayAmount        int64 `json:"pay_amount"`
	DividendPerShare int64 `json:"dividend_per_share"`
	Change           int64 `json:"change"`
}

// to DTO

func toStateDTO(s *ChainedState) stateDTO {
	dto := stateDTO{
		Exchange:         toExchangeDTO(s.Exchange),
		UsedAssetInitIDs: s.UsedAssetInitIDs,
		RequestSeq:       s.RequestSeq,
	}
	for _, r := range s.Requests {
		dto.Requests = append(dto.Requests, toRequestDTO(r))
	}
	if len(s.RecentTrades) > 0 {
		dto.RecentTrades = make(map[string][]tradeDTO, len(s.RecentTrades))
		for name, trades := range s.RecentTrades {
			dto.RecentTrades[name] = toTradeDTOs(trades)
		}
	}
	return dto
}

func toExchangeDTO(ex *ledger.Exchange) exchangeDTO {
	dto := exchangeDTO{
		ProcessedBlockHeight: ex.ProcessedBlockHeight,
		ProcessedBlockHash:   ex.ProcessedBlockHash,
		StateControlAddress:  ex.StateControlAddress,
		CreateAssetAddress:   ex.CreateAssetAddress,
		OpenExchangeAddress:  ex.OpenExchangeAddress,
		PaymentLogAddress:    ex.PaymentLogAddress,
		State:                ex.State,
		Assets:               make(map[string]assetDTO, len(ex.Assets)),
	}
	for name, a := range ex.Assets {
		dto.Assets[name] = toAssetDTO(a)
	}
	return dto
}

func toAssetDTO(a *ledger.Asset) assetDTO {
	dto := assetDTO{
		TotalShares: a.TotalShares,
		Addresses:   a.Addresses,
		State:       a.State,
		Users:       make(map[string]userDTO, len(a.Users)),
	}
	for _, o := range a.SellBook {
		dto.SellBook = append(dto.SellBook, toOrderDTO(o))
	}
	for _, o := range a.BuyBook {
		dto.BuyBook = append(dto.BuyBook, toOrderDTO(o))
	}
	for addr, u := range a.Users {
		dto.Users[addr] = userDTO{
			Available:    u.Available,
			Total:        u.Total,
			Votes:        u.Votes,
			OrderCounter: u.OrderCounter,
		}
	}
	if len(a.Votes) > 0 {
		dto.Votes = make(map[int64]voteDTO, len(a.Votes))
		for i, v := range a.Votes {
			dto.Votes[i] = voteDTO{StartTime: v.StartTime, ExpireTime: v.ExpireTime, Stat: v.Stat}
		}
	}
	return dto
}

func toOrderDTO(o *ledger.Order) orderDTO {
	return orderDTO{
		Owner:             o.Owner,
		Index:             o.Index,
		Side:              o.Side,
		UnitPrice:         o.UnitPrice,
		VolumeRequested:   o.VolumeRequested,
		VolumeUnfulfilled: o.VolumeUnfulfilled,
		PlacedAt:          o.PlacedAt,
		TxHash:            o.TxHash,
		TradeHistory:      toTradeDTOs(o.TradeHistory),
	}
}

func toTradeDTOs(items []ledger.TradeItem) []tradeDTO {
	if items == nil {
		return nil
	}
	out := make([]tradeDTO, len(items))
	for i, t := range items {
		out[i] = tradeDTO(t)
	}
	return out
}

func toRequestDTO(r ledger.Request) requestDTO {
	h := r.Head()
	dto := requestDTO{
		Seq:             h.Seq,
		Kind:            h.Kind,
		TxHash:          h.TxHash,
		Sender:          h.Sender,
		ServiceAddress:  h.ServiceAddress,
		AssetName:       h.AssetName,
		BlockHeight:     h.BlockHeight,
		BlockTime:       h.BlockTime,
		Amount:          h.Amount,
		Status:          h.Status,
		Message:         h.Message,
		RelatedPayments: h.RelatedPayments,
	}

	switch req := r.(type) {
	case *ledger.Ignored:
		dto.Ignored = true
	case *ledger.CreateAsset:
		dto.CreateAsset = &createAssetDTO{FileID: req.FileID, NewAssetName: req.NewAssetName}
	case *ledger.ExchangeStateControl:
		dto.StateControl = &stateControlDTO{RequestedState: req.RequestedState}
	case *ledger.AssetStateControl:
		dto.StateControl = &stateControlDTO{RequestedState: req.RequestedState}
	case *ledger.BuyLimitOrder:
		dto.LimitOrder = toLimitOrderDTO(&req.LimitOrder)
	case *ledger.SellLimitOrder:
		dto.LimitOrder = toLimitOrderDTO(&req.LimitOrder)
	case *ledger.BuyMarketOrder:
		dto.MarketBuy = &marketBuyDTO{
			UserAddress:           req.UserAddress,
			TotalPriceRequested:   req.TotalPriceRequested,
			TotalPriceUnfulfilled: req.TotalPriceUnfulfilled,
			VolumeFulfilled:       req.VolumeFulfilled,
			Trades:                toTradeDTOs(req.Trades),
		}
	case *ledger.SellMarketOrder:
		dto.MarketSell = &marketSellDTO{
			UserAddress:       req.UserAddress,
			VolumeRequested:   req.VolumeRequested,
			VolumeUnfulfilled: req.VolumeUnfulfilled,
			PriceTotalSold:    req.PriceTotalSold,
			Trades:            toTradeDTOs(req.Trades),
		}
	case *ledger.ClearOrder:
		dto.ClearOrder = &clearOrderDTO{UserAddress: req.UserAddress, OrderIndex: req.OrderIndex}
		if req.Cleared != nil {
			o := toOrderDTO(req.Cleared)
			dto.ClearOrder.Cleared = &o
		}
	case *ledger.Transfer:
		dto.Transfer = &transferDTO{UserAddress: req.UserAddress, Targets: req.Targets}
	case *ledger.CreateVote:
		dto.CreateVote = &createVoteDTO{VoteIndex: req.VoteIndex, Days: req.Days, ExpireTime: req.ExpireTime}
	case *ledger.UserVote:
		dto.UserVote = &userVoteDTO{VoteIndex: req.VoteIndex, Option: req.Option, Weight: req.Weight}
	case *ledger.Pay:
		dto.Pay = &payDTO{PayAmount: req.PayAmount, DividendPerShare: req.DividendPerShare, Change: req.Change}
	}
	return dto
}

func toLimitOrderDTO(l *ledger.LimitOrder) *limitOrderDTO {
	return &limitOrderDTO{
		UserAddress:       l.UserAddress,
		OrderIndex:        l.OrderIndex,
		VolumeRequested:   l.VolumeRequested,
		VolumeUnfulfilled: l.VolumeUnfulfilled,
		UnitPrice:         l.UnitPrice,
		ImmediateTrades:   toTradeDTOs(l.ImmediateTrades),
	}
}

// from DTO

func (dto stateDTO) state() (*ChainedState, error) {
	ex, err := dto.Exchange.exchange()
	if err != nil {
		return nil, err
	}
	s := &ChainedState{
		Exchange:         ex,
		UsedAssetInitIDs: dto.UsedAssetInitIDs,
		RequestSeq:       dto.RequestSeq,
		RecentTrades:     make(map[string][]ledger.TradeItem, len(dto.RecentTrades)),
	}
	for _, r := range dto.Requests {
		req, err := r.request()
		if err != nil {
			return nil, err
		}
		s.Requests = append(s.Requests, req)
	}
	for name, trades := range dto.RecentTrades {
		s.RecentTrades[name] = tradeItems(trades)
	}
	return s, nil
}

func (dto exchangeDTO) exchange() (*ledger.Exchange, error) {
	ex := &ledger.Exchange{
		ProcessedBlockHeight: dto.ProcessedBlockHeight,
		ProcessedBlockHash:   dto.ProcessedBlockHash,
		StateControlAddress:  dto.StateControlAddress,
		CreateAssetAddress:   dto.CreateAssetAddress,
		OpenExchangeAddress:  dto.OpenExchangeAddress,
		PaymentLogAddress:    dto.PaymentLogAddress,
		State:                dto.State,
		Assets:               make(map[string]*ledger.Asset, len(dto.Assets)),
	}
	for name, a := range dto.Assets {
		asset, err := a.asset()
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", name, err)
		}
		ex.Assets[name] = asset
	}
	return ex, nil
}

func (dto assetDTO) asset() (*ledger.Asset, error) {
	a := &ledger.Asset{
		TotalShares: dto.TotalShares,
		Addresses:   dto.Addresses,
		State:       dto.State,
		Users:       make(map[string]*ledger.User, len(dto.Users)),
		Votes:       make(map[int64]*ledger.Vote, len(dto.Votes)),
	}
	for addr, u := range dto.Users {
		user := ledger.NewUser()
		user.Available = u.Available
		user.Total = u.Total
		user.OrderCounter = u.OrderCounter
		for i, opt := range u.Votes {
			user.Votes[i] = opt
		}
		a.Users[addr] = user
	}
	for i, v := range dto.Votes {
		stat := v.Stat
		if stat == nil {
			stat = make(map[int64]int64)
		}
		a.Votes[i] = &ledger.Vote{StartTime: v.StartTime, ExpireTime: v.ExpireTime, Stat: stat}
	}

	var err error
	if a.SellBook, err = restoreBook(a, dto.SellBook, ledger.Sell); err != nil {
		return nil, err
	}
	if a.BuyBook, err = restoreBook(a, dto.BuyBook, ledger.Buy); err != nil {
		return nil, err
	}
	return a, nil
}

// restoreBook rebuilds one side of the book and links each order into its
// owner's active orders.
func restoreBook(a *ledger.Asset, orders []orderDTO, side ledger.Side) ([]*ledger.Order, error) {
	var book []*ledger.Order
	for _, dto := range orders {
		if dto.Side != side {
			return nil, fmt.Errorf("order %s/%d: %s order in %s book", dto.Owner, dto.Index, dto.Side, side)
		}
		owner, ok := a.Users[dto.Owner]
		if !ok {
			return nil, fmt.Errorf("order %s/%d: owner has no record", dto.Owner, dto.Index)
		}
		if _, dup := owner.ActiveOrders[dto.Index]; dup {
			return nil, fmt.Errorf("order %s/%d: duplicate index", dto.Owner, dto.Index)
		}
		o := dto.order()
		owner.ActiveOrders[o.Index] = o
		book = append(book, o)
	}
	return book, nil
}

func (dto orderDTO) order() *ledger.Order {
	return &ledger.Order{
		Owner:             dto.Owner,
		Index:             dto.Index,
		Side:              dto.Side,
		UnitPrice:         dto.UnitPrice,
		VolumeRequested:   dto.VolumeRequested,
		VolumeUnfulfilled: dto.VolumeUnfulfilled,
		PlacedAt:          dto.PlacedAt,
		TxHash:            dto.TxHash,
		TradeHistory:      tradeItems(dto.TradeHistory),
	}
}

func tradeItems(dtos []tradeDTO) []ledger.TradeItem {
	if dtos == nil {
		return nil
	}
	out := make([]ledger.TradeItem, len(dtos))
	for i, t := range dtos {
		out[i] = ledger.TradeItem(t)
	}
	return out
}

func (dto requestDTO) request() (ledger.Request, error) {
	h := ledger.Header{
		Seq:             dto.Seq,
		Kind:            dto.Kind,
		TxHash:          dto.TxHash,
		Sender:          dto.Sender,
		ServiceAddress:  dto.ServiceAddress,
		AssetName:       dto.AssetName,
		BlockHeight:     dto.BlockHeight,
		BlockTime:       dto.BlockTime,
		Amount:          dto.Amount,
		Status:          dto.Status,
		Message:         dto.Message,
		RelatedPayments: dto.RelatedPayments,
	}
	if dto.Ignored {
		return &ledger.Ignored{Header: h}, nil
	}

	missing := fmt.Errorf("request %d: %s without details", dto.Seq, dto.Kind)
	switch dto.Kind {
	case ledger.KindCreateAsset:
		if dto.CreateAsset == nil {
			return nil, missing
		}
		return &ledger.CreateAsset{Header: h, FileID: dto.CreateAsset.FileID, NewAssetName: dto.CreateAsset.NewAssetName}, nil
	case ledger.KindExchangeStateControl:
		if dto.StateControl == nil {
			return nil, missing
		}
		return &ledger.ExchangeStateControl{Header: h, RequestedState: dto.StateControl.RequestedState}, nil
	case ledger.KindAssetStateControl:
		if dto.StateControl == nil {
			return nil, missing
		}
		return &ledger.AssetStateControl{Header: h, RequestedState: dto.StateControl.RequestedState}, nil
	case ledger.KindBuyLimitOrder:
		if dto.LimitOrder == nil {
			return nil, missing
		}
		return &ledger.BuyLimitOrder{LimitOrder: dto.LimitOrder.limitOrder(h)}, nil
	case ledger.KindSellLimitOrder:
		if dto.LimitOrder == nil {
			return nil, missing
		}
		return &ledger.SellLimitOrder{LimitOrder: dto.LimitOrder.limitOrder(h)}, nil
	case ledger.KindBuyMarketOrder:
		d := dto.MarketBuy
		if d == nil {
			return nil, missing
		}
		return &ledger.BuyMarketOrder{
			Header:                h,
			UserAddress:           d.UserAddress,
			TotalPriceRequested:   d.TotalPriceRequested,
			TotalPriceUnfulfilled: d.TotalPriceUnfulfilled,
			VolumeFulfilled:       d.VolumeFulfilled,
			Trades:                tradeItems(d.Trades),
		}, nil
	case ledger.KindSellMarketOrder:
		d := dto.MarketSell
		if d == nil {
			return nil, missing
		}
		return &ledger.SellMarketOrder{
			Header:            h,
			UserAddress:       d.UserAddress,
			VolumeRequested:   d.VolumeRequested,
			VolumeUnfulfilled: d.VolumeUnfulfilled,
			PriceTotalSold:    d.PriceTotalSold,
			Trades:            tradeItems(d.Trades),
		}, nil
	case ledger.KindClearOrder:
		d := dto.ClearOrder
		if d == nil {
			return nil, missing
		}
		req := &ledger.ClearOrder{Header: h, UserAddress: d.UserAddress, OrderIndex: d.OrderIndex}
		if d.Cleared != nil {
			req.Cleared = d.Cleared.order()
		}
		return req, nil
	case ledger.KindTransfer:
		if dto.Transfer == nil {
			return nil, missing
		}
		return &ledger.Transfer{Header: h, UserAddress: dto.Transfer.UserAddress, Targets: dto.Transfer.Targets}, nil
	case ledger.KindCreateVote:
		d := dto.CreateVote
		if d == nil {
			return nil, missing
		}
		return &ledger.CreateVote{Header: h, VoteIndex: d.VoteIndex, Days: d.Days, ExpireTime: d.ExpireTime}, nil
	case ledger.KindUserVote:
		d := dto.UserVote
		if d == nil {
			return nil, missing
		}
		return &ledger.UserVote{Header: h, VoteIndex: d.VoteIndex, Option: d.Option, Weight: d.Weight}, nil
	case ledger.KindPay:
		d := dto.Pay
		if d == nil {
			return nil, missing
		}
		return &ledger.Pay{Header: h, PayAmount: d.PayAmount, DividendPerShare: d.DividendPerShare, Change: d.Change}, nil
	default:
		return nil, fmt.Errorf("request %d: unknown kind %q", dto.Seq, dto.Kind)
	}
}

func (dto *limitOrderDTO) limitOrder(h ledger.Header) ledger.LimitOrder {
	return ledger.LimitOrder{
		Header:            h,
		UserAddress:       dto.UserAddress,
		OrderIndex:        dto.OrderIndex,
		VolumeRequested:   dto.VolumeRequested,
		VolumeUnfulfilled: dto.VolumeUnfulfilled,
		UnitPrice:         dto.UnitPrice,
		ImmediateTrades:   tradeItems(dto.ImmediateTrades),
	}
}
