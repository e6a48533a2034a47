package ledger

import (
	"fmt"
	"sort"
	"time"
)

// Kind names the instruction a request was decoded from.
type Kind string

const (
	KindCreateAsset          Kind = "create_asset"
	KindExchangeStateControl Kind = "exchange_state_control"
	KindAssetStateControl    Kind = "asset_state_control"
	KindBuyLimitOrder        Kind = "buy_limit_order"
	KindSellLimitOrder       Kind = "sell_limit_order"
	KindBuyMarketOrder       Kind = "buy_market_order"
	KindSellMarketOrder      Kind = "sell_market_order"
	KindClearOrder           Kind = "clear_order"
	KindTransfer             Kind = "transfer"
	KindCreateVote           Kind = "create_vote"
	KindUserVote             Kind = "user_vote"
	KindPay                  Kind = "pay"
)

// Status is the outcome of a request.
type Status string

const (
	StatusNotProcessed Status = "not_processed"
	StatusOK           Status = "ok"

	// StatusFatal marks a rejected instruction. The request changed nothing
	// except the payments its handler documents as refunds.
	StatusFatal Status = "fatal"

	// StatusNotAsExpected marks a legitimate instruction that had no effect,
	// such as clearing an order that is no longer active.
	StatusNotAsExpected Status = "not_as_expected"
)

// MessageCode explains a non-OK status.
type MessageCode string

const (
	MsgNone MessageCode = ""

	MsgIgnoredExchangePaused MessageCode = "ignored: exchange paused"
	MsgIgnoredAssetPaused    MessageCode = "ignored: asset paused"

	MsgInputAddressNotLegit    MessageCode = "INPUT_ADDRESS_NOT_LEGIT"
	MsgAssetAlreadyRegistered  MessageCode = "ASSET_ALREADY_REGISTERED"
	MsgAssetInitDataNotFound   MessageCode = "ASSET_INIT_DATA_NOT_FOUND"
	MsgStateNotSupported       MessageCode = "STATE_NOT_SUPPORTED"
	MsgCanNotReinitWhenRunning MessageCode = "CAN_NOT_REINIT_WHEN_RUNNING"
	MsgZeroVolume              MessageCode = "ZERO_VOLUME"
	MsgUnitPriceIllegit        MessageCode = "UNIT_PRICE_ILLEGIT"
	MsgZeroTotalPrice          MessageCode = "ZERO_TOTAL_PRICE"
	MsgUserDoesNotExist        MessageCode = "USER_DOES_NOT_EXIST"
	MsgNotEnoughAsset          MessageCode = "NOT_ENOUGH_ASSET"
	MsgIndexIsZero             MessageCode = "INDEX_IS_ZERO"
	MsgOrderDoesNotExist       MessageCode = "ORDER_DOES_NOT_EXIST"
	MsgNoValidTarget           MessageCode = "NO_VALID_TARGET"
	MsgSenderIsNotIssuer       MessageCode = "SENDER_IS_NOT_ISSUER"
	MsgLastZeroDays            MessageCode = "LAST_ZERO_DAYS"
	MsgTooManyDays             MessageCode = "TOO_MANY_DAYS"
	MsgSenderIsNotLegit        MessageCode = "SENDER_IS_NOT_LEGIT"
	MsgVoteClosed              MessageCode = "VOTE_CLOSED"
	MsgAlreadyVoted            MessageCode = "ALREADY_VOTED"
	MsgVoteDoesNotExist        MessageCode = "VOTE_DOES_NOT_EXIST"
)

// Request is one decoded instruction and its outcome.
//
// The set of implementations is closed: CreateAsset, ExchangeStateControl,
// AssetStateControl, BuyLimitOrder, SellLimitOrder, BuyMarketOrder,
// SellMarketOrder, ClearOrder, Transfer, CreateVote, UserVote, Pay and
// Ignored.
type Request interface {
	Head() *Header
	isRequest()
}

// Header carries the fields common to every request.
type Header struct {
	// Seq orders requests across the whole replay.
	Seq int64

	Kind           Kind
	TxHash         string
	Sender         string
	ServiceAddress string

	// AssetName is empty for exchange-level instructions.
	AssetName string

	BlockHeight int64
	BlockTime   time.Time

	// Amount is the satoshi value sent to ServiceAddress.
	Amount int64

	Status  Status
	Message MessageCode

	// RelatedPayments are the outgoing payment obligations this request
	// created, keyed by recipient address.
	RelatedPayments map[string]int64
}

// Head returns the header itself so that every request type embedding
// Header satisfies Request.
func (h *Header) Head() *Header { return h }

// AddPayment adds amount to the obligation owed to addr. Zero amounts are
// dropped; negative amounts are a programming error.
func (h *Header) AddPayment(addr string, amount int64) {
	if amount < 0 {
		panic(fmt.Sprintf("negative payment %d to %s", amount, addr))
	}
	if amount == 0 {
		return
	}
	if h.RelatedPayments == nil {
		h.RelatedPayments = make(map[string]int64)
	}
	h.RelatedPayments[addr] += amount
}

// Reject marks the request with a non-OK status.
func (h *Header) Reject(status Status, msg MessageCode) {
	h.Status = status
	h.Message = msg
}

// PaymentAddresses returns the recipients of RelatedPayments sorted.
func (h *Header) PaymentAddresses() []string {
	addrs := make([]string, 0, len(h.RelatedPayments))
	for a := range h.RelatedPayments {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}

// CreateAsset registers a new asset from pre-loaded init data.
type CreateAsset struct {
	Header
	FileID       int64
	NewAssetName string
}

// ExchangeStateControl pauses or resumes the whole exchange.
type ExchangeStateControl struct {
	Header
	RequestedState int64
}

// AssetStateControl pauses, resumes or reinitializes one asset.
type AssetStateControl struct {
	Header
	RequestedState int64
}

// LimitOrder holds the fields shared by buy and sell limit orders.
type LimitOrder struct {
	Header
	UserAddress       string
	OrderIndex        int64
	VolumeRequested   int64
	VolumeUnfulfilled int64
	UnitPrice         int64

	// ImmediateTrades are the fills that happened on placement.
	ImmediateTrades []TradeItem
}

type BuyLimitOrder struct{ LimitOrder }

type SellLimitOrder struct{ LimitOrder }

type BuyMarketOrder struct {
	Header
	UserAddress           string
	TotalPriceRequested   int64
	TotalPriceUnfulfilled int64
	VolumeFulfilled       int64
	Trades                []TradeItem
}

type SellMarketOrder struct {
	Header
	UserAddress       string
	VolumeRequested   int64
	VolumeUnfulfilled int64
	PriceTotalSold    int64
	Trades            []TradeItem
}

// ClearOrder cancels one of the sender's resting limit orders.
type ClearOrder struct {
	Header
	UserAddress string
	OrderIndex  int64

	// Cleared is a copy of the order as it was when removed from the book.
	Cleared *Order
}

// Transfer moves shares from the sender to the other outputs of the
// transaction.
type Transfer struct {
	Header
	UserAddress string
	Targets     map[string]int64
}

type CreateVote struct {
	Header
	VoteIndex  int64
	Days       int64
	ExpireTime time.Time
}

type UserVote struct {
	Header
	VoteIndex int64
	Option    int64
	Weight    int64
}

// Pay distributes a dividend to every shareholder.
type Pay struct {
	Header
	PayAmount        int64
	DividendPerShare int64
	Change           int64
}

// Ignored records an instruction that arrived while the exchange or its
// asset was paused. Header.Kind names the instruction it would have been.
type Ignored struct {
	Header
}

func (*CreateAsset) isRequest()          {}
func (*ExchangeStateControl) isRequest() {}
func (*AssetStateControl) isRequest()    {}
func (*BuyLimitOrder) isRequest()        {}
func (*SellLimitOrder) isRequest()       {}
func (*BuyMarketOrder) isRequest()       {}
func (*SellMarketOrder) isRequest()      {}
func (*ClearOrder) isRequest()           {}
func (*Transfer) isRequest()             {}
func (*CreateVote) isRequest()           {}
func (*UserVote) isRequest()             {}
func (*Pay) isRequest()                  {}
func (*Ignored) isRequest()              {}

// TradesOf returns the fills recorded on a request, if its kind trades.
func TradesOf(r Request) []TradeItem {
	switch req := r.(type) {
	case *BuyLimitOrder:
		return req.ImmediateTrades
	case *SellLimitOrder:
		return req.ImmediateTrades
	case *BuyMarketOrder:
		return req.Trades
	case *SellMarketOrder:
		return req.Trades
	}
	return nil
}
