package engine

import (
	"time"

	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/ledger"
)

// InitData resolves asset init ids to freshly instantiated assets.
// assets.Table implements it.
type InitData interface {
	Lookup(id int64) (name string, asset *ledger.Asset, ok bool)
}

// Instruction is one payment to a service address, with everything a
// handler needs to act on it.
type Instruction struct {
	Tx             chain.Transaction
	Sender         string
	ServiceAddress string
	Amount         int64

	BlockHeight int64
	BlockTime   time.Time

	Exchange  *ledger.Exchange
	AssetName string
	Asset     *ledger.Asset
	Init      InitData
}

// header starts the request header for this instruction.
func (in *Instruction) header(kind ledger.Kind) ledger.Header {
	return ledger.Header{
		Kind:           kind,
		TxHash:         in.Tx.Hash,
		Sender:         in.Sender,
		ServiceAddress: in.ServiceAddress,
		AssetName:      in.AssetName,
		BlockHeight:    in.BlockHeight,
		BlockTime:      in.BlockTime,
		Amount:         in.Amount,
		Status:         ledger.StatusNotProcessed,
	}
}

// Handler applies one instruction. The returned request is never nil when
// err is nil. err is reserved for consistency violations.
type Handler func(in *Instruction) (ledger.Request, error)

// handlers is the closed instruction set.
var handlers = map[ledger.Kind]Handler{
	ledger.KindCreateAsset:          createAsset,
	ledger.KindExchangeStateControl: exchangeStateControl,
	ledger.KindAssetStateControl:    assetStateControl,
	ledger.KindBuyLimitOrder:        limitBuy,
	ledger.KindSellLimitOrder:       limitSell,
	ledger.KindBuyMarketOrder:       marketBuy,
	ledger.KindSellMarketOrder:      marketSell,
	ledger.KindClearOrder:           clearOrder,
	ledger.KindTransfer:             transfer,
	ledger.KindCreateVote:           createVote,
	ledger.KindUserVote:             userVote,
	ledger.KindPay:                  pay,
}

// HandlerFor returns the handler for kind.
func HandlerFor(kind ledger.Kind) (Handler, bool) {
	h, ok := handlers[kind]
	return h, ok
}
