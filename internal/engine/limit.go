package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// limitBuy places a buy limit order.
//
// Refunds: on acceptance the volume part of the amount is returned as
// change, and every fill refunds (limit - execution price) * volume. A
// malformed amount is rejected without refund.
func limitBuy(in *Instruction) (ledger.Request, error) {
	req := &ledger.BuyLimitOrder{LimitOrder: ledger.LimitOrder{
		Header:      in.header(ledger.KindBuyLimitOrder),
		UserAddress: in.Sender,
	}}
	volume, price, msg := DecodeLimitOrder(in.Amount)
	req.VolumeRequested = volume
	req.UnitPrice = price
	if msg != ledger.MsgNone {
		req.Reject(ledger.StatusFatal, msg)
		return req, nil
	}

	a := in.Asset
	buyer := a.User(in.Sender)
	buyer.OrderCounter++
	order := newOrder(in, ledger.Buy, buyer.OrderCounter, price, volume)
	req.OrderIndex = order.Index
	req.AddPayment(in.Sender, volume)

	for order.VolumeUnfulfilled > 0 {
		resting, ok := bestSell(a)
		if !ok || resting.UnitPrice > price {
			break
		}
		f := fill{
			resting: resting,
			price:   resting.UnitPrice,
			volume:  min(order.VolumeUnfulfilled, resting.VolumeUnfulfilled),
			at:      in.BlockTime,
		}
		item, err := execute(in.AssetName, a, f, in.Sender, resting.Owner, ledger.Buy)
		if err != nil {
			return nil, err
		}
		order.VolumeUnfulfilled -= f.volume
		order.TradeHistory = append(order.TradeHistory, item)
		req.AddPayment(in.Sender, (price-f.price)*f.volume)
		req.AddPayment(resting.Owner, f.price*f.volume)
	}

	rest(a, buyer, order)
	finishLimit(&req.LimitOrder, order)
	return req, nil
}

// limitSell places a sell limit order. The seller's shares are locked on
// placement.
//
// Refunds: on acceptance the whole amount is returned as change, and every
// fill pays execution price * volume to the seller. Rejections are not
// refunded.
func limitSell(in *Instruction) (ledger.Request, error) {
	req := &ledger.SellLimitOrder{LimitOrder: ledger.LimitOrder{
		Header:      in.header(ledger.KindSellLimitOrder),
		UserAddress: in.Sender,
	}}
	volume, price, msg := DecodeLimitOrder(in.Amount)
	req.VolumeRequested = volume
	req.UnitPrice = price
	if msg != ledger.MsgNone {
		req.Reject(ledger.StatusFatal, msg)
		return req, nil
	}

	a := in.Asset
	seller, ok := a.Users[in.Sender]
	if !ok {
		req.Reject(ledger.StatusFatal, ledger.MsgUserDoesNotExist)
		return req, nil
	}
	if seller.Available < volume {
		req.Reject(ledger.StatusFatal, ledger.MsgNotEnoughAsset)
		return req, nil
	}

	seller.Available -= volume
	seller.OrderCounter++
	order := newOrder(in, ledger.Sell, seller.OrderCounter, price, volume)
	req.OrderIndex = order.Index
	req.AddPayment(in.Sender, in.Amount)

	for order.VolumeUnfulfilled > 0 {
		resting, ok := bestBuy(a)
		if !ok || resting.UnitPrice < price {
			break
		}
		f := fill{
			resting: resting,
			price:   resting.UnitPrice,
			volume:  min(order.VolumeUnfulfilled, resting.VolumeUnfulfilled),
			at:      in.BlockTime,
		}
		item, err := execute(in.AssetName, a, f, resting.Owner, in.Sender, ledger.Sell)
		if err != nil {
			return nil, err
		}
		order.VolumeUnfulfilled -= f.volume
		order.TradeHistory = append(order.TradeHistory, item)
		req.AddPayment(in.Sender, f.price*f.volume)
	}

	rest(a, seller, order)
	finishLimit(&req.LimitOrder, order)
	return req, nil
}

func newOrder(in *Instruction, side ledger.Side, index, price, volume int64) *ledger.Order {
	return &ledger.Order{
		Owner:             in.Sender,
		Index:             index,
		Side:              side,
		UnitPrice:         price,
		VolumeRequested:   volume,
		VolumeUnfulfilled: volume,
		PlacedAt:          in.BlockTime,
		TxHash:            in.Tx.Hash,
	}
}

// rest puts the unfilled remainder of order on the book.
func rest(a *ledger.Asset, owner *ledger.User, order *ledger.Order) {
	if order.VolumeUnfulfilled == 0 {
		return
	}
	placeOrder(a, order)
	owner.ActiveOrders[order.Index] = order
}

func finishLimit(req *ledger.LimitOrder, order *ledger.Order) {
	req.VolumeUnfulfilled = order.VolumeUnfulfilled
	if len(order.TradeHistory) > 0 {
		req.ImmediateTrades = append([]ledger.TradeItem(nil), order.TradeHistory...)
	}
	req.Status = ledger.StatusOK
}
