package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// clearOrder cancels one of the sender's resting limit orders. The amount
// sent is always returned as change, whether or not the order is found. A
// cleared buy order refunds its unfilled notional; a cleared sell order
// releases its unfilled shares.
func clearOrder(in *Instruction) (ledger.Request, error) {
	req := &ledger.ClearOrder{
		Header:      in.header(ledger.KindClearOrder),
		UserAddress: in.Sender,
		OrderIndex:  in.Amount % OneHundredMillion,
	}
	req.AddPayment(in.Sender, in.Amount)

	a := in.Asset
	user, ok := a.Users[in.Sender]
	if !ok {
		req.Reject(ledger.StatusFatal, ledger.MsgUserDoesNotExist)
		return req, nil
	}
	if req.OrderIndex == 0 {
		req.Reject(ledger.StatusFatal, ledger.MsgIndexIsZero)
		return req, nil
	}
	order, ok := user.ActiveOrders[req.OrderIndex]
	if !ok {
		req.Reject(ledger.StatusNotAsExpected, ledger.MsgOrderDoesNotExist)
		return req, nil
	}

	if !removeOrder(a, order) {
		return nil, NewInvariantError(in.AssetName, "active order %s/%d is not on the book", in.Sender, order.Index)
	}
	delete(user.ActiveOrders, order.Index)

	switch order.Side {
	case ledger.Buy:
		req.AddPayment(in.Sender, order.VolumeUnfulfilled*order.UnitPrice)
	case ledger.Sell:
		user.Available += order.VolumeUnfulfilled
	}

	cleared := *order
	cleared.TradeHistory = append([]ledger.TradeItem(nil), order.TradeHistory...)
	req.Cleared = &cleared
	req.Status = ledger.StatusOK
	return req, nil
}
