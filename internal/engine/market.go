package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// marketBuy spends the whole amount against the sell book, buying as many
// whole shares as the remaining budget affords at each price. Whatever is
// not spent is returned as change.
func marketBuy(in *Instruction) (ledger.Request, error) {
	req := &ledger.BuyMarketOrder{
		Header:              in.header(ledger.KindBuyMarketOrder),
		UserAddress:         in.Sender,
		TotalPriceRequested: in.Amount,
	}
	if in.Amount <= 0 {
		req.Reject(ledger.StatusFatal, ledger.MsgZeroTotalPrice)
		return req, nil
	}

	a := in.Asset
	a.User(in.Sender)
	remaining := in.Amount
	for {
		resting, ok := bestSell(a)
		if !ok || resting.UnitPrice > remaining {
			break
		}
		f := fill{
			resting: resting,
			price:   resting.UnitPrice,
			volume:  min(remaining/resting.UnitPrice, resting.VolumeUnfulfilled),
			at:      in.BlockTime,
		}
		item, err := execute(in.AssetName, a, f, in.Sender, resting.Owner, ledger.Buy)
		if err != nil {
			return nil, err
		}
		remaining -= f.price * f.volume
		req.VolumeFulfilled += f.volume
		req.Trades = append(req.Trades, item)
		req.AddPayment(resting.Owner, f.price*f.volume)
	}

	req.TotalPriceUnfulfilled = remaining
	req.AddPayment(in.Sender, remaining)
	req.Status = ledger.StatusOK
	return req, nil
}

// marketSell sells volume shares into the buy book. Shares that find no
// buyer go back to the seller's available balance. The amount sent is
// returned as change.
func marketSell(in *Instruction) (ledger.Request, error) {
	volume := in.Amount % OneHundredMillion
	req := &ledger.SellMarketOrder{
		Header:          in.header(ledger.KindSellMarketOrder),
		UserAddress:     in.Sender,
		VolumeRequested: volume,
	}
	if volume == 0 {
		req.Reject(ledger.StatusFatal, ledger.MsgZeroVolume)
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
	req.AddPayment(in.Sender, in.Amount)
	remaining := volume
	for remaining > 0 {
		resting, ok := bestBuy(a)
		if !ok {
			break
		}
		f := fill{
			resting: resting,
			price:   resting.UnitPrice,
			volume:  min(remaining, resting.VolumeUnfulfilled),
			at:      in.BlockTime,
		}
		item, err := execute(in.AssetName, a, f, resting.Owner, in.Sender, ledger.Sell)
		if err != nil {
			return nil, err
		}
		remaining -= f.volume
		req.PriceTotalSold += f.price * f.volume
		req.Trades = append(req.Trades, item)
		req.AddPayment(in.Sender, f.price*f.volume)
	}
	seller.Available += remaining

	req.VolumeUnfulfilled = remaining
	req.Status = ledger.StatusOK
	return req, nil
}
