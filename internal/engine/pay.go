package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// pay distributes the amount as a dividend. Each shareholder is owed
// total * dividend-per-share; the indivisible remainder goes back to the
// issuer. Only the issuer may pay. A share table that no longer adds up to
// total_shares is a consistency violation.
func pay(in *Instruction) (ledger.Request, error) {
	a := in.Asset
	req := &ledger.Pay{
		Header:    in.header(ledger.KindPay),
		PayAmount: in.Amount,
	}
	if in.Sender != a.Addresses.Issuer {
		req.Reject(ledger.StatusFatal, ledger.MsgSenderIsNotIssuer)
		return req, nil
	}
	if outstanding := a.SharesOutstanding(); outstanding != a.TotalShares {
		err := NewInvariantError(in.AssetName, "total_shares %d but users hold %d", a.TotalShares, outstanding)
		err.Height = in.BlockHeight
		return nil, err
	}

	req.DividendPerShare, req.Change = SplitDividend(in.Amount, a.TotalShares)
	req.AddPayment(in.Sender, req.Change)
	for addr, u := range a.Users {
		req.AddPayment(addr, u.Total*req.DividendPerShare)
	}
	req.Status = ledger.StatusOK
	return req, nil
}
