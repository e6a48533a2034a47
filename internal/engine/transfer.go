package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// transfer moves shares to every other output of the transaction. Each
// target receives its output value mod 10^8 shares. Outputs to the service
// address itself or back to the sender are not targets. The amount sent is
// returned as change on success.
func transfer(in *Instruction) (ledger.Request, error) {
	req := &ledger.Transfer{
		Header:      in.header(ledger.KindTransfer),
		UserAddress: in.Sender,
	}

	var total int64
	for _, out := range in.Tx.Outputs {
		if out.Address == in.ServiceAddress || out.Address == in.Sender {
			continue
		}
		n := out.Amount % OneHundredMillion
		if n == 0 {
			continue
		}
		if req.Targets == nil {
			req.Targets = make(map[string]int64)
		}
		req.Targets[out.Address] += n
		total += n
	}
	if len(req.Targets) == 0 {
		req.Reject(ledger.StatusFatal, ledger.MsgNoValidTarget)
		return req, nil
	}

	a := in.Asset
	sender, ok := a.Users[in.Sender]
	if !ok {
		req.Reject(ledger.StatusFatal, ledger.MsgUserDoesNotExist)
		return req, nil
	}
	if sender.Available < total {
		req.Reject(ledger.StatusFatal, ledger.MsgNotEnoughAsset)
		return req, nil
	}

	sender.Available -= total
	sender.Total -= total
	for addr, n := range req.Targets {
		u := a.User(addr)
		u.Available += n
		u.Total += n
	}
	req.AddPayment(in.Sender, in.Amount)
	req.Status = ledger.StatusOK
	return req, nil
}
