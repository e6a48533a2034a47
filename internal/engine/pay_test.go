package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/testutil"
)

func TestPay_DistributesDividend(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 60000, alice: 30000, bob: 10000})

	req := f.send(t, f.addrs.Issuer, f.addrs.Pay, 1000000)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)

	p := req.(*ledger.Pay)
	assert.Equal(t, int64(10), p.DividendPerShare)
	assert.Equal(t, int64(0), p.Change)
	assert.Equal(t, map[string]int64{holder: 600000, alice: 300000, bob: 100000}, req.Head().RelatedPayments)

	var sum int64
	for _, v := range req.Head().RelatedPayments {
		sum += v
	}
	assert.Equal(t, int64(1000000), sum)
}

func TestPay_ChangeToIssuer(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 3})

	req := f.send(t, f.addrs.Issuer, f.addrs.Pay, 10)
	assert.Equal(t, map[string]int64{holder: 9, f.addrs.Issuer: 1}, req.Head().RelatedPayments)
}

func TestPay_OnlyIssuer(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 3})

	req := f.send(t, holder, f.addrs.Pay, 10)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgSenderIsNotIssuer)
	assert.Empty(t, req.Head().RelatedPayments)
}

func TestPay_BrokenShareTableStopsReplay(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 3})
	f.user(holder).Total = 2

	b := testutil.NextAfter(f.ex, f.clock, testutil.Tx("p", f.addrs.Issuer, chain.Output{Address: f.addrs.Pay, Amount: 10}))
	_, err := ProcessBlock(f.ex, b, f.init, f.seq)
	require.Error(t, err)

	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeInvariantBroken, ce.Code)
	assert.Equal(t, b.Height, ce.Height)
}
