package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/testutil"
)

const (
	holder = "holder"
	alice  = "alice"
	bob    = "bob"
	carol  = "carol"
)

// fixture is a running exchange with one running asset named TEST.
type fixture struct {
	ex    *ledger.Exchange
	addrs ledger.AssetAddresses
	init  assets.Table
	clock *testutil.BlockClock
	seq   *Clock
	txn   int
}

func newFixture(t *testing.T, holders map[string]int64) *fixture {
	t.Helper()
	ex := testutil.NewExchange()
	ex.State = ledger.Running
	tmpl := testutil.Template(1, "TEST", holders)
	testutil.RunningAsset(ex, tmpl)
	return &fixture{
		ex:    ex,
		addrs: tmpl.Addresses,
		init:  assets.Table{},
		clock: testutil.NewBlockClock(),
		seq:   NewClock(),
	}
}

func (f *fixture) asset() *ledger.Asset {
	return f.ex.Assets["TEST"]
}

func (f *fixture) user(addr string) *ledger.User {
	return f.asset().Users[addr]
}

// block applies one block holding txs.
func (f *fixture) block(t *testing.T, txs ...chain.Transaction) []ledger.Request {
	t.Helper()
	b := testutil.NextAfter(f.ex, f.clock, txs...)
	reqs, err := ProcessBlock(f.ex, b, f.init, f.seq)
	require.NoError(t, err)
	return reqs
}

// send applies a block with a single payment and returns its request.
func (f *fixture) send(t *testing.T, sender, addr string, amount int64) ledger.Request {
	t.Helper()
	f.txn++
	reqs := f.block(t, testutil.Tx(txHash(f.txn), sender, testutil.Pay(addr, amount)))
	require.Len(t, reqs, 1)
	return reqs[0]
}

func txHash(n int) string {
	return "tx" + string(rune('a'+n%26)) + string(rune('a'+n/26%26))
}

func limit(volume, price int64) int64 {
	return EncodeLimitOrder(volume, price)
}

func requireStatus(t *testing.T, req ledger.Request, status ledger.Status, msg ledger.MessageCode) {
	t.Helper()
	require.Equal(t, status, req.Head().Status, "message %q", req.Head().Message)
	require.Equal(t, msg, req.Head().Message)
}
