package server

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/chainstate"
	"github.com/stealth-startup/openexchange/internal/engine"
	"github.com/stealth-startup/openexchange/internal/logging"
	"github.com/stealth-startup/openexchange/internal/metrics"
	"github.com/stealth-startup/openexchange/internal/settlement"
	"github.com/stealth-startup/openexchange/internal/store"
	"github.com/stealth-startup/openexchange/internal/testutil"
)

type env struct {
	source *chain.MemorySource
	sender *settlement.DryRunSender
	states *chainstate.Store
	chain  *testutil.Chain
	table  assets.Table
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tmpl := testutil.Template(1, "TEST", map[string]int64{"holder": 1000})
	tmpl.Description = "Test shares"
	return &env{
		source: chain.NewMemorySource(),
		sender: settlement.NewDryRunSender(),
		states: chainstate.NewStore(store.NewMemory(), logging.Discard()),
		chain:  testutil.NewChain(),
		table:  assets.Table{1: tmpl},
	}
}

func (e *env) service(sender settlement.Sender, opts ...Option) *Service {
	if sender == nil {
		sender = e.sender
	}
	genesis := Genesis{
		Height:    testutil.GenesisHeight,
		Hash:      testutil.GenesisHash,
		Addresses: testutil.ExchangeAddresses(),
	}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(e.states, e.source, e.table, sender, genesis, opts...)
}

// push appends a block built from txs to the source.
func (e *env) push(txs ...chain.Transaction) chain.Block {
	b := e.chain.Next(txs...)
	e.source.Put(b)
	return b
}

func setupTxs() []chain.Transaction {
	a := testutil.Addresses("TEST")
	open := testutil.OpenExchangeAddress
	return testutil.Txs(
		testutil.TxSpec{Sender: open, To: testutil.StateControlAddress, Amount: engine.StateResume},
		testutil.TxSpec{Sender: open, To: testutil.CreateAssetAddress, Amount: 1},
		testutil.TxSpec{Sender: open, To: a.StateControl, Amount: engine.StateResume},
	)
}

func tradeTxs() []chain.Transaction {
	a := testutil.Addresses("TEST")
	return testutil.Txs(
		testutil.TxSpec{Sender: "holder", To: a.LimitSell, Amount: engine.EncodeLimitOrder(10, 20000)},
		testutil.TxSpec{Sender: "alice", To: a.LimitBuy, Amount: engine.EncodeLimitOrder(4, 20000)},
	)
}

func process(t *testing.T, svc *Service, want Result) {
	t.Helper()
	got, err := svc.ProcessNextBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func paymentBook(t *testing.T, e *env) *settlement.Book {
	t.Helper()
	book, err := e.states.LoadPaymentBook(context.Background())
	require.NoError(t, err)
	return book
}

func TestService_InitAndAdvance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)

	require.NoError(t, svc.Init(ctx))
	require.ErrorIs(t, svc.Init(ctx), ErrAlreadyInitialized)
	assert.Equal(t, int64(testutil.GenesisHeight), svc.Snapshot().Height())

	process(t, svc, ResultNoNewBlock)

	e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultNoNewBlock)

	st := svc.Snapshot()
	assert.Equal(t, int64(testutil.GenesisHeight+2), st.Height())
	assert.Equal(t, []int64{1}, st.UsedAssetInitIDs)
	assert.Equal(t, int64(5), st.RequestSeq)

	sent := e.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]int64{
		"holder":                    200010 + 80000,
		"alice":                     4,
		testutil.PaymentLogAddress: testutil.GenesisHeight + 2,
	}, sent[0].Recipients)
	assert.Equal(t, testutil.OpenExchangeAddress, sent[0].From)
	assert.Equal(t, testutil.OpenExchangeAddress, sent[0].Change)

	book := paymentBook(t, e)
	assert.Equal(t, []int64{testutil.GenesisHeight, testutil.GenesisHeight + 1, testutil.GenesisHeight + 2}, book.Heights())
	assert.Empty(t, book.Unsettled())
	rec, _ := book.Record(testutil.GenesisHeight + 1)
	assert.Empty(t, rec.Transactions, "control instructions owe nothing")
}

func TestService_LongVoteDoesNotStallReplay(t *testing.T) {
	e := newEnv(t)
	svc := e.service(nil)
	require.NoError(t, svc.Init(context.Background()))

	a := testutil.Addresses("TEST")
	e.push(setupTxs()...)
	e.push(testutil.Txs(testutil.TxSpec{Sender: a.Issuer, To: a.CreateVote, Amount: 3_000_000})...)
	e.push()
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultNoNewBlock)

	st := svc.Snapshot()
	assert.Equal(t, int64(testutil.GenesisHeight+3), st.Height())
	assert.Empty(t, st.Exchange.Assets["TEST"].Votes)
}

func TestService_NotInitialized(t *testing.T) {
	e := newEnv(t)
	_, err := e.service(nil).ProcessNextBlock(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestService_MinConfirmations(t *testing.T) {
	e := newEnv(t)
	svc := e.service(nil, WithMinConfirmations(3))
	require.NoError(t, svc.Init(context.Background()))

	e.push(setupTxs()...)
	e.push()
	process(t, svc, ResultNoNewBlock)

	e.push()
	process(t, svc, ResultAdvanced)
	assert.Equal(t, int64(testutil.GenesisHeight+1), svc.Snapshot().Height())
	process(t, svc, ResultNoNewBlock)
}

func TestService_ReorgRollsBackOneHeight(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)
	require.NoError(t, svc.Init(ctx))

	b1 := e.push(setupTxs()...)
	stale := e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)

	// the same trades land in a different block 2
	e.chain.Fork(b1.Height, b1.Hash)
	fork := e.push(tradeTxs()...)
	e.push()
	require.NotEqual(t, stale.Hash, fork.Hash)

	process(t, svc, ResultRolledBack)
	assert.Equal(t, b1.Height, svc.Snapshot().Height())
	latest, err := e.states.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, b1.Height, latest)

	process(t, svc, ResultAdvanced)
	assert.Equal(t, fork.Hash, svc.Snapshot().Hash())
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultNoNewBlock)

	// obligations matched, so nothing is paid twice
	assert.Len(t, e.sender.Sent(), 1)
}

func TestService_ReorgWithDifferentPaymentsStops(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)
	require.NoError(t, svc.Init(ctx))

	b1 := e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)

	e.chain.Fork(b1.Height, b1.Hash)
	a := testutil.Addresses("TEST")
	e.push(testutil.Txs(testutil.TxSpec{Sender: "holder", To: a.LimitSell, Amount: engine.EncodeLimitOrder(1, 50000)})...)
	e.push()

	process(t, svc, ResultRolledBack)
	_, err := svc.ProcessNextBlock(ctx)
	var ce *engine.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, engine.ErrCodePaymentRecordMismatch, ce.Code)
	assert.ErrorIs(t, err, settlement.ErrRecordMismatch)
	assert.Equal(t, b1.Height, svc.Snapshot().Height())
}

func TestService_ReorgForgetsUnsentRecord(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)
	require.NoError(t, svc.Init(ctx))

	b1 := e.push(setupTxs()...)
	e.push()
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)

	e.chain.Fork(b1.Height, b1.Hash)
	e.push(tradeTxs()...)
	e.push()

	process(t, svc, ResultRolledBack)
	_, ok := paymentBook(t, e).Record(b1.Height + 1)
	assert.False(t, ok)

	process(t, svc, ResultAdvanced)
	assert.Len(t, e.sender.Sent(), 1)
}

func TestService_RollbackBelowGenesisIsConsistencyError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)
	require.NoError(t, svc.Init(ctx))

	e.chain.Fork(testutil.GenesisHeight, "not-genesis")
	e.push()

	_, err := svc.ProcessNextBlock(ctx)
	require.True(t, engine.IsConsistencyError(err), "got %v", err)
}

func TestService_SendFailureResumesBeforeNextBlock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	offline := true
	sender := settlement.FuncSender(func(ctx context.Context, r map[string]int64, from, change string, fee int64) (string, []byte, error) {
		if offline {
			return "", nil, fmt.Errorf("wallet offline: %w", settlement.ErrNotBroadcast)
		}
		return e.sender.Send(ctx, r, from, change, fee)
	})
	svc := e.service(sender)
	require.NoError(t, svc.Init(ctx))

	e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)

	res, err := svc.ProcessNextBlock(ctx)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, ResultAdvanced, res)
	assert.Equal(t, int64(testutil.GenesisHeight+2), svc.Snapshot().Height())
	assert.Equal(t, []int64{testutil.GenesisHeight + 2}, paymentBook(t, e).Unsettled())

	// a block arriving meanwhile waits for the unpaid height
	e.push()
	_, err = svc.ProcessNextBlock(ctx)
	require.True(t, IsUnavailable(err))
	assert.Equal(t, int64(testutil.GenesisHeight+2), svc.Snapshot().Height())

	offline = false
	process(t, svc, ResultAdvanced)
	assert.Empty(t, paymentBook(t, e).Unsettled())
	assert.Len(t, e.sender.Sent(), 1)
}

func TestService_AmbiguousSendFailureWaitsForOperator(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	calls := 0
	timeout := settlement.FuncSender(func(context.Context, map[string]int64, string, string, int64) (string, []byte, error) {
		calls++
		return "", nil, fmt.Errorf("rpc timeout")
	})
	svc := e.service(timeout)
	require.NoError(t, svc.Init(ctx))
	e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)

	height := int64(testutil.GenesisHeight + 2)
	_, err := svc.ProcessNextBlock(ctx)
	require.ErrorIs(t, err, settlement.ErrPendingBatch)
	assert.False(t, IsUnavailable(err))

	_, err = svc.ProcessNextBlock(ctx)
	require.ErrorIs(t, err, settlement.ErrPendingBatch)
	assert.Equal(t, 1, calls)

	require.NoError(t, svc.ResolvePending(ctx, height, ""))
	resumed := e.service(nil)
	process(t, resumed, ResultNoNewBlock)
	assert.Empty(t, paymentBook(t, e).Unsettled())
	assert.Len(t, e.sender.Sent(), 1)
}

func TestService_RestartLoadsPersistedState(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.service(nil).Init(ctx))
	e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, e.service(nil), ResultAdvanced)

	restarted := e.service(nil)
	assert.Nil(t, restarted.Snapshot())
	process(t, restarted, ResultAdvanced)
	assert.Equal(t, int64(5), restarted.Snapshot().RequestSeq)
	assert.Equal(t, int64(4), restarted.Snapshot().Requests[0].Head().Seq)
}

func TestService_PendingBatchNeedsOperator(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	failing := settlement.FuncSender(func(context.Context, map[string]int64, string, string, int64) (string, []byte, error) {
		return "", nil, fmt.Errorf("wallet offline: %w", settlement.ErrNotBroadcast)
	})
	svc := e.service(failing)
	require.NoError(t, svc.Init(ctx))
	e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)
	_, err := svc.ProcessNextBlock(ctx)
	require.True(t, IsUnavailable(err))

	// a crash between persisting the batch and hearing back from the wallet
	height := int64(testutil.GenesisHeight + 2)
	book := paymentBook(t, e)
	rec, _ := book.Record(height)
	rec.Pending = &settlement.Batch{ID: "batch-1", Recipients: maps.Clone(rec.Unpaid)}
	require.NoError(t, e.states.SavePaymentBook(ctx, book))

	restarted := e.service(nil)
	_, err = restarted.ProcessNextBlock(ctx)
	var ce *engine.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, engine.ErrCodePendingBatch, ce.Code)
	assert.Empty(t, e.sender.Sent())

	require.NoError(t, restarted.ResolvePending(ctx, height, "feedface"))
	process(t, restarted, ResultNoNewBlock)
	assert.Empty(t, e.sender.Sent())

	got, rec, err := restarted.InspectPayments(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, height, got)
	require.Len(t, rec.Transactions, 1)
	assert.Equal(t, "feedface", rec.Transactions[0].Hash)
	assert.True(t, rec.Settled())
}

func TestService_Metrics(t *testing.T) {
	e := newEnv(t)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	svc := e.service(nil, WithMetrics(m))
	require.NoError(t, svc.Init(context.Background()))
	e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)
	assert.Len(t, e.sender.Sent(), 1)
}

func TestService_DeleteChainedStateUpTo(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)

	_, err := svc.DeleteChainedStateUpTo(ctx, 1)
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, svc.Init(ctx))
	e.push(setupTxs()...)
	e.push()
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)

	n, err := svc.DeleteChainedStateUpTo(ctx, testutil.GenesisHeight+5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	heights, err := svc.Heights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{testutil.GenesisHeight + 2}, heights)
}

func TestService_SnapshotDuringProcessing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)
	require.NoError(t, svc.Init(ctx))
	e.push(setupTxs()...)
	for i := 0; i < 20; i++ {
		e.push(tradeTxs()...)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := int64(0)
		for {
			select {
			case <-done:
				return
			default:
			}
			h := svc.Snapshot().Height()
			if h < last {
				t.Errorf("height went back from %d to %d", last, h)
				return
			}
			last = h
		}
	}()
	for i := 0; i < 21; i++ {
		process(t, svc, ResultAdvanced)
	}
	close(done)
	wg.Wait()
}

func TestService_Inspect(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.service(nil)

	_, err := svc.Inspect(ctx, 0)
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, svc.Init(ctx))
	e.push(setupTxs()...)
	e.push(tradeTxs()...)
	process(t, svc, ResultAdvanced)
	process(t, svc, ResultAdvanced)

	dump, err := svc.Inspect(ctx, 0)
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "inspect_latest", []byte(dump))

	genesis, err := svc.Inspect(ctx, testutil.GenesisHeight)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(genesis, "height 240000\n"))
	assert.NotContains(t, genesis, "asset TEST")

	_, err = svc.Inspect(ctx, 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDumpPayments(t *testing.T) {
	rec := &settlement.Record{
		Paid:         map[string]int64{"b": 2, "a": 1},
		Unpaid:       map[string]int64{"c": 3},
		Transactions: []settlement.Transaction{{Hash: "tx1", Recipients: map[string]int64{"a": 1, "b": 2, "log": 7}}},
	}
	var b strings.Builder
	require.NoError(t, DumpPayments(&b, 7, rec))
	assert.Equal(t, `height 7
settled false
paid
  a 1
  b 2
unpaid
  c 3
transactions
  tx1 3 outputs
`, b.String())
}
