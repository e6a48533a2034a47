package chainstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/engine"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/settlement"
	"github.com/stealth-startup/openexchange/internal/store"
	"github.com/stealth-startup/openexchange/internal/testutil"
)

var equateEmpty = cmpopts.EquateEmpty()

// busyState replays a few blocks that touch every request variant.
func busyState(t *testing.T) *ChainedState {
	t.Helper()
	tmpl := testutil.Template(1, "TEST", map[string]int64{"holder": 1000, "alice": 200})
	gold := testutil.Template(2, "GOLD", map[string]int64{"bob": 10})
	table := assets.Table{1: tmpl, 2: gold}
	a := tmpl.Addresses
	open := testutil.OpenExchangeAddress

	st := Genesis(testutil.NewExchange())
	chain := testutil.NewChain()
	seq := engine.NewClock()
	blocks := [][]testutil.TxSpec{
		{
			{Sender: open, To: testutil.StateControlAddress, Amount: engine.StateResume},
			{Sender: open, To: testutil.CreateAssetAddress, Amount: 1},
			{Sender: open, To: testutil.CreateAssetAddress, Amount: 2},
			{Sender: open, To: a.StateControl, Amount: engine.StateResume},
			{Sender: "bob", To: gold.Addresses.LimitSell, Amount: engine.EncodeLimitOrder(1, 10000)},
		},
		{
			{Sender: "holder", To: a.LimitSell, Amount: engine.EncodeLimitOrder(10, 20000)},
			{Sender: "holder", To: a.LimitSell, Amount: engine.EncodeLimitOrder(5, 30000)},
			{Sender: "alice", To: a.LimitBuy, Amount: engine.EncodeLimitOrder(3, 10000)},
			{Sender: "carol", To: a.MarketBuy, Amount: 100000},
			{Sender: "alice", To: a.MarketSell, Amount: 1},
		},
		{
			{Sender: "holder", To: a.ClearOrder, Amount: 2},
			{Sender: "holder", To: a.Transfer, Amount: 1, Extra: map[string]int64{"dave": 7}},
			{Sender: a.Issuer, To: a.CreateVote, Amount: 2},
			{Sender: "holder", To: a.Vote, Amount: 1001},
			{Sender: a.Issuer, To: a.Pay, Amount: 120000},
		},
	}
	for _, specs := range blocks {
		b := chain.Next(testutil.Txs(specs...)...)
		ex := st.WorkingCopy()
		reqs, err := engine.ProcessBlock(ex, b, table.Without(st.UsedAssetInitIDs), seq)
		require.NoError(t, err)
		st = st.Next(ex, reqs, seq.Current())
	}
	require.NotEmpty(t, st.Exchange.Assets["TEST"].SellBook)
	require.NotEmpty(t, st.RecentTrades["TEST"])
	return st
}

func TestCodec_RoundTrip(t *testing.T) {
	st := busyState(t)

	data, err := Encode(st)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	if diff := cmp.Diff(st, got, equateEmpty); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// resting orders are shared between the book and their owner
	a := got.Exchange.Assets["TEST"]
	for _, o := range a.SellBook {
		assert.Same(t, o, a.Users[o.Owner].ActiveOrders[o.Index])
	}

	again, err := Encode(got)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestCodec_Corruption(t *testing.T) {
	st := busyState(t)
	data, err := Encode(st)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)/2] }},
		{"flipped body byte", func(b []byte) []byte {
			i := len(b) - 40
			b[i] ^= 0x01
			return b
		}},
		{"version", func(b []byte) []byte {
			return []byte(replaceOnce(string(b), `"version":1`, `"version":9`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.mutate(append([]byte(nil), data...)))
			var ce *engine.ConsistencyError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, engine.ErrCodeSnapshotCorrupt, ce.Code)
		})
	}
}

func TestCodec_UnencodableStateIsConsistencyError(t *testing.T) {
	st := busyState(t)
	a := st.Exchange.Assets["TEST"]
	a.Votes[9] = &ledger.Vote{
		StartTime:  testutil.GenesisTime,
		ExpireTime: time.Date(10001, time.January, 1, 0, 0, 0, 0, time.UTC),
		Stat:       map[int64]int64{},
	}

	_, err := Encode(st)
	var ce *engine.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, engine.ErrCodeSnapshotEncode, ce.Code)
	assert.Equal(t, st.Height(), ce.Height)
	assert.NotNil(t, errors.Unwrap(err))

	s := NewStore(store.NewMemory(), nil)
	err = s.Push(context.Background(), st)
	assert.True(t, engine.IsConsistencyError(err))
	_, err = s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func replaceOnce(s, old, new string) string {
	for i := 0; i+len(old) <= len(s); i++ {
		if s[i:i+len(old)] == old {
			return s[:i] + new + s[i+len(old):]
		}
	}
	return s
}

func TestNext_TracksInitIDsAndTrades(t *testing.T) {
	st := busyState(t)
	assert.Equal(t, []int64{1, 2}, st.UsedAssetInitIDs)
	assert.Equal(t, int64(15), st.RequestSeq)
	assert.Len(t, st.Requests, 5)
	assert.NotEmpty(t, st.RecentTrades["TEST"])
	assert.NotContains(t, st.RecentTrades, "GOLD")
}

func TestNext_CapsRecentTrades(t *testing.T) {
	st := Genesis(testutil.NewExchange())
	var trades []ledger.TradeItem
	for i := 0; i < RecentTradesLimit+20; i++ {
		trades = append(trades, ledger.TradeItem{UnitPrice: int64(i)})
	}
	req := &ledger.BuyMarketOrder{Header: ledger.Header{AssetName: "TEST"}, Trades: trades}

	next := st.Next(st.WorkingCopy(), []ledger.Request{req}, 1)
	got := next.RecentTrades["TEST"]
	require.Len(t, got, RecentTradesLimit)
	assert.Equal(t, int64(20), got[0].UnitPrice)
	assert.Empty(t, st.RecentTrades)
}

func TestDepth(t *testing.T) {
	a := &ledger.Asset{
		SellBook: []*ledger.Order{
			{UnitPrice: 10000, VolumeUnfulfilled: 2},
			{UnitPrice: 10000, VolumeUnfulfilled: 3},
			{UnitPrice: 20000, VolumeUnfulfilled: 1},
		},
		BuyBook: []*ledger.Order{{UnitPrice: 5000, VolumeUnfulfilled: 4}},
	}
	bids, asks := Depth(a)
	assert.Equal(t, []PriceLevel{{UnitPrice: 5000, Volume: 4, Orders: 1}}, bids)
	assert.Equal(t, []PriceLevel{{UnitPrice: 10000, Volume: 5, Orders: 2}, {UnitPrice: 20000, Volume: 1, Orders: 1}}, asks)
}

func stateAt(h int64) *ChainedState {
	ex := testutil.NewExchange()
	ex.ProcessedBlockHeight = h
	return Genesis(ex)
}

func TestStore_Retention(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemory(), nil)
	for h := int64(1); h <= 300; h++ {
		require.NoError(t, s.Push(ctx, stateAt(h)))
	}

	heights, err := s.Heights(ctx)
	require.NoError(t, err)
	require.Len(t, heights, 145)
	assert.Equal(t, int64(144), heights[0])
	assert.Equal(t, int64(157), heights[1])
	assert.Equal(t, int64(300), heights[len(heights)-1])

	latest, err := s.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), latest)
}

func TestPrunable(t *testing.T) {
	assert.Empty(t, Prunable([]int64{1, 2, 3}, 3))
	assert.Equal(t, []int64{1, 2}, Prunable([]int64{1, 2, 144, 145, 146}, 146))
	assert.Empty(t, Prunable([]int64{144, 288}, 290))
}

func TestStore_PopOneHeight(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemory(), nil)
	for h := int64(10); h <= 12; h++ {
		require.NoError(t, s.Push(ctx, stateAt(h)))
	}

	prev, err := s.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), prev.Height())

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), latest.Height())

	_, err = s.Pop(ctx)
	require.NoError(t, err)
	_, err = s.Pop(ctx)
	require.ErrorIs(t, err, ErrRollbackExhausted)
	h, err := s.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), h)
}

func TestStore_PopAcrossGap(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemory(), nil)
	require.NoError(t, s.Push(ctx, stateAt(144)))
	require.NoError(t, s.Push(ctx, stateAt(300)))

	_, err := s.Pop(ctx)
	require.ErrorIs(t, err, ErrRollbackExhausted)
}

func TestStore_Empty(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemory(), nil)

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = s.Pop(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = s.DeleteUpTo(ctx, 5)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestStore_DeleteUpToKeepsLatest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemory(), nil)
	for h := int64(140); h <= 150; h++ {
		require.NoError(t, s.Push(ctx, stateAt(h)))
	}

	n, err := s.DeleteUpTo(ctx, 145)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	heights, err := s.Heights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{146, 147, 148, 149, 150}, heights)

	n, err = s.DeleteUpTo(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	heights, err = s.Heights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{150}, heights)
}

func TestStore_LoadDetectsMisplacedSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemory()
	data, err := Encode(stateAt(5))
	require.NoError(t, err)
	require.NoError(t, backend.PutSnapshot(ctx, 6, data))

	_, err = NewStore(backend, nil).Load(ctx, 6)
	assert.True(t, engine.IsConsistencyError(err))
}

func TestStore_NamedBlobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemory(), nil)

	_, err := s.LoadPaymentBook(ctx)
	require.True(t, errors.Is(err, store.ErrNotFound))

	book := settlement.NewBook()
	require.NoError(t, book.Open(5, map[string]int64{"a": 1}))
	book.Records[5].Pending = &settlement.Batch{ID: "b", Recipients: map[string]int64{"a": 1}}
	require.NoError(t, s.SavePaymentBook(ctx, book))

	got, err := s.LoadPaymentBook(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(book, got, equateEmpty); diff != "" {
		t.Errorf("payment book mismatch (-want +got):\n%s", diff)
	}

	sd := StaticData{GenesisHeight: 1, GenesisHash: "h", AssetDescriptions: map[string]string{"TEST": "test asset"}}
	require.NoError(t, s.SaveStaticData(ctx, sd))
	gotSD, err := s.LoadStaticData(ctx)
	require.NoError(t, err)
	assert.Equal(t, sd, gotSD)
}
