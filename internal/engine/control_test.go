package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/testutil"
)

func TestCreateAsset(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 100})
	gold := testutil.Template(2, "GOLD", map[string]int64{alice: 10})
	f.init = assets.Table{2: gold}

	req := f.send(t, testutil.OpenExchangeAddress, testutil.CreateAssetAddress, 2)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	assert.Equal(t, "GOLD", req.(*ledger.CreateAsset).NewAssetName)
	assert.Equal(t, int64(2), req.(*ledger.CreateAsset).FileID)
	assert.Empty(t, req.Head().RelatedPayments)

	require.Contains(t, f.ex.Assets, "GOLD")
	a := f.ex.Assets["GOLD"]
	assert.Equal(t, ledger.Paused, a.State)
	assert.Equal(t, int64(10), a.Users[alice].Total)
	assert.Equal(t, []int64{2}, ConsumedInitIDs([]ledger.Request{req}))
}

func TestCreateAsset_Rejections(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 100})
	f.init = assets.Table{
		2: testutil.Template(2, "GOLD", map[string]int64{alice: 10}),
		3: testutil.Template(3, "TEST", map[string]int64{alice: 10}),
	}

	req := f.send(t, holder, testutil.CreateAssetAddress, 2)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgInputAddressNotLegit)

	req = f.send(t, testutil.OpenExchangeAddress, testutil.CreateAssetAddress, 9)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgAssetInitDataNotFound)

	req = f.send(t, testutil.OpenExchangeAddress, testutil.CreateAssetAddress, 3)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgAssetAlreadyRegistered)
	assert.Equal(t, int64(100), f.user(holder).Total)

	assert.Empty(t, ConsumedInitIDs([]ledger.Request{req}))
	assert.NotContains(t, f.ex.Assets, "GOLD")
}

func TestCreateAsset_SameIDTwiceInOneBlock(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 100})
	gold := testutil.Template(2, "GOLD", map[string]int64{alice: 10})
	f.init = assets.Table{2: gold}

	reqs := f.block(t,
		testutil.Tx("c1", testutil.OpenExchangeAddress, testutil.Pay(testutil.CreateAssetAddress, 2)),
		testutil.Tx("c2", testutil.OpenExchangeAddress, testutil.Pay(testutil.CreateAssetAddress, 2)),
		testutil.Tx("c3", alice, testutil.Pay(gold.Addresses.LimitSell, limit(1, 10000))),
	)
	require.Len(t, reqs, 3)
	requireStatus(t, reqs[0], ledger.StatusOK, ledger.MsgNone)
	requireStatus(t, reqs[1], ledger.StatusFatal, ledger.MsgAssetInitDataNotFound)

	// the new asset's addresses are routed within the same block
	require.IsType(t, &ledger.Ignored{}, reqs[2])
	requireStatus(t, reqs[2], ledger.StatusFatal, ledger.MsgIgnoredAssetPaused)
	assert.Equal(t, ledger.KindSellLimitOrder, reqs[2].Head().Kind)
	assert.Equal(t, "GOLD", reqs[2].Head().AssetName)
}

func TestExchangeStateControl(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 100})

	req := f.send(t, testutil.OpenExchangeAddress, testutil.StateControlAddress, StatePause)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	assert.Equal(t, ledger.Paused, f.ex.State)

	req = f.send(t, testutil.OpenExchangeAddress, testutil.StateControlAddress, OneHundredMillion+StateResume)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	assert.Equal(t, int64(StateResume), req.(*ledger.ExchangeStateControl).RequestedState)
	assert.Equal(t, ledger.Running, f.ex.State)

	req = f.send(t, testutil.OpenExchangeAddress, testutil.StateControlAddress, 7)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgStateNotSupported)

	req = f.send(t, holder, testutil.StateControlAddress, StatePause)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgInputAddressNotLegit)
	assert.Equal(t, ledger.Running, f.ex.State)
}

func TestAssetStateControl_PauseResume(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 100})

	req := f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, StatePause)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	assert.Equal(t, ledger.Paused, f.asset().State)

	req = f.send(t, holder, f.addrs.LimitSell, limit(1, 10000))
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgIgnoredAssetPaused)
	assert.Empty(t, f.asset().SellBook)

	req = f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, StateResume)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	assert.Equal(t, ledger.Running, f.asset().State)

	req = f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, 5)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgStateNotSupported)

	req = f.send(t, f.addrs.Issuer, f.addrs.StateControl, StatePause)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgInputAddressNotLegit)
}

func TestAssetStateControl_Reinit(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 100})
	f.init = assets.Table{
		23: testutil.Template(23, "TEST", map[string]int64{bob: 5}),
		24: testutil.Template(24, "GOLD", map[string]int64{bob: 5}),
	}
	f.send(t, holder, f.addrs.LimitSell, limit(10, 10000))

	req := f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, 233)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgCanNotReinitWhenRunning)
	assert.Empty(t, ConsumedInitIDs([]ledger.Request{req}))
	assert.Contains(t, f.asset().Users, holder)

	f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, StatePause)

	req = f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, 253)
	requireStatus(t, req, ledger.StatusFatal, ledger.MsgAssetInitDataNotFound)

	req = f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, 233)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	id, ok := ReinitID(req.(*ledger.AssetStateControl))
	require.True(t, ok)
	assert.Equal(t, int64(23), id)
	assert.Equal(t, []int64{23}, ConsumedInitIDs([]ledger.Request{req}))

	a := f.asset()
	assert.Equal(t, ledger.Paused, a.State)
	assert.Equal(t, int64(5), a.TotalShares)
	assert.Empty(t, a.SellBook)
	assert.NotContains(t, a.Users, holder)
	assert.Equal(t, int64(5), a.Users[bob].Available)
}

func TestAssetStateControl_ReinitKeepsAssetName(t *testing.T) {
	f := newFixture(t, map[string]int64{holder: 100})
	gold := testutil.Template(24, "GOLD", map[string]int64{bob: 5})
	f.init = assets.Table{24: gold}

	f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, StatePause)
	req := f.send(t, testutil.OpenExchangeAddress, f.addrs.StateControl, 243)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	assert.Equal(t, []int64{24}, ConsumedInitIDs([]ledger.Request{req}))

	require.Len(t, f.ex.Assets, 1)
	require.NotContains(t, f.ex.Assets, "GOLD")
	a := f.ex.Assets["TEST"]
	assert.Equal(t, int64(5), a.TotalShares)
	assert.Equal(t, gold.Addresses, a.Addresses)
	assert.Equal(t, int64(5), a.Users[bob].Total)

	// the asset now answers on the addresses of the installed init data
	req = f.send(t, testutil.OpenExchangeAddress, gold.Addresses.StateControl, StateResume)
	requireStatus(t, req, ledger.StatusOK, ledger.MsgNone)
	assert.Equal(t, "TEST", req.Head().AssetName)
	assert.Equal(t, ledger.Running, a.State)
}
