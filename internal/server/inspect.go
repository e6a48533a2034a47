package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/stealth-startup/openexchange/internal/chainstate"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/settlement"
	"github.com/stealth-startup/openexchange/internal/store"
)

// Inspect returns a human-readable dump of the state at height, or of the
// latest state when height is zero.
func (s *Service) Inspect(ctx context.Context, height int64) (string, error) {
	var (
		st  *chainstate.ChainedState
		err error
	)
	if height == 0 {
		st, err = s.store.Latest(ctx)
	} else {
		st, err = s.store.Load(ctx, height)
	}
	switch {
	case errors.Is(err, chainstate.ErrEmpty):
		return "", ErrNotInitialized
	case errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("inspect height %d: %w", height, err)
	case err != nil:
		return "", err
	}

	static, err := s.store.LoadStaticData(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	var b strings.Builder
	if err := Dump(&b, st, static); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Dump writes st as text.
func Dump(w io.Writer, st *chainstate.ChainedState, static chainstate.StaticData) error {
	ex := st.Exchange
	var b strings.Builder

	fmt.Fprintf(&b, "height %d\n", ex.ProcessedBlockHeight)
	fmt.Fprintf(&b, "hash %s\n", ex.ProcessedBlockHash)
	fmt.Fprintf(&b, "state %s\n", ex.State)
	fmt.Fprintf(&b, "request seq %d\n", st.RequestSeq)
	fmt.Fprintf(&b, "used init ids %v\n", st.UsedAssetInitIDs)
	fmt.Fprintf(&b, "addresses state_control=%s create_asset=%s open=%s payment_log=%s\n",
		ex.StateControlAddress, ex.CreateAssetAddress, ex.OpenExchangeAddress, ex.PaymentLogAddress)

	for _, name := range ex.AssetNames() {
		a := ex.Assets[name]
		fmt.Fprintf(&b, "\nasset %s %s\n", name, a.State)
		if d := static.AssetDescriptions[name]; d != "" {
			fmt.Fprintf(&b, "  description %s\n", d)
		}
		fmt.Fprintf(&b, "  total shares %d\n", a.TotalShares)
		fmt.Fprintf(&b, "  issuer %s\n", a.Addresses.Issuer)

		b.WriteString("  holders\n")
		for _, addr := range slices.Sorted(maps.Keys(a.Users)) {
			u := a.Users[addr]
			if u.Total == 0 && len(u.ActiveOrders) == 0 {
				continue
			}
			fmt.Fprintf(&b, "    %s total=%d available=%d orders=%d\n", addr, u.Total, u.Available, len(u.ActiveOrders))
		}

		bids, asks := chainstate.Depth(a)
		b.WriteString("  asks\n")
		for _, l := range slices.Backward(asks) {
			fmt.Fprintf(&b, "    %d x %d (%d orders)\n", l.UnitPrice, l.Volume, l.Orders)
		}
		b.WriteString("  bids\n")
		for _, l := range bids {
			fmt.Fprintf(&b, "    %d x %d (%d orders)\n", l.UnitPrice, l.Volume, l.Orders)
		}

		if len(a.Votes) > 0 {
			b.WriteString("  votes\n")
			for _, idx := range slices.Sorted(maps.Keys(a.Votes)) {
				v := a.Votes[idx]
				fmt.Fprintf(&b, "    #%d expires %s %s\n", idx, v.ExpireTime.UTC().Format(time.RFC3339), formatStat(v.Stat))
			}
		}

		if trades := st.RecentTrades[name]; len(trades) > 0 {
			b.WriteString("  recent trades\n")
			for _, t := range trades {
				fmt.Fprintf(&b, "    %s %s %d x %d\n", t.Timestamp.UTC().Format(time.RFC3339), t.Initiator, t.UnitPrice, t.Volume)
			}
		}
	}

	if len(st.Requests) > 0 {
		b.WriteString("\nrequests\n")
		for _, req := range st.Requests {
			h := req.Head()
			fmt.Fprintf(&b, "  %d %s %s", h.Seq, h.Kind, h.Sender)
			if h.AssetName != "" {
				fmt.Fprintf(&b, " %s", h.AssetName)
			}
			fmt.Fprintf(&b, " %d %s", h.Amount, h.Status)
			if h.Message != ledger.MsgNone {
				fmt.Fprintf(&b, " %s", h.Message)
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatStat(stat map[int64]int64) string {
	parts := make([]string, 0, len(stat))
	for _, opt := range slices.Sorted(maps.Keys(stat)) {
		parts = append(parts, fmt.Sprintf("%d:%d", opt, stat[opt]))
	}
	if len(parts) == 0 {
		return "no ballots"
	}
	return strings.Join(parts, " ")
}

// InspectPayments returns the payment record of height. With height zero it
// returns the latest record that sent a transaction.
func (s *Service) InspectPayments(ctx context.Context, height int64) (int64, *settlement.Record, error) {
	book, err := s.store.LoadPaymentBook(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil, ErrNotInitialized
	}
	if err != nil {
		return 0, nil, err
	}
	if height != 0 {
		rec, ok := book.Record(height)
		if !ok {
			return 0, nil, fmt.Errorf("payments at %d: %w", height, settlement.ErrNoRecord)
		}
		return height, rec, nil
	}
	heights := book.Heights()
	for _, h := range slices.Backward(heights) {
		if rec := book.Records[h]; len(rec.Transactions) > 0 {
			return h, rec, nil
		}
	}
	return 0, nil, settlement.ErrNoRecord
}

// Unsettled lists the heights that still owe payments.
func (s *Service) Unsettled(ctx context.Context) ([]int64, error) {
	book, err := s.store.LoadPaymentBook(ctx)
	if err != nil {
		return nil, err
	}
	return book.Unsettled(), nil
}

// DumpPayments writes rec as text.
func DumpPayments(w io.Writer, height int64, rec *settlement.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "height %d\n", height)
	fmt.Fprintf(&b, "settled %t\n", rec.Settled())
	if rec.Pending != nil {
		fmt.Fprintf(&b, "pending batch %s (%d recipients)\n", rec.Pending.ID, len(rec.Pending.Recipients))
	}
	b.WriteString("paid\n")
	for _, addr := range slices.Sorted(maps.Keys(rec.Paid)) {
		fmt.Fprintf(&b, "  %s %d\n", addr, rec.Paid[addr])
	}
	b.WriteString("unpaid\n")
	for _, addr := range slices.Sorted(maps.Keys(rec.Unpaid)) {
		fmt.Fprintf(&b, "  %s %d\n", addr, rec.Unpaid[addr])
	}
	b.WriteString("transactions\n")
	for _, tx := range rec.Transactions {
		fmt.Fprintf(&b, "  %s %d outputs\n", tx.Hash, len(tx.Recipients))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
