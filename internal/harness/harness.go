package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/chainstate"
	"github.com/stealth-startup/openexchange/internal/engine"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/logging"
	"github.com/stealth-startup/openexchange/internal/server"
	"github.com/stealth-startup/openexchange/internal/settlement"
	"github.com/stealth-startup/openexchange/internal/store"
	"github.com/stealth-startup/openexchange/internal/testutil"
)

// maxSteps bounds the ProcessNextBlock calls made after one block is added.
const maxSteps = 1000

// Harness drives one scenario through a replay service.
type Harness struct {
	svc    *server.Service
	source *chain.MemorySource
	sender *settlement.DryRunSender
	chain  *testutil.Chain
	hashes map[int64]string
	sent   int
	halted bool
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store. Every block is added
// to the chain and then processed as far as one confirmation allows, which
// includes the block just added.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	table := make(assets.Table, len(scenario.Assets))
	for _, a := range scenario.Assets {
		tmpl := testutil.Template(a.ID, a.Name, a.Holders)
		tmpl.Description = a.Description
		table[a.ID] = tmpl
	}

	h := &Harness{
		source: chain.NewMemorySource(),
		sender: settlement.NewDryRunSender(),
		chain:  testutil.NewChain(),
		hashes: map[int64]string{testutil.GenesisHeight: testutil.GenesisHash},
	}
	states := chainstate.NewStore(store.NewMemory(), logging.Discard())
	h.svc = server.New(states, h.source, table, h.sender, server.Genesis{
		Height:    testutil.GenesisHeight,
		Hash:      testutil.GenesisHash,
		Addresses: testutil.ExchangeAddresses(),
	}, server.WithLogger(logging.Discard()))

	if err := h.svc.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Blocks {
		if err := h.addBlock(step, i); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if err := h.drive(ctx, result); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	result.Final = h.svc.Snapshot()
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) addBlock(step BlockStep, index int) error {
	if step.Fork > 0 {
		hash, ok := h.hashes[step.Fork]
		if !ok {
			return fmt.Errorf("fork at unknown height %d", step.Fork)
		}
		h.chain.Fork(step.Fork, hash)
		for height := range h.hashes {
			if height > step.Fork {
				delete(h.hashes, height)
			}
		}
	}

	txs := make([]chain.Transaction, len(step.Txs))
	for i, spec := range step.Txs {
		txs[i] = spec.Tx(fmt.Sprintf("b%d-tx%d", index, i))
	}
	b := h.chain.Next(txs...)
	h.hashes[b.Height] = b.Hash
	h.source.Put(b)
	return nil
}

// drive processes blocks until none is confirmed, recording what happened.
func (h *Harness) drive(ctx context.Context, result *Result) error {
	if h.halted {
		return nil
	}
	for range maxSteps {
		res, err := h.svc.ProcessNextBlock(ctx)
		if err != nil {
			h.recordPayments(result)
			var ce *engine.ConsistencyError
			if !errors.As(err, &ce) {
				return err
			}
			result.add(TraceEvent{Type: EventHalt, Height: ce.Height, Message: string(ce.Code)})
			h.halted = true
			return nil
		}

		switch res {
		case server.ResultNoNewBlock:
			return nil
		case server.ResultRolledBack:
			result.add(TraceEvent{Type: EventRollback, Height: h.svc.Snapshot().Height()})
		case server.ResultAdvanced:
			st := h.svc.Snapshot()
			result.add(TraceEvent{Type: EventBlock, Height: st.Height()})
			for _, req := range st.Requests {
				result.add(requestEvent(req))
			}
		}
		h.recordPayments(result)
	}
	return fmt.Errorf("no quiescence after %d steps", maxSteps)
}

// recordPayments appends the transactions sent since the last call.
func (h *Harness) recordPayments(result *Result) {
	sent := h.sender.Sent()
	for _, tx := range sent[h.sent:] {
		payments := maps.Clone(tx.Recipients)
		height := payments[testutil.PaymentLogAddress]
		delete(payments, testutil.PaymentLogAddress)
		result.add(TraceEvent{Type: EventPayment, Height: height, Payments: payments})
	}
	h.sent = len(sent)
}

func requestEvent(req ledger.Request) TraceEvent {
	head := req.Head()
	e := TraceEvent{
		Type:    EventRequest,
		Height:  head.BlockHeight,
		Seq:     head.Seq,
		Kind:    string(head.Kind),
		Asset:   head.AssetName,
		Sender:  head.Sender,
		Status:  string(head.Status),
		Message: string(head.Message),
	}
	if len(head.RelatedPayments) > 0 {
		e.Payments = maps.Clone(head.RelatedPayments)
	}
	return e
}
