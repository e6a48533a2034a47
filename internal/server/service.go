// Package server owns the replayed exchange state and drives it forward one
// block at a time.
//
// A Service has a single writer. ProcessNextBlock, Init, ResolvePending and
// DeleteChainedStateUpTo serialize on a writer lock that is held across
// block fetches and payment sends; the reference readers see through
// Snapshot is swapped under a separate lock that is never held across I/O.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/chainstate"
	"github.com/stealth-startup/openexchange/internal/engine"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/metrics"
	"github.com/stealth-startup/openexchange/internal/settlement"
	"github.com/stealth-startup/openexchange/internal/store"
)

// Result is the outcome of ProcessNextBlock.
type Result string

const (
	ResultAdvanced   Result = "advanced"
	ResultRolledBack Result = "rolled_back"
	ResultNoNewBlock Result = "no_new_block"
)

// Genesis fixes where the exchange chain starts.
type Genesis struct {
	Height    int64
	Hash      string
	Addresses ledger.ExchangeAddresses
}

// Service replays blocks into chained states and settles their payments.
type Service struct {
	writeMu sync.Mutex

	mu      sync.RWMutex
	current *chainstate.ChainedState

	book *settlement.Book

	store            *chainstate.Store
	source           chain.BlockSource
	assets           assets.Table
	genesis          Genesis
	minConfirmations int64
	sender           settlement.Sender
	dispatchOpts     []settlement.Option
	from, change     string
	metrics          *metrics.Metrics
	runID            string
	logger           *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithMinConfirmations sets how deep a block must be before it is replayed.
func WithMinConfirmations(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.minConfirmations = n
		}
	}
}

// WithPaymentAddresses sets the funding and change addresses of payments.
// Both default to the exchange's open address.
func WithPaymentAddresses(from, change string) Option {
	return func(s *Service) {
		s.from = from
		s.change = change
	}
}

// WithSettlementOptions passes options to the payment dispatcher.
func WithSettlementOptions(opts ...settlement.Option) Option {
	return func(s *Service) { s.dispatchOpts = append(s.dispatchOpts, opts...) }
}

// WithMetrics installs collectors. The metrics also record settlement.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a service over st. Payments go to sender.
func New(st *chainstate.Store, source chain.BlockSource, table assets.Table, sender settlement.Sender, genesis Genesis, opts ...Option) *Service {
	s := &Service{
		store:            st,
		source:           source,
		assets:           table,
		genesis:          genesis,
		minConfirmations: 1,
		sender:           sender,
		runID:            newRunID(),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.from == "" {
		s.from = genesis.Addresses.OpenExchange
	}
	if s.change == "" {
		s.change = genesis.Addresses.OpenExchange
	}
	s.logger = s.logger.With("run", s.runID)
	return s
}

// RunID identifies this service instance in logs.
func (s *Service) RunID() string { return s.runID }

// Snapshot returns the current chained state, or nil before the first load.
// The state must be treated as read-only.
func (s *Service) Snapshot() *chainstate.ChainedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) publish(st *chainstate.ChainedState) {
	s.mu.Lock()
	s.current = st
	s.mu.Unlock()
}

// Init creates the genesis state, an empty genesis payment record and the
// static data.
func (s *Service) Init(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.store.LatestHeight(ctx); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, chainstate.ErrEmpty) {
		return unavailable("init", err)
	}

	ex := ledger.NewExchange(s.genesis.Height, s.genesis.Hash, s.genesis.Addresses)
	if _, err := engine.BuildAddressBook(ex); err != nil {
		return err
	}
	st := chainstate.Genesis(ex)

	book := settlement.NewBook()
	if err := book.Open(s.genesis.Height, nil); err != nil {
		return err
	}
	if err := s.store.SavePaymentBook(ctx, book); err != nil {
		return unavailable("init", err)
	}
	static := chainstate.StaticData{
		GenesisHeight:     s.genesis.Height,
		GenesisHash:       s.genesis.Hash,
		AssetDescriptions: s.assets.Descriptions(),
	}
	if err := s.store.SaveStaticData(ctx, static); err != nil {
		return unavailable("init", err)
	}
	if err := s.store.Push(ctx, st); err != nil {
		return unavailable("init", err)
	}

	s.book = book
	s.publish(st)
	s.logger.Info("initialized exchange", "height", s.genesis.Height, "hash", s.genesis.Hash)
	return nil
}

// load brings the latest state and the payment book into memory.
func (s *Service) load(ctx context.Context) (*chainstate.ChainedState, error) {
	if cur := s.Snapshot(); cur != nil && s.book != nil {
		return cur, nil
	}
	st, err := s.store.Latest(ctx)
	switch {
	case errors.Is(err, chainstate.ErrEmpty):
		return nil, ErrNotInitialized
	case engine.IsConsistencyError(err):
		return nil, err
	case err != nil:
		return nil, unavailable("load state", err)
	}
	book, err := s.store.LoadPaymentBook(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load payment book: %w", ErrNotInitialized)
	case engine.IsConsistencyError(err):
		return nil, err
	case err != nil:
		return nil, unavailable("load payment book", err)
	}
	if _, ok := book.Record(st.Height()); !ok {
		return nil, &engine.ConsistencyError{
			Code:    engine.ErrCodePaymentRecordMismatch,
			Message: fmt.Sprintf("no payment record for processed height %d", st.Height()),
			Height:  st.Height(),
		}
	}
	s.book = book
	s.publish(st)
	return st, nil
}

// ProcessNextBlock advances the replay by at most one block.
//
// Unpaid obligations of the current height are paid first. The next block
// is fetched once it has enough confirmations. A block that does not link
// to the current state rolls the state back one height instead.
func (s *Service) ProcessNextBlock(ctx context.Context) (Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	height := cur.Height()

	if err := s.drain(ctx, height); err != nil {
		return "", err
	}

	tip, err := s.source.LatestHeight(ctx)
	if err != nil {
		return "", unavailable("fetch chain tip", err)
	}
	if tip < height+s.minConfirmations {
		s.logger.Debug("no confirmed block", "height", height, "tip", tip)
		return ResultNoNewBlock, nil
	}

	block, err := s.source.BlockAt(ctx, height+1)
	if err != nil {
		return "", unavailable("fetch block", err)
	}

	ex := cur.WorkingCopy()
	clock := engine.NewClockAt(cur.RequestSeq)
	requests, err := engine.ProcessBlock(ex, block, s.assets.Without(cur.UsedAssetInitIDs), clock)
	if errors.Is(err, engine.ErrChainMismatch) {
		return s.rollback(ctx, block)
	}
	if err != nil {
		return "", err
	}

	next := cur.Next(ex, requests, clock.Current())

	// obligations are durable before the state that produced them
	if err := s.book.Open(next.Height(), settlement.Aggregate(requests, ex.PaymentLogAddress)); err != nil {
		return "", err
	}
	if err := s.store.SavePaymentBook(ctx, s.book); err != nil {
		return "", unavailable("record payments", err)
	}
	if err := s.store.Push(ctx, next); err != nil {
		if engine.IsConsistencyError(err) {
			return "", err
		}
		return "", unavailable("push state", err)
	}
	s.publish(next)
	s.metrics.BlockProcessed(next.Height(), requests)
	s.logger.Info("processed block",
		"height", next.Height(),
		"hash", next.Hash(),
		"requests", len(requests))

	if err := s.drain(ctx, next.Height()); err != nil {
		return ResultAdvanced, err
	}
	return ResultAdvanced, nil
}

// rollback discards the latest state after block failed to link to it.
func (s *Service) rollback(ctx context.Context, block chain.Block) (Result, error) {
	cur := s.Snapshot()
	prev, err := s.store.Pop(ctx)
	switch {
	case errors.Is(err, chainstate.ErrRollbackExhausted):
		return "", &engine.ConsistencyError{
			Code:    engine.ErrCodeInvariantBroken,
			Message: fmt.Sprintf("reorg below retained history: %v", err),
			Height:  cur.Height(),
		}
	case engine.IsConsistencyError(err):
		return "", err
	case err != nil:
		return "", unavailable("roll back", err)
	}

	// a record with nothing sent is forgotten so the new chain can replace it
	if rec, ok := s.book.Record(cur.Height()); ok && len(rec.Transactions) == 0 && rec.Pending == nil {
		delete(s.book.Records, cur.Height())
		if err := s.store.SavePaymentBook(ctx, s.book); err != nil {
			return "", unavailable("roll back payments", err)
		}
	}

	s.publish(prev)
	s.metrics.RolledBack(prev.Height())
	s.logger.Warn("reorg detected, rolled back",
		"from", cur.Height(),
		"to", prev.Height(),
		"stale_hash", cur.Hash(),
		"new_previous_hash", block.PreviousHash)
	return ResultRolledBack, nil
}

func (s *Service) drain(ctx context.Context, height int64) error {
	rec, ok := s.book.Record(height)
	if !ok || rec.Settled() {
		return nil
	}
	opts := append([]settlement.Option{settlement.WithLogger(s.logger)}, s.dispatchOpts...)
	if s.metrics != nil {
		opts = append(opts, settlement.WithRecorder(s.metrics))
	}
	log := s.Snapshot().Exchange.PaymentLogAddress
	d := settlement.NewDispatcher(s.sender, s.store, log, s.from, s.change, opts...)
	if _, err := d.Drain(ctx, s.book, height); err != nil {
		var se *settlement.SendError
		if errors.As(err, &se) {
			return unavailable("send payments", err)
		}
		if engine.IsConsistencyError(err) {
			return err
		}
		return unavailable("settle payments", err)
	}
	return nil
}

// ResolvePending settles a batch a crashed run left pending at height.
// A non-empty sentHash records it as broadcast; otherwise it will be sent
// again by the next ProcessNextBlock.
func (s *Service) ResolvePending(ctx context.Context, height int64, sentHash string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.load(ctx); err != nil {
		return err
	}
	if err := settlement.ResolvePending(ctx, s.book, s.store, height, sentHash); err != nil {
		return err
	}
	s.logger.Info("resolved pending batch", "height", height, "sent", sentHash != "", "tx", sentHash)
	return nil
}

// DeleteChainedStateUpTo removes stored states at or below height. The
// latest state is kept. It returns how many were removed.
func (s *Service) DeleteChainedStateUpTo(ctx context.Context, height int64) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := s.store.DeleteUpTo(ctx, height)
	if errors.Is(err, chainstate.ErrEmpty) {
		return 0, ErrNotInitialized
	}
	if err != nil {
		return 0, unavailable("delete chained states", err)
	}
	return n, nil
}

// Heights lists the stored state heights.
func (s *Service) Heights(ctx context.Context) ([]int64, error) {
	return s.store.Heights(ctx)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
