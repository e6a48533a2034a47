package chainstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stealth-startup/openexchange/internal/settlement"
	"github.com/stealth-startup/openexchange/internal/store"
)

// Retention defaults.
const (
	RetainRecent       = 144
	CheckpointInterval = 144
)

// Named blob keys.
const (
	keyPaymentRecords = "payment_records"
	keyStaticData     = "static_data"
)

var (
	// ErrEmpty is returned when no state has been pushed yet.
	ErrEmpty = errors.New("no chained state")

	// ErrRollbackExhausted is returned by Pop when the height below the
	// latest is no longer retained.
	ErrRollbackExhausted = errors.New("rollback exhausted")
)

// Store persists chained states by height.
type Store struct {
	backend store.Backend
	logger  *slog.Logger
}

// NewStore wraps backend.
func NewStore(backend store.Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Push persists s as the new latest state and prunes heights that fell out
// of the rolling window.
func (s *Store) Push(ctx context.Context, st *ChainedState) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	if err := s.backend.PutSnapshot(ctx, st.Height(), data); err != nil {
		return err
	}

	heights, err := s.backend.SnapshotHeights(ctx)
	if err != nil {
		return err
	}
	prune := Prunable(heights, st.Height())
	if len(prune) == 0 {
		return nil
	}
	if err := s.backend.DeleteSnapshots(ctx, prune); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	s.logger.Debug("pruned snapshots", "count", len(prune), "latest", st.Height())
	return nil
}

// Prunable returns the heights that retention drops once latest is stored:
// those below the rolling window that are not checkpoints.
func Prunable(heights []int64, latest int64) []int64 {
	var out []int64
	for _, h := range heights {
		if h > latest-RetainRecent {
			break
		}
		if h%CheckpointInterval != 0 {
			out = append(out, h)
		}
	}
	return out
}

// Pop discards the latest state and returns the one below it, which must be
// exactly one height lower.
func (s *Store) Pop(ctx context.Context) (*ChainedState, error) {
	heights, err := s.backend.SnapshotHeights(ctx)
	if err != nil {
		return nil, err
	}
	n := len(heights)
	if n == 0 {
		return nil, ErrEmpty
	}
	latest := heights[n-1]
	if n == 1 || heights[n-2] != latest-1 {
		return nil, fmt.Errorf("%w: height %d is not retained", ErrRollbackExhausted, latest-1)
	}

	prev, err := s.Load(ctx, latest-1)
	if err != nil {
		return nil, err
	}
	if err := s.backend.DeleteSnapshots(ctx, []int64{latest}); err != nil {
		return nil, fmt.Errorf("pop height %d: %w", latest, err)
	}
	s.logger.Info("rolled back", "from", latest, "to", latest-1)
	return prev, nil
}

// Latest returns the most recently pushed state.
func (s *Store) Latest(ctx context.Context) (*ChainedState, error) {
	h, err := s.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, h)
}

// LatestHeight returns the height of the latest state.
func (s *Store) LatestHeight(ctx context.Context) (int64, error) {
	heights, err := s.backend.SnapshotHeights(ctx)
	if err != nil {
		return 0, err
	}
	if len(heights) == 0 {
		return 0, ErrEmpty
	}
	return heights[len(heights)-1], nil
}

// Load returns the state at height.
func (s *Store) Load(ctx context.Context, height int64) (*ChainedState, error) {
	data, err := s.backend.GetSnapshot(ctx, height)
	if err != nil {
		return nil, err
	}
	st, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if st.Height() != height {
		return nil, corrupt(height, "snapshot stored at %d holds height %d", height, st.Height())
	}
	return st, nil
}

// Heights lists retained heights ascending.
func (s *Store) Heights(ctx context.Context) ([]int64, error) {
	return s.backend.SnapshotHeights(ctx)
}

// DeleteUpTo removes every state at or below height, checkpoints included.
// The latest state is always kept. It returns the number removed.
func (s *Store) DeleteUpTo(ctx context.Context, height int64) (int, error) {
	heights, err := s.backend.SnapshotHeights(ctx)
	if err != nil {
		return 0, err
	}
	if len(heights) == 0 {
		return 0, ErrEmpty
	}
	latest := heights[len(heights)-1]

	var drop []int64
	for _, h := range heights {
		if h > height || h == latest {
			break
		}
		drop = append(drop, h)
	}
	if err := s.backend.DeleteSnapshots(ctx, drop); err != nil {
		return 0, err
	}
	s.logger.Info("deleted chained states", "up_to", height, "count", len(drop))
	return len(drop), nil
}

// StaticData is descriptive data kept outside the chained history.
type StaticData struct {
	GenesisHeight     int64             `json:"genesis_height"`
	GenesisHash       string            `json:"genesis_hash"`
	AssetDescriptions map[string]string `json:"asset_descriptions,omitempty"`
}

// SaveStaticData replaces the static data.
func (s *Store) SaveStaticData(ctx context.Context, d StaticData) error {
	return s.putJSON(ctx, keyStaticData, d)
}

// LoadStaticData returns the static data.
func (s *Store) LoadStaticData(ctx context.Context) (StaticData, error) {
	var d StaticData
	err := s.getJSON(ctx, keyStaticData, &d)
	return d, err
}

// SavePaymentBook implements settlement.Persister.
func (s *Store) SavePaymentBook(ctx context.Context, b *settlement.Book) error {
	return s.putJSON(ctx, keyPaymentRecords, b)
}

// LoadPaymentBook returns the persisted payment book.
func (s *Store) LoadPaymentBook(ctx context.Context) (*settlement.Book, error) {
	b := settlement.NewBook()
	if err := s.getJSON(ctx, keyPaymentRecords, b); err != nil {
		return nil, err
	}
	if b.Records == nil {
		b.Records = make(map[int64]*settlement.Record)
	}
	return b, nil
}

func (s *Store) putJSON(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.backend.PutNamed(ctx, name, data)
}

func (s *Store) getJSON(ctx context.Context, name string, v any) error {
	data, err := s.backend.GetNamed(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return corrupt(0, "%s: %v", name, err)
	}
	return nil
}
