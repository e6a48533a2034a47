package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// FuncSender adapts a callback to the Sender interface.
type FuncSender func(ctx context.Context, recipients map[string]int64, from, change string, fee int64) (string, []byte, error)

// Send delegates to the callback.
func (f FuncSender) Send(ctx context.Context, recipients map[string]int64, from, change string, fee int64) (string, []byte, error) {
	return f(ctx, recipients, from, change, fee)
}

// SentTx is one transaction accepted by a DryRunSender.
type SentTx struct {
	Hash       string
	Recipients map[string]int64
	From       string
	Change     string
	Fee        int64
}

// DryRunSender accepts every transaction without broadcasting it. The hash
// it returns is derived from the outputs and a counter, so repeated runs
// over the same chain produce the same hashes.
type DryRunSender struct {
	mu   sync.Mutex
	sent []SentTx
}

// NewDryRunSender returns an empty dry-run sender.
func NewDryRunSender() *DryRunSender {
	return &DryRunSender{}
}

func (s *DryRunSender) Send(ctx context.Context, recipients map[string]int64, from, change string, fee int64) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// map keys marshal sorted
	payload, err := json.Marshal(struct {
		N          int              `json:"n"`
		Recipients map[string]int64 `json:"recipients"`
		From       string           `json:"from"`
		Change     string           `json:"change"`
		Fee        int64            `json:"fee"`
	}{len(s.sent), recipients, from, change, fee})
	if err != nil {
		return "", nil, fmt.Errorf("dry run: %w", err)
	}
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	s.sent = append(s.sent, SentTx{
		Hash:       hash,
		Recipients: maps.Clone(recipients),
		From:       from,
		Change:     change,
		Fee:        fee,
	})
	return hash, payload, nil
}

// Sent returns the transactions accepted so far.
func (s *DryRunSender) Sent() []SentTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentTx(nil), s.sent...)
}
