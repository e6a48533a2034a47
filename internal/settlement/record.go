package settlement

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/stealth-startup/openexchange/internal/engine"
	"github.com/stealth-startup/openexchange/internal/ledger"
)

// MaxBatch is the most recipients one payment transaction pays, not
// counting the payment-log entry.
const MaxBatch = 50

// ErrRecordMismatch is returned by Book.Open when a height is opened again
// with obligations different from those already recorded.
var ErrRecordMismatch = errors.New("payment record mismatch")

// Transaction is one broadcast payment.
type Transaction struct {
	Hash       string           `json:"hash"`
	Payload    []byte           `json:"payload,omitempty"`
	Recipients map[string]int64 `json:"recipients"`
}

// Batch is a set of recipients handed to the sender as one transaction.
type Batch struct {
	ID         string           `json:"id"`
	Recipients map[string]int64 `json:"recipients"`
}

// Record tracks the obligations of one block height.
type Record struct {
	Paid         map[string]int64 `json:"paid"`
	Unpaid       map[string]int64 `json:"unpaid"`
	Transactions []Transaction    `json:"transactions,omitempty"`

	// Pending is the batch being sent, if any.
	Pending *Batch `json:"pending,omitempty"`
}

func newRecord(obligations map[string]int64) *Record {
	return &Record{
		Paid:   make(map[string]int64),
		Unpaid: maps.Clone(obligations),
	}
}

// Obligations returns paid and unpaid amounts merged. Pending recipients
// are still counted as unpaid.
func (r *Record) Obligations() map[string]int64 {
	out := make(map[string]int64, len(r.Paid)+len(r.Unpaid))
	for addr, v := range r.Paid {
		out[addr] += v
	}
	for addr, v := range r.Unpaid {
		out[addr] += v
	}
	return out
}

// Settled reports whether every obligation has been paid.
func (r *Record) Settled() bool {
	return len(r.Unpaid) == 0 && r.Pending == nil
}

// Book holds the payment records of every processed height.
type Book struct {
	Records map[int64]*Record `json:"records"`
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{Records: make(map[int64]*Record)}
}

// Open records the obligations of height as unpaid. Opening a height that
// already has a record succeeds when the obligations are the same, which is
// what a retry after a crash between Stage A and the chain-state push looks
// like. Different obligations mean the replay is not deterministic and are
// reported as a consistency violation.
func (b *Book) Open(height int64, obligations map[string]int64) error {
	if obligations == nil {
		obligations = map[string]int64{}
	}
	existing, ok := b.Records[height]
	if !ok {
		b.Records[height] = newRecord(obligations)
		return nil
	}
	if maps.Equal(existing.Obligations(), obligations) {
		return nil
	}
	return &engine.ConsistencyError{
		Code:    engine.ErrCodePaymentRecordMismatch,
		Message: fmt.Sprintf("%v: height %d already records different obligations", ErrRecordMismatch, height),
		Height:  height,
		Cause:   ErrRecordMismatch,
	}
}

// Record returns the record of height.
func (b *Book) Record(height int64) (*Record, bool) {
	r, ok := b.Records[height]
	return r, ok
}

// Heights lists recorded heights in ascending order.
func (b *Book) Heights() []int64 {
	return slices.Sorted(maps.Keys(b.Records))
}

// Unsettled lists, ascending, the heights that still owe payments.
func (b *Book) Unsettled() []int64 {
	var out []int64
	for _, h := range b.Heights() {
		if !b.Records[h].Settled() {
			out = append(out, h)
		}
	}
	return out
}

// Aggregate sums the related payments of requests per recipient. Payments
// to the payment-log address are dropped since that address only ever
// receives the height marker.
func Aggregate(requests []ledger.Request, logAddress string) map[string]int64 {
	out := make(map[string]int64)
	for _, req := range requests {
		for addr, v := range req.Head().RelatedPayments {
			if addr == logAddress {
				continue
			}
			out[addr] += v
		}
	}
	return out
}
