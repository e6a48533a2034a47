package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/stealth-startup/openexchange/internal/engine"
)

// ErrPendingBatch is returned by Drain when a batch was left pending.
var ErrPendingBatch = errors.New("payment batch pending")

// ErrNotBroadcast is wrapped by a Sender error when the transaction is
// known not to have left the wallet. Any other Sender error leaves it
// unknown whether the batch was paid.
var ErrNotBroadcast = errors.New("payment not broadcast")

// ErrNoRecord is returned when a height has no payment record.
var ErrNoRecord = errors.New("no payment record")

// Sender broadcasts one payment transaction.
type Sender interface {
	Send(ctx context.Context, recipients map[string]int64, from, change string, fee int64) (hash string, payload []byte, err error)
}

// Persister saves the payment book. It is called after every state change
// of a record.
type Persister interface {
	SavePaymentBook(ctx context.Context, b *Book) error
}

// Recorder observes dispatcher activity.
type Recorder interface {
	BatchSent(recipients int, amount int64)
	SendFailed()
}

// SendError wraps a Sender failure that wrapped ErrNotBroadcast. The batch
// was not recorded as paid and Drain can be retried.
type SendError struct {
	Height int64
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send payments for height %d: %v", e.Height, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Dispatcher drains unpaid obligations into payment transactions.
type Dispatcher struct {
	sender     Sender
	persist    Persister
	logAddress string
	from       string
	change     string
	fee        int64
	batchSize  int
	recorder   Recorder
	logger     *slog.Logger
}

// Option customises the dispatcher.
type Option func(*Dispatcher)

// WithBatchSize caps recipients per transaction. Values outside 1..MaxBatch
// are ignored.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 && n <= MaxBatch {
			d.batchSize = n
		}
	}
}

// WithFee sets the fee attached to each transaction.
func WithFee(fee int64) Option {
	return func(d *Dispatcher) { d.fee = fee }
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher paying from the from address, with
// change returned to change.
func NewDispatcher(sender Sender, persist Persister, logAddress, from, change string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:     sender,
		persist:    persist,
		logAddress: logAddress,
		from:       from,
		change:     change,
		batchSize:  MaxBatch,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drain pays every unpaid obligation of height. It returns the number of
// transactions sent.
//
// A pending batch left by an earlier run stops Drain with a
// *engine.ConsistencyError wrapping ErrPendingBatch. A Sender failure that
// wraps ErrNotBroadcast returns a *SendError after clearing the pending
// marker. Any other Sender failure may have paid the batch, so it stays
// pending and Drain stops the same way; the batch must be settled with
// ResolvePending before Drain sends anything again. Everything paid before
// the failure stays paid.
func (d *Dispatcher) Drain(ctx context.Context, book *Book, height int64) (int, error) {
	rec, ok := book.Record(height)
	if !ok {
		return 0, fmt.Errorf("drain height %d: %w", height, ErrNoRecord)
	}
	if rec.Pending != nil {
		return 0, &engine.ConsistencyError{
			Code:    engine.ErrCodePendingBatch,
			Message: fmt.Sprintf("%v: batch %s at height %d must be resolved", ErrPendingBatch, rec.Pending.ID, height),
			Height:  height,
			Details: map[string]string{"batch": rec.Pending.ID},
			Cause:   ErrPendingBatch,
		}
	}

	sent := 0
	for len(rec.Unpaid) > 0 {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		addrs := slices.Sorted(maps.Keys(rec.Unpaid))
		if len(addrs) > d.batchSize {
			addrs = addrs[:d.batchSize]
		}
		batch := &Batch{ID: newBatchID(), Recipients: make(map[string]int64, len(addrs))}
		for _, a := range addrs {
			batch.Recipients[a] = rec.Unpaid[a]
		}

		rec.Pending = batch
		if err := d.persist.SavePaymentBook(ctx, book); err != nil {
			rec.Pending = nil
			return sent, fmt.Errorf("persist pending batch: %w", err)
		}

		outputs := maps.Clone(batch.Recipients)
		outputs[d.logAddress] = height
		hash, payload, err := d.sender.Send(ctx, outputs, d.from, d.change, d.fee)
		if err != nil {
			if d.recorder != nil {
				d.recorder.SendFailed()
			}
			d.logger.Warn("payment batch failed",
				"height", height,
				"batch", batch.ID,
				"recipients", len(batch.Recipients),
				"error", err)
			if !errors.Is(err, ErrNotBroadcast) {
				return sent, &engine.ConsistencyError{
					Code:    engine.ErrCodePendingBatch,
					Message: fmt.Sprintf("batch %s at height %d may have been broadcast: %v", batch.ID, height, err),
					Height:  height,
					Details: map[string]string{"batch": batch.ID},
					Cause:   fmt.Errorf("%w: %w", ErrPendingBatch, err),
				}
			}
			rec.Pending = nil
			if perr := d.persist.SavePaymentBook(ctx, book); perr != nil {
				return sent, errors.Join(&SendError{Height: height, Err: err}, fmt.Errorf("clear pending batch: %w", perr))
			}
			return sent, &SendError{Height: height, Err: err}
		}

		settle(rec, batch, Transaction{Hash: hash, Payload: payload, Recipients: outputs})
		if err := d.persist.SavePaymentBook(ctx, book); err != nil {
			// the batch is out; leaving it pending on disk is what makes a
			// restart stop instead of paying twice
			return sent + 1, fmt.Errorf("persist paid batch %s: %w", hash, err)
		}
		sent++

		var total int64
		for _, v := range batch.Recipients {
			total += v
		}
		if d.recorder != nil {
			d.recorder.BatchSent(len(batch.Recipients), total)
		}
		d.logger.Info("payment batch sent",
			"height", height,
			"tx", hash,
			"recipients", len(batch.Recipients),
			"amount", total)
	}
	return sent, nil
}

// ResolvePending settles a batch left pending at height. When sentHash is
// non-empty the batch is recorded as broadcast in that transaction;
// otherwise its recipients return to unpaid and will be sent again.
func ResolvePending(ctx context.Context, book *Book, persist Persister, height int64, sentHash string) error {
	rec, ok := book.Record(height)
	if !ok {
		return fmt.Errorf("resolve height %d: %w", height, ErrNoRecord)
	}
	if rec.Pending == nil {
		return fmt.Errorf("resolve height %d: no pending batch", height)
	}
	if sentHash != "" {
		settle(rec, rec.Pending, Transaction{Hash: sentHash, Recipients: maps.Clone(rec.Pending.Recipients)})
	} else {
		rec.Pending = nil
	}
	return persist.SavePaymentBook(ctx, book)
}

// settle moves batch recipients from unpaid to paid.
func settle(rec *Record, batch *Batch, tx Transaction) {
	for addr, v := range batch.Recipients {
		delete(rec.Unpaid, addr)
		rec.Paid[addr] += v
	}
	rec.Transactions = append(rec.Transactions, tx)
	rec.Pending = nil
}

func newBatchID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
