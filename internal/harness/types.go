package harness

import (
	"github.com/stealth-startup/openexchange/internal/chainstate"
)

// Trace event types.
const (
	EventBlock    = "block"
	EventRequest  = "request"
	EventRollback = "rollback"
	EventPayment  = "payment"
	EventHalt     = "halt"
)

// TraceEvent is one observable step of a replay.
type TraceEvent struct {
	Type   string `json:"type"`
	Height int64  `json:"height"`

	// Request fields.
	Seq     int64  `json:"seq,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Asset   string `json:"asset,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Status  string `json:"status,omitempty"`
	// Message is the request's message code, or the consistency error
	// code of a halt.
	Message string `json:"message,omitempty"`

	// Payments are a request's obligations, or the recipients of a payment
	// transaction without the height marker.
	Payments map[string]int64 `json:"payments,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the latest chained state.
	Final *chainstate.ChainedState `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
