package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/stealth-startup/openexchange/internal/chainstate"
	"github.com/stealth-startup/openexchange/internal/ledger"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatEvent(event))
		}
	}
	return buf.String()
}

func formatEvent(e TraceEvent) string {
	switch e.Type {
	case EventRequest:
		s := fmt.Sprintf("%d #%d %s %s from %s: %s", e.Height, e.Seq, e.Kind, e.Asset, e.Sender, e.Status)
		if e.Message != "" {
			s += " (" + e.Message + ")"
		}
		return s
	case EventPayment:
		return fmt.Sprintf("%d payment %v", e.Height, e.Payments)
	case EventHalt:
		return fmt.Sprintf("%d halt %s", e.Height, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Height, e.Type)
}

// matchRequest reports whether a request event matches every non-empty
// filter of the assertion.
func matchRequest(e TraceEvent, a Assertion) bool {
	if e.Type != EventRequest {
		return false
	}
	for _, f := range [][2]string{
		{a.Kind, e.Kind},
		{a.Asset, e.Asset},
		{a.Sender, e.Sender},
		{a.Status, e.Status},
		{a.Message, e.Message},
	} {
		if f[0] != "" && f[0] != f[1] {
			return false
		}
	}
	return true
}

func describeFilter(a Assertion) string {
	var parts []string
	for _, f := range [][2]string{
		{"kind", a.Kind},
		{"asset", a.Asset},
		{"sender", a.Sender},
		{"status", a.Status},
		{"message", a.Message},
	} {
		if f[1] != "" {
			parts = append(parts, f[0]+"="+f[1])
		}
	}
	return strings.Join(parts, " ")
}

// assertRequest checks that some request matches the assertion.
func assertRequest(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if matchRequest(e, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertRequest,
		Expected: "request with " + describeFilter(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertRequestOrder checks that the first request of each listed kind
// appears in the listed order. Intervening requests are allowed.
func assertRequestOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, e := range trace {
		if e.Type != EventRequest {
			continue
		}
		if _, seen := positions[e.Kind]; !seen {
			positions[e.Kind] = i + 1
		}
	}

	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertRequestOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   "missing kind: " + kind,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertRequestOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertRequestCount checks the number of matching requests.
func assertRequestCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		if matchRequest(e, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%d requests with %s", a.Count, describeFilter(a)),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertRollbackCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		if e.Type == EventRollback {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertRollbackCount,
			Expected: fmt.Sprintf("%d rollbacks", a.Count),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertHalted(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if e.Type == EventHalt && e.Message == a.Message {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertHalted,
		Expected: "halt with " + a.Message,
		Actual:   "replay did not halt with it",
		Trace:    trace,
	}
}

// assertPaid sums what address received across payment transactions.
func assertPaid(trace []TraceEvent, a Assertion) error {
	var total int64
	for _, e := range trace {
		if e.Type == EventPayment {
			total += e.Payments[a.Address]
		}
	}
	if total != a.Amount {
		return &AssertionError{
			Type:     AssertPaid,
			Expected: fmt.Sprintf("%d paid to %s", a.Amount, a.Address),
			Actual:   fmt.Sprintf("%d", total),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState compares exchange, asset or user fields of the final
// state against the assertion's expect map.
func assertFinalState(final *chainstate.ChainedState, a Assertion) error {
	if final == nil {
		return &AssertionError{Type: AssertFinalState, Expected: "a final state", Actual: "none"}
	}

	actual, err := stateFields(final, a)
	if err != nil {
		return &AssertionError{Type: AssertFinalState, Expected: fmt.Sprintf("%v", a.Expect), Actual: err.Error()}
	}

	var mismatches []string
	for _, key := range sortedKeys(a.Expect) {
		got, ok := actual[key]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: unknown field", key))
			continue
		}
		if !valuesEqual(got, a.Expect[key]) {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %v, got %v", key, a.Expect[key], got))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %v", scope(a), a.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func scope(a Assertion) string {
	switch {
	case a.User != "":
		return a.Asset + "/" + a.User
	case a.Asset != "":
		return a.Asset
	}
	return "exchange"
}

// stateFields flattens the part of the state an assertion addresses.
func stateFields(st *chainstate.ChainedState, a Assertion) (map[string]any, error) {
	ex := st.Exchange
	if a.Asset == "" {
		return map[string]any{
			"state":  string(ex.State),
			"height": ex.ProcessedBlockHeight,
			"assets": len(ex.Assets),
		}, nil
	}

	asset, ok := ex.Assets[a.Asset]
	if !ok {
		return nil, fmt.Errorf("asset %s does not exist", a.Asset)
	}
	if a.User == "" {
		bids, asks := chainstate.Depth(asset)
		return map[string]any{
			"state":        string(asset.State),
			"total_shares": asset.TotalShares,
			"outstanding":  asset.SharesOutstanding(),
			"bid_levels":   len(bids),
			"ask_levels":   len(asks),
			"trades":       len(st.RecentTrades[a.Asset]),
		}, nil
	}

	u, ok := asset.Users[a.User]
	if !ok {
		return nil, fmt.Errorf("user %s of %s does not exist", a.User, a.Asset)
	}
	return userFields(u), nil
}

func userFields(u *ledger.User) map[string]any {
	return map[string]any{
		"available": u.Available,
		"total":     u.Total,
		"orders":    len(u.ActiveOrders),
		"votes":     len(u.Votes),
	}
}

// valuesEqual compares a state value with a YAML-decoded expectation.
// YAML integers decode as int, state values are int or int64.
func valuesEqual(actual, expected any) bool {
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// EvaluateAssertions runs every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRequest:
			err = assertRequest(result.Trace, a)
		case AssertRequestOrder:
			err = assertRequestOrder(result.Trace, a)
		case AssertRequestCount:
			err = assertRequestCount(result.Trace, a)
		case AssertRollbackCount:
			err = assertRollbackCount(result.Trace, a)
		case AssertHalted:
			err = assertHalted(result.Trace, a)
		case AssertPaid:
			err = assertPaid(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.Final, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
