package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/store"
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
		for _, ev := range e.Trace {
			if ev.Kind == KindMessage {
				fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Seq, ev.Type, formatPayload(ev.Payload))
			}
		}
	}

	return buf.String()
}

func formatPayload(p ir.Object) string {
	if len(p) == 0 {
		return "{}"
	}
	data, err := ir.MarshalValue(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(data)
}

// assertTraceContains checks if a message of the given type with a
// matching payload (subset match) was reduced.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := ir.ObjectFromAny(assertion.Payload)
	if err != nil {
		return fmt.Errorf("trace_contains: payload: %w", err)
	}

	for _, ev := range trace {
		if ev.Kind == KindMessage && ev.Type == assertion.Message && matchPayload(ev.Payload, want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("message %s with payload %s", assertion.Message, formatPayload(want)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that messages first appear in the given order.
// They need not be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Kind != KindMessage {
			continue
		}
		if _, seen := positions[ev.Type]; !seen {
			positions[ev.Type] = i + 1 // 1-indexed for readability
		}
	}

	for _, name := range assertion.Messages {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all messages present: %v", assertion.Messages),
				Actual:   fmt.Sprintf("missing message: %s", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Messages); i++ {
		prev := assertion.Messages[i-1]
		curr := assertion.Messages[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("messages in order: %v", assertion.Messages),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that a message was reduced exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Kind == KindMessage && ev.Type == assertion.Message {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Message),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState compares state fields, addressed by dotted path, with
// the expected values. Fields not named in Expect are ignored.
func assertFinalState(state ir.Object, assertion Assertion) error {
	paths := make([]string, 0, len(assertion.Expect))
	for p := range assertion.Expect {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		want, err := ir.FromAny(assertion.Expect[path])
		if err != nil {
			return fmt.Errorf("final_state: expect[%s]: %w", path, err)
		}

		got, ok := ir.Lookup(state, path)
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", path),
				Actual:   fmt.Sprintf("field %q not present in state %s", path, formatPayload(state)),
			}
		}
		if !ir.Equal(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %s", path, formatValue(want)),
				Actual:   fmt.Sprintf("field %q = %s", path, formatValue(got)),
			}
		}
	}
	return nil
}

func formatValue(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func assertCount(kind string, got int, assertion Assertion) error {
	if got != assertion.Count {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d", assertion.Count),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// assertJournal counts journaled transactions, optionally filtered by status.
func assertJournal(actx *AssertionContext, assertion Assertion) error {
	txns, err := actx.Store.ReadTransactions(actx.Ctx, actx.Session)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	count := 0
	for _, txn := range txns {
		if assertion.Status == "" || txn.Status == assertion.Status {
			count++
		}
	}

	if count != assertion.Count {
		status := assertion.Status
		if status == "" {
			status = "any"
		}
		return &AssertionError{
			Type:     AssertJournal,
			Expected: fmt.Sprintf("%d transactions with status %s", assertion.Count, status),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

// matchPayload reports whether actual holds every field of expected.
// Extra fields in actual are ignored.
func matchPayload(actual, expected ir.Object) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store   *store.Store
	Ctx     context.Context
	Session string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for journal assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		case AssertChangeCount:
			err = assertCount(AssertChangeCount, result.Changes, assertion)
		case AssertNotifyCount:
			err = assertCount(AssertNotifyCount, result.Notified, assertion)
		case AssertJournal:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: journal requires database context", i)
			} else {
				err = assertJournal(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
