package harness

import "github.com/roach88/fluxgear/internal/ir"

// Trace event kinds.
const (
	KindDispatch = "dispatch" // a transaction began
	KindMessage  = "message"  // a message was consumed and reduced
	KindComplete = "complete" // a transaction finished
)

// TraceEvent is one engine callback, flattened for assertions and golden files.
type TraceEvent struct {
	Kind    string    `json:"kind"`
	Seq     int64     `json:"seq"`
	Txn     int64     `json:"txn"`
	Type    string    `json:"type,omitempty"`    // event or message type name
	Payload ir.Object `json:"payload,omitempty"` // dispatch and message
	Change  bool      `json:"change,omitempty"`  // message: the CHANGE step
	Outcome string    `json:"outcome,omitempty"` // complete: ok or the error code
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every dispatch, message and completion in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed step and assertion messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the engine state after the last step.
	State ir.Object `json:"state"`

	// Changes counts transactions that changed the state.
	Changes int `json:"changes"`

	// Notified counts subscriber notifications.
	Notified int `json:"notified"`

	// Session is the journal session id.
	Session string `json:"session,omitempty"`
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

// Messages returns the message events of the trace.
func (r *Result) Messages() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Kind == KindMessage {
			out = append(out, ev)
		}
	}
	return out
}
