// Package testutil provides helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/fluxgear/internal/msgtype"
)

// Types defines names with a SequenceGenerator so tags are stable across runs.
func Types(names ...string) msgtype.Set {
	return msgtype.DefineWith(msgtype.NewSequenceGenerator("test"), names...)
}

// Call is one recorded stage invocation.
type Call struct {
	Stage string
	Type  string
}

func (c Call) String() string {
	return c.Stage + ":" + c.Type
}

// Recorder collects stage calls in order.
//
// Thread-safety: safe for concurrent use via internal mutex, so it can be
// shared with subscribers running on other goroutines.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Record appends a call. t is usually a msgtype.Type.
func (r *Recorder) Record(stage string, t fmt.Stringer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Stage: stage, Type: t.String()})
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Strings returns the calls rendered as "stage:TYPE".
func (r *Recorder) Strings() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Types returns the type names recorded for one stage, in order.
func (r *Recorder) Types(stage string) []string {
	var out []string
	for _, c := range r.Calls() {
		if c.Stage == stage {
			out = append(out, c.Type)
		}
	}
	return out
}

// Count returns how many times stage saw typ.
func (r *Recorder) Count(stage, typ string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Stage == stage && c.Type == typ {
			n++
		}
	}
	return n
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
