package engine

import (
	"fmt"

	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/msgtype"
)

// reserved holds the engine's own message types. They are minted like any
// other type, so user types named "INIT" or "CHANGE" never collide with them.
var reserved = msgtype.Define("INIT", "CHANGE")

var (
	// Init is dispatched once, by New, before any other message.
	Init = reserved.Get("INIT")

	// Change follows any transaction whose net effect changed the state.
	Change = reserved.Get("CHANGE")
)

// Reserved returns a copy of the reserved types keyed by name.
func Reserved() msgtype.Set {
	return reserved.Merge(nil)
}

// IsReserved reports whether t is INIT or CHANGE.
func IsReserved(t msgtype.Type) bool {
	return t == Init || t == Change
}

// Message is the unit flowing through the pipeline.
type Message struct {
	Type    msgtype.Type `json:"type"`
	Payload ir.Object    `json:"payload,omitempty"`
}

// Event is a message submitted from outside the pipeline. The two are
// structurally identical; the name marks which side of Transform a value is on.
type Event = Message

// NewMessage builds a message. A nil payload is left nil.
func NewMessage(t msgtype.Type, payload ir.Object) Message {
	return Message{Type: t, Payload: payload}
}

// Validate checks that the message carries a type.
func (m Message) Validate() error {
	if m.Type.IsZero() {
		return fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return nil
}

// Get looks up a dotted path in the payload.
func (m Message) Get(path string) (ir.Value, bool) {
	if m.Payload == nil {
		return nil, false
	}
	return ir.Lookup(m.Payload, path)
}

// String renders the type name, which is what logs and traces show.
func (m Message) String() string {
	return m.Type.String()
}
