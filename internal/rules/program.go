package rules

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/msgtype"
)

// OpKind names a reduction operation.
type OpKind string

const (
	OpSet    OpKind = "set"    // field = value
	OpInc    OpKind = "inc"    // field += value (default 1); missing counts as 0
	OpAppend OpKind = "append" // field = field ++ [value]; missing counts as []
	OpDelete OpKind = "delete" // remove field
)

// ValidOps lists the supported op kinds.
var ValidOps = map[OpKind]bool{
	OpSet:    true,
	OpInc:    true,
	OpAppend: true,
	OpDelete: true,
}

// Op is one state update. Value is a template; it is nil for delete and
// optional for inc.
type Op struct {
	Kind  OpKind   `json:"op"`
	Field string   `json:"field"`
	Value ir.Value `json:"value,omitempty"`
}

// UnmarshalJSON decodes Value with ir.UnmarshalValue. A missing value
// stays nil; an explicit null becomes ir.Null.
func (op *Op) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind  OpKind          `json:"op"`
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*op = Op{Kind: raw.Kind, Field: raw.Field}
	if raw.Value != nil {
		v, err := ir.UnmarshalValue(raw.Value)
		if err != nil {
			return fmt.Errorf("op %s %s: value: %w", raw.Kind, raw.Field, err)
		}
		op.Value = v
	}
	return nil
}

// Emission is one message produced by a transform rule.
type Emission struct {
	Type    string    `json:"type"`
	Payload ir.Object `json:"payload,omitempty"`
}

// TransformRule replaces an event of type On with Emit.
// Emit may be empty, which swallows the event.
type TransformRule struct {
	On   string     `json:"on"`
	Emit []Emission `json:"emit"`
}

// ReduceRule applies Ops, in order, to every message of type On.
type ReduceRule struct {
	On  string `json:"on"`
	Ops []Op   `json:"ops"`
}

// Condition gates an effect on a state field. A missing field equals null.
type Condition struct {
	Field  string   `json:"field"`
	Equals ir.Value `json:"equals"`
}

// UnmarshalJSON decodes Equals with ir.UnmarshalValue.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field  string          `json:"field"`
		Equals json.RawMessage `json:"equals"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Condition{Field: raw.Field}
	if raw.Equals != nil {
		v, err := ir.UnmarshalValue(raw.Equals)
		if err != nil {
			return fmt.Errorf("condition on %s: equals: %w", raw.Field, err)
		}
		c.Equals = v
	}
	return nil
}

// EffectRule runs in the consumer for every message of type On.
// Dispatch defers an event of that type with Payload; Log writes Log at info.
type EffectRule struct {
	On       string     `json:"on"`
	Dispatch string     `json:"dispatch,omitempty"`
	Payload  ir.Object  `json:"payload,omitempty"`
	Log      string     `json:"log,omitempty"`
	When     *Condition `json:"when,omitempty"`
}

// Program is a named set of declarative behaviors over ir.Object state.
type Program struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Messages    []string        `json:"messages"`
	Initial     ir.Object       `json:"initial,omitempty"`
	Transforms  []TransformRule `json:"transforms,omitempty"`
	Reductions  []ReduceRule    `json:"reductions,omitempty"`
	Effects     []EffectRule    `json:"effects,omitempty"`
}

// Define mints types for the program's messages with gen and adds the
// engine's reserved INIT and CHANGE.
func (p *Program) Define(gen msgtype.Generator) msgtype.Set {
	return msgtype.DefineWith(gen, p.Messages...).Merge(engine.Reserved())
}

// Referenced returns every message name the program's rules mention, in
// first-mention order.
func (p *Program) Referenced() []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, r := range p.Transforms {
		add(r.On)
		for _, e := range r.Emit {
			add(e.Type)
		}
	}
	for _, r := range p.Reductions {
		add(r.On)
	}
	for _, r := range p.Effects {
		add(r.On)
		add(r.Dispatch)
	}
	return out
}
