package rules

import (
	"fmt"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/msgtype"
)

type boundEmission struct {
	typ     msgtype.Type
	payload ir.Object
}

type boundEffect struct {
	rule     EffectRule
	dispatch msgtype.Type
}

// bound is a program with names resolved to types, indexed by trigger.
type bound struct {
	prog       *Program
	transforms map[msgtype.Type][]boundEmission
	reductions map[msgtype.Type][]ReduceRule
	effects    map[msgtype.Type][]boundEffect
}

// Bind resolves the program's names against types and returns an engine
// configuration running it. The names "INIT" and "CHANGE" resolve to the
// engine's reserved types when types came from Define.
//
// Callers may set the remaining Config fields (Logger, Observers, ...)
// before passing it to engine.New.
func (p *Program) Bind(types msgtype.Set) (engine.Config[ir.Object], error) {
	b := &bound{
		prog:       p,
		transforms: map[msgtype.Type][]boundEmission{},
		reductions: map[msgtype.Type][]ReduceRule{},
		effects:    map[msgtype.Type][]boundEffect{},
	}

	lookup := func(where, name string) (msgtype.Type, error) {
		t, ok := types.Lookup(name)
		if !ok {
			return msgtype.Type{}, fmt.Errorf("program %s: %s: unknown message %q", p.Name, where, name)
		}
		return t, nil
	}

	for i, r := range p.Transforms {
		on, err := lookup(fmt.Sprintf("transforms[%d].on", i), r.On)
		if err != nil {
			return engine.Config[ir.Object]{}, err
		}
		// An empty list still registers the trigger, which swallows the event.
		emissions := b.transforms[on]
		if emissions == nil {
			emissions = []boundEmission{}
		}
		for j, e := range r.Emit {
			t, err := lookup(fmt.Sprintf("transforms[%d].emit[%d]", i, j), e.Type)
			if err != nil {
				return engine.Config[ir.Object]{}, err
			}
			emissions = append(emissions, boundEmission{typ: t, payload: e.Payload})
		}
		b.transforms[on] = emissions
	}

	for i, r := range p.Reductions {
		on, err := lookup(fmt.Sprintf("reductions[%d].on", i), r.On)
		if err != nil {
			return engine.Config[ir.Object]{}, err
		}
		for j, op := range r.Ops {
			if err := op.Check(); err != nil {
				return engine.Config[ir.Object]{}, fmt.Errorf("program %s: reductions[%d].ops[%d]: %w", p.Name, i, j, err)
			}
		}
		b.reductions[on] = append(b.reductions[on], r)
	}

	for i, r := range p.Effects {
		on, err := lookup(fmt.Sprintf("effects[%d].on", i), r.On)
		if err != nil {
			return engine.Config[ir.Object]{}, err
		}
		be := boundEffect{rule: r}
		if r.Dispatch != "" {
			be.dispatch, err = lookup(fmt.Sprintf("effects[%d].dispatch", i), r.Dispatch)
			if err != nil {
				return engine.Config[ir.Object]{}, err
			}
		}
		b.effects[on] = append(b.effects[on], be)
	}

	return engine.Config[ir.Object]{
		Transformer:  b.transform,
		Consumer:     b.consume,
		Reducer:      b.reduce,
		InitialState: p.Initial.Clone(),
		Equal:        func(x, y ir.Object) bool { return ir.Equal(x, y) },
	}, nil
}

// transform emits the rule's messages lazily; events without a rule pass
// through unchanged.
func (b *bound) transform(ev engine.Event) engine.Sequence {
	emissions, ok := b.transforms[ev.Type]
	if !ok {
		return engine.Of(ev)
	}
	return engine.Generate(func(yield func(engine.Message) bool) error {
		scope := Scope{Payload: ev.Payload}
		for _, e := range emissions {
			payload, err := ResolveObject(e.payload, scope)
			if err != nil {
				return fmt.Errorf("program %s: emit %s: %w", b.prog.Name, e.typ, err)
			}
			if !yield(engine.Message{Type: e.typ, Payload: payload}) {
				return nil
			}
		}
		return nil
	})
}

func (b *bound) consume(msg engine.Message, opts engine.DispatchOptions[ir.Object]) error {
	for _, e := range b.effects[msg.Type] {
		state := opts.State()
		if c := e.rule.When; c != nil {
			if !conditionHolds(c, state) {
				continue
			}
		}

		scope := Scope{Payload: msg.Payload, State: state}
		if e.rule.Log != "" {
			opts.Logger().Info(e.rule.Log,
				"program", b.prog.Name,
				"type", msg.Type.Name(),
			)
		}
		if e.dispatch.IsZero() {
			continue
		}
		payload, err := ResolveObject(e.rule.Payload, scope)
		if err != nil {
			return fmt.Errorf("program %s: effect on %s: %w", b.prog.Name, msg.Type, err)
		}
		if err := opts.Defer(engine.Message{Type: e.dispatch, Payload: payload}); err != nil {
			return fmt.Errorf("program %s: defer %s: %w", b.prog.Name, e.dispatch, err)
		}
	}
	return nil
}

func conditionHolds(c *Condition, state ir.Object) bool {
	v, ok := ir.Lookup(state, c.Field)
	if !ok {
		v = ir.Null{}
	}
	if c.Equals == nil {
		return ir.Equal(v, ir.Null{})
	}
	return ir.Equal(v, c.Equals)
}

// reduce applies every matching rule. Failures panic with *OpError; see the
// package documentation. Bind has already run Op.Check, so only failures
// that depend on the state or payload get here.
func (b *bound) reduce(state ir.Object, msg engine.Message) ir.Object {
	for _, r := range b.reductions[msg.Type] {
		for _, op := range r.Ops {
			next, err := Apply(state, op, Scope{Payload: msg.Payload, State: state})
			if err != nil {
				panic(&OpError{Program: b.prog.Name, On: r.On, Op: op, Err: err})
			}
			state = next
		}
	}
	return state
}
