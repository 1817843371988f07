package rules

import (
	"fmt"
	"strings"

	"github.com/roach88/fluxgear/internal/ir"
)

// OpError reports a reduction that could not be applied.
type OpError struct {
	Program string
	On      string
	Op      Op
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("program %s: %s on %s: field %q: %v", e.Program, e.Op.Kind, e.On, e.Op.Field, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Check reports an op that can never apply, whatever the state and payload:
// an unknown kind, a missing field, or a value that does not fit the kind.
func (op Op) Check() error {
	if !ValidOps[op.Kind] {
		return fmt.Errorf("unknown op %q", op.Kind)
	}
	if strings.TrimSpace(op.Field) == "" {
		return fmt.Errorf("%s requires a field", op.Kind)
	}
	switch op.Kind {
	case OpSet, OpAppend:
		if op.Value == nil {
			return fmt.Errorf("%s %q requires a value", op.Kind, op.Field)
		}
	case OpDelete:
		if op.Value != nil {
			return fmt.Errorf("delete %q takes no value", op.Field)
		}
	case OpInc:
		switch v := op.Value.(type) {
		case nil, ir.Int:
		case ir.String:
			if _, _, ok := ParseRef(string(v)); !ok {
				return fmt.Errorf("inc %q by non-integer %q", op.Field, string(v))
			}
		default:
			return fmt.Errorf("inc %q by non-integer %T", op.Field, v)
		}
	}
	return nil
}

// Apply runs one op against state and returns the new state.
// state is never modified; scope.State should be the same object.
func Apply(state ir.Object, op Op, scope Scope) (ir.Object, error) {
	switch op.Kind {
	case OpDelete:
		if _, ok := state[op.Field]; !ok {
			return state, nil
		}
		return state.Without(op.Field), nil

	case OpSet:
		v, err := Resolve(op.Value, scope)
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = ir.Null{}
		}
		return state.With(op.Field, v), nil

	case OpInc:
		by := ir.Value(ir.Int(1))
		if op.Value != nil {
			v, err := Resolve(op.Value, scope)
			if err != nil {
				return nil, err
			}
			by = v
		}
		delta, ok := by.(ir.Int)
		if !ok {
			return nil, fmt.Errorf("inc by non-integer %T", by)
		}
		var cur ir.Int
		if existing, ok := state[op.Field]; ok {
			n, isInt := existing.(ir.Int)
			if !isInt {
				return nil, fmt.Errorf("inc on non-integer %T", existing)
			}
			cur = n
		}
		return state.With(op.Field, cur+delta), nil

	case OpAppend:
		v, err := Resolve(op.Value, scope)
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = ir.Null{}
		}
		var cur ir.Array
		if existing, ok := state[op.Field]; ok {
			arr, isArr := existing.(ir.Array)
			if !isArr {
				return nil, fmt.Errorf("append to non-array %T", existing)
			}
			cur = arr
		}
		next := make(ir.Array, len(cur), len(cur)+1)
		copy(next, cur)
		return state.With(op.Field, append(next, v)), nil

	default:
		return nil, fmt.Errorf("unknown op %q", op.Kind)
	}
}
