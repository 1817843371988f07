package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/rules"
)

// CompileProgram parses a CUE value into a rules.Program.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the program struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`program: cart: { messages: ["ADD"] }`)
//	prog, err := CompileProgram(v.LookupPath(cue.ParsePath("program.cart")))
//
// CompileProgram checks shape only. Use Validate for cross-references.
func CompileProgram(v cue.Value) (*rules.Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	prog := &rules.Program{}

	// Name comes from the struct label; quoted labels are unquoted.
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		prog.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	if prog.Description, err = optionalString(v, "description"); err != nil {
		return nil, err
	}

	prog.Messages, err = parseMessages(v)
	if err != nil {
		return nil, err
	}

	if initVal := v.LookupPath(cue.ParsePath("initial")); initVal.Exists() {
		prog.Initial, err = toObject(initVal, "initial")
		if err != nil {
			return nil, err
		}
	}

	prog.Transforms, err = parseTransforms(v)
	if err != nil {
		return nil, err
	}

	prog.Reductions, err = parseReductions(v)
	if err != nil {
		return nil, err
	}

	prog.Effects, err = parseEffects(v)
	if err != nil {
		return nil, err
	}

	return prog, nil
}

// parseMessages extracts the required message name list.
func parseMessages(v cue.Value) ([]string, error) {
	msgVal := v.LookupPath(cue.ParsePath("messages"))
	if !msgVal.Exists() {
		return nil, &CompileError{
			Field:   "messages",
			Message: "messages list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := msgVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "messages",
			Message: "messages must be a list of strings",
			Pos:     msgVal.Pos(),
		}
	}

	var names []string
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("messages[%d]", len(names)),
				Message: "message name must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		names = append(names, name)
	}
	return names, nil
}

// parseTransforms extracts the optional transforms list.
func parseTransforms(v cue.Value) ([]rules.TransformRule, error) {
	var out []rules.TransformRule
	err := eachListItem(v, "transforms", func(field string, item cue.Value) error {
		on, err := requiredString(item, field, "on")
		if err != nil {
			return err
		}
		rule := rules.TransformRule{On: on, Emit: []rules.Emission{}}

		emitErr := eachListItem(item, "emit", func(emitField string, e cue.Value) error {
			typ, err := requiredString(e, field+"."+emitField, "type")
			if err != nil {
				return err
			}
			emission := rules.Emission{Type: typ}
			if p := e.LookupPath(cue.ParsePath("payload")); p.Exists() {
				emission.Payload, err = toObject(p, field+"."+emitField+".payload")
				if err != nil {
					return err
				}
			}
			rule.Emit = append(rule.Emit, emission)
			return nil
		})
		if emitErr != nil {
			return emitErr
		}
		if !item.LookupPath(cue.ParsePath("emit")).Exists() {
			return &CompileError{
				Field:   field + ".emit",
				Message: "transform requires an emit list (use [] to swallow the event)",
				Pos:     item.Pos(),
			}
		}

		out = append(out, rule)
		return nil
	})
	return out, err
}

// parseReductions extracts the optional reductions list.
func parseReductions(v cue.Value) ([]rules.ReduceRule, error) {
	var out []rules.ReduceRule
	err := eachListItem(v, "reductions", func(field string, item cue.Value) error {
		on, err := requiredString(item, field, "on")
		if err != nil {
			return err
		}
		rule := rules.ReduceRule{On: on}

		opsErr := eachListItem(item, "ops", func(opField string, o cue.Value) error {
			path := field + "." + opField
			kind, err := requiredString(o, path, "op")
			if err != nil {
				return err
			}
			target, err := requiredString(o, path, "field")
			if err != nil {
				return err
			}
			op := rules.Op{Kind: rules.OpKind(kind), Field: target}
			if val := o.LookupPath(cue.ParsePath("value")); val.Exists() {
				op.Value, err = toValue(val, path+".value")
				if err != nil {
					return err
				}
			}
			rule.Ops = append(rule.Ops, op)
			return nil
		})
		if opsErr != nil {
			return opsErr
		}

		out = append(out, rule)
		return nil
	})
	return out, err
}

// parseEffects extracts the optional effects list.
func parseEffects(v cue.Value) ([]rules.EffectRule, error) {
	var out []rules.EffectRule
	err := eachListItem(v, "effects", func(field string, item cue.Value) error {
		on, err := requiredString(item, field, "on")
		if err != nil {
			return err
		}
		rule := rules.EffectRule{On: on}

		if rule.Dispatch, err = optionalString(item, "dispatch"); err != nil {
			return err
		}
		if rule.Log, err = optionalString(item, "log"); err != nil {
			return err
		}
		if p := item.LookupPath(cue.ParsePath("payload")); p.Exists() {
			rule.Payload, err = toObject(p, field+".payload")
			if err != nil {
				return err
			}
		}
		if w := item.LookupPath(cue.ParsePath("when")); w.Exists() {
			cond := &rules.Condition{}
			cond.Field, err = requiredString(w, field+".when", "field")
			if err != nil {
				return err
			}
			eq := w.LookupPath(cue.ParsePath("equals"))
			if !eq.Exists() {
				return &CompileError{
					Field:   field + ".when.equals",
					Message: "when clause requires 'equals'",
					Pos:     w.Pos(),
				}
			}
			cond.Equals, err = toValue(eq, field+".when.equals")
			if err != nil {
				return err
			}
			rule.When = cond
		}

		out = append(out, rule)
		return nil
	})
	return out, err
}

// eachListItem calls fn for every element of the optional list at name.
// field is "<name>[<i>]" for error reporting.
func eachListItem(v cue.Value, name string, fn func(field string, item cue.Value) error) error {
	listVal := v.LookupPath(cue.ParsePath(name))
	if !listVal.Exists() {
		return nil
	}
	iter, err := listVal.List()
	if err != nil {
		return &CompileError{
			Field:   name,
			Message: fmt.Sprintf("%s must be a list", name),
			Pos:     listVal.Pos(),
		}
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(fmt.Sprintf("%s[%d]", name, i), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func requiredString(v cue.Value, field, name string) (string, error) {
	val := v.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: fmt.Sprintf("'%s' is required", name),
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: fmt.Sprintf("'%s' must be a string", name),
			Pos:     val.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, name string) (string, error) {
	val := v.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", &CompileError{
			Field:   name,
			Message: fmt.Sprintf("'%s' must be a string", name),
			Pos:     val.Pos(),
		}
	}
	return s, nil
}

func toObject(v cue.Value, field string) (ir.Object, error) {
	val, err := toValue(v, field)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.Object)
	if !ok {
		return nil, &CompileError{
			Field:   field,
			Message: "must be a struct",
			Pos:     v.Pos(),
		}
	}
	return obj, nil
}

// toValue converts a concrete CUE value to an IR value.
// Floats are forbidden: state and payloads are integer-only.
func toValue(v cue.Value, field string) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("integer out of range: %v", err), Pos: v.Pos()}
		}
		return ir.Int(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for i := 0; iter.Next(); i++ {
			item, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			key := iter.Label()
			item, err := toValue(iter.Value(), field+"."+key)
			if err != nil {
				return nil, err
			}
			obj[key] = item
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
