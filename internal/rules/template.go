package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/fluxgear/internal/ir"
)

// Template roots.
const (
	RootPayload = "payload"
	RootState   = "state"
)

// ErrUnresolved reports a template reference with no value behind it.
var ErrUnresolved = errors.New("unresolved reference")

// Scope is what templates can reference.
type Scope struct {
	Payload ir.Object
	State   ir.Object
}

// ParseRef splits "${root.path}" into root and path. The path is empty for
// "${root}". ok is false for anything that is not a reference.
func ParseRef(s string) (root, path string, ok bool) {
	const prefix, suffix = "${", "}"
	if len(s) <= len(prefix)+len(suffix) || !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) {
		return "", "", false
	}
	ref := s[len(prefix) : len(s)-len(suffix)]
	root, path, _ = strings.Cut(ref, ".")
	return root, path, root != ""
}

// Resolve substitutes references in v. Objects and arrays are copied, never
// modified in place.
//
// Examples:
//
//	"${payload.id}" with payload {"id": 7}  → 7
//	"${state}"                              → the whole state object
//	"pending"                               → "pending"
func Resolve(v ir.Value, scope Scope) (ir.Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case ir.String:
		root, path, ok := ParseRef(string(val))
		if !ok {
			return val, nil
		}
		var base ir.Object
		switch root {
		case RootPayload:
			base = scope.Payload
		case RootState:
			base = scope.State
		default:
			return nil, fmt.Errorf("%w: %s: unknown root %q", ErrUnresolved, val, root)
		}
		if base == nil {
			base = ir.Object{}
		}
		out, ok := ir.Lookup(base, path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, val)
		}
		return out, nil
	case ir.Object:
		return ResolveObject(val, scope)
	case ir.Array:
		out := make(ir.Array, len(val))
		for i, item := range val {
			r, err := Resolve(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveObject resolves every field of obj. A nil obj stays nil.
func ResolveObject(obj ir.Object, scope Scope) (ir.Object, error) {
	if obj == nil {
		return nil, nil
	}
	out := make(ir.Object, len(obj))
	for _, k := range obj.SortedKeys() {
		r, err := Resolve(obj[k], scope)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}

// Refs returns every reference in v as "root.path" strings, in a stable order.
func Refs(v ir.Value) []string {
	var out []string
	var walk func(ir.Value)
	walk = func(v ir.Value) {
		switch val := v.(type) {
		case ir.String:
			if root, path, ok := ParseRef(string(val)); ok {
				if path != "" {
					root += "." + path
				}
				out = append(out, root)
			}
		case ir.Object:
			for _, k := range val.SortedKeys() {
				walk(val[k])
			}
		case ir.Array:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(v)
	return out
}
