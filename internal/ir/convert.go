package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FromAny converts decoded JSON, YAML or CUE data into a Value.
//
// Accepted inputs are nil, bool, string, every Go integer kind, json.Number
// holding an integer, whole-valued floats (YAML and CUE decoders produce
// these for integer literals in some paths), []any, map[string]any and
// map[any]any with string keys. Values that are already a Value pass through.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case float64:
		if val != math.Trunc(val) || math.Abs(val) > 1<<53 {
			return nil, fmt.Errorf("floats are not allowed: %v", val)
		}
		return Int(int64(val)), nil
	case float32:
		return FromAny(float64(val))
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not allowed: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("integer out of range: %s", s)
		}
		return Int(n), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v (%T)", k, k)
			}
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", ks, err)
			}
			obj[ks] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromAny is FromAny restricted to objects. A nil map yields an empty
// object.
func ObjectFromAny(v any) (Object, error) {
	if v == nil {
		return Object{}, nil
	}
	val, err := FromAny(v)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return obj, nil
}

// ToAny converts a Value back into plain Go data (map[string]any, []any,
// string, int64, bool, nil), suitable for YAML encoding and test fixtures.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}
