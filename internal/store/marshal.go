package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/fluxgear/internal/ir"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
// A nil payload is stored as "{}".
func marshalPayload(payload ir.Object) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT to an Object.
// Uses ir.Object.UnmarshalJSON which keeps integers exact.
func unmarshalPayload(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

// marshalState encodes an engine state of any type.
// canonical is false when the state fell back to encoding/json.
func marshalState(state any) (text string, canonical bool, digest string, err error) {
	data, canonical, err := ir.Encode(state)
	if err != nil {
		return "", false, "", fmt.Errorf("marshal state: %w", err)
	}
	digest, err = ir.StateDigest(state)
	if err != nil {
		return "", false, "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), canonical, digest, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
