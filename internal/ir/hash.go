package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Digest domains. The version suffix leaves room for algorithm changes.
const (
	DomainState   = "fluxgear/state/v1"
	DomainMessage = "fluxgear/message/v1"
	DomainProgram = "fluxgear/program/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Encode serialises arbitrary engine state for journaling.
// Values representable in the IR use the canonical form; anything else falls
// back to encoding/json. The second result reports whether the canonical
// form was used.
func Encode(v any) ([]byte, bool, error) {
	if data, err := MarshalCanonical(v); err == nil {
		return data, true, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, false, nil
}

// Digest returns a domain-separated SHA-256 of v's encoding.
func Digest(domain string, v any) (string, error) {
	data, _, err := Encode(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// StateDigest is Digest in the state domain.
func StateDigest(v any) (string, error) {
	return Digest(DomainState, v)
}

// MustStateDigest is like StateDigest but panics on error.
// Use only in tests or when the state is known to be encodable.
func MustStateDigest(v any) string {
	d, err := StateDigest(v)
	if err != nil {
		panic(err)
	}
	return d
}
