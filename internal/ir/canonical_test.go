package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", Object{"b": Int(1), "a": Int(2)}, `{"a":2,"b":1}`},
		{"no html escaping", String("<a&b>"), `"<a&b>"`},
		{"null allowed", Object{"x": Null{}}, `{"x":null}`},
		{"plain go data", map[string]any{"ok": true, "n": 3}, `{"n":3,"ok":true}`},
		{"nested array", Array{Array{}, Object{}}, `[[],{}]`},
		{"line separator raw", String("a\u2028b"), "\"a\u2028b\""},
		{"escaped backslash kept", String(`\u2028`), `"\\u2028"`},
		{"control escaped", String("tab\t"), `"tab\t"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "é" as e + combining acute accent normalises to U+00E9.
	got, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 0.25})
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	a := MustStateDigest(Object{"a": Int(1), "b": Int(2)})
	b := MustStateDigest(Object{"b": Int(2), "a": Int(1)})
	c := MustStateDigest(Object{"a": Int(1)})

	assert.Len(t, a, 64)
	assert.Equal(t, a, b, "digest must not depend on map order")
	assert.NotEqual(t, a, c)

	m, err := Digest(DomainMessage, Object{"a": Int(1), "b": Int(2)})
	require.NoError(t, err)
	assert.NotEqual(t, a, m, "domains must separate digests")
}

func TestEncode_FallsBackToJSON(t *testing.T) {
	type point struct {
		X float64 `json:"x"`
	}
	data, canonical, err := Encode(point{X: 1.5})
	require.NoError(t, err)
	assert.False(t, canonical)
	assert.JSONEq(t, `{"x":1.5}`, string(data))

	data, canonical, err = Encode(true)
	require.NoError(t, err)
	assert.True(t, canonical)
	assert.Equal(t, "true", string(data))

	_, _, err = Encode(make(chan int))
	assert.Error(t, err)
}
