// Package ir provides the value model used for message payloads and
// declarative engine state.
//
// Values are a sealed set of JSON-compatible types: Null, String, Int, Bool,
// Array and Object. Floats are rejected so that canonical encodings, and the
// digests derived from them, are stable across platforms.
//
// This package imports nothing internal.
package ir
