// Package msgtype mints message type identifiers for the fluxgear engine.
//
// A Type pairs a symbolic name ("INCREMENT", "INIT") with a unique tag drawn
// from a Generator. Two calls to Define with the same name produce distinct
// types, so reserved engine messages can never be confused with user
// messages that happen to share their name.
//
// Types are comparable values and are safe to use as map keys.
package msgtype
