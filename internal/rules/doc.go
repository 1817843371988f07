// Package rules implements declarative engine behaviors.
//
// A Program describes a transformer, a consumer and a reducer as data:
//
//   - Transforms: an event of type On becomes the listed messages, in order
//   - Reductions: ops (set, inc, append, delete) applied to top-level state fields
//   - Effects: the consumer defers a follow-on event or writes a log line
//
// Values in emissions, ops and effects are templates. A string of the form
// "${payload.path}" or "${state.path}" is replaced by the referenced value;
// everything else is a literal. Nested objects and arrays are resolved
// recursively.
//
// Programs are usually compiled from CUE by the compiler package and bound to
// an engine with Bind:
//
//	types := prog.Define(msgtype.DefaultGenerator)
//	cfg, err := prog.Bind(types)
//	eng, err := engine.New(cfg)
//
// Bind rejects ops that can never apply (see Op.Check) with an ordinary
// error. The reducer cannot return errors, so a reduction that fails only at
// run time (a template that does not resolve, inc on a string) panics with an
// *OpError. The engine recovers it and reports a reduce-stage failure. This is
// the only panic in the package.
package rules
