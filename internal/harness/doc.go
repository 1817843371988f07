// Package harness provides conformance testing for fluxgear programs.
//
// The harness compiles CUE programs, drives them through a real engine step
// by step, and checks the resulting trace, state and journal.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: cart_checkout
//	description: "What this scenario validates"
//	specs:
//	  - ../specs
//	program: cart
//	steps:
//	  - dispatch: ADD
//	    payload: { sku: apple }
//	  - dispatch: CHECKOUT
//	    payload: { order: o-1 }
//	  - drain: true
//	  - dispatch: ADD
//	    expect_error: stage
//	assertions:
//	  - type: trace_order
//	    messages: [RESERVE, CHARGE, RECEIPT]
//	  - type: final_state
//	    expect: { status: charged, items.0: apple }
//
// # Assertion Types
//
//   - trace_contains: a message of the type with a matching payload was reduced
//   - trace_order: messages were first reduced in the given order
//   - trace_count: a message was reduced exactly N times
//   - final_state: state fields, by dotted path, equal the expected values
//   - change_count: N transactions changed the state
//   - notify_count: subscribers were notified N times
//   - journal: the journal holds N transactions, optionally with a status
//
// # Deterministic Testing
//
// Message types are minted by msgtype.SequenceGenerator seeded with the
// scenario name, the logical clock starts at zero and the journal lives in
// an in-memory SQLite database. Identical scenarios therefore produce
// identical traces, which golden files rely on.
package harness
