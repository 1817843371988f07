// Package engine implements the fluxgear reactive state engine.
//
// An Engine owns one state value and three behaviors: a transformer that
// turns each inbound event into a lazy sequence of messages, a consumer that
// performs side effects for every message, and a pure reducer that computes
// the next state. Subscribers are notified when a dispatch changes state.
//
// ARCHITECTURE:
//
// Transactions:
// Every Dispatch call is one transaction. A transaction runs to completion
// before Dispatch returns:
//  1. Validate the event type (ErrInvalidEvent)
//  2. Acquire the in-flight flag (ErrReentrantDispatch if already held)
//  3. Transform the event and pull messages one at a time
//  4. For each message: Consume, then Reduce and commit the new state
//  5. If the state differs structurally from the start of the transaction,
//     run one CHANGE message through Consume and Reduce
//  6. Notify subscribers once
//
// Construction runs the same transaction for a synthetic INIT message, so
// the engine returned by New has already run its initial effects.
//
// Re-entrancy:
// The consumer receives a DispatchOptions bundle whose Dispatch method is
// rejected until the transaction that created it has finished. Follow-on
// events belong in a later turn: call Defer (or Engine.Enqueue) and let Run
// or Drain process them once the current transaction has unwound.
//
// Thread-safety model:
//   - Dispatch, Drain: one transaction at a time; overlapping calls fail
//     with ErrReentrantDispatch rather than interleave
//   - Enqueue, State, Subscribe: safe from any goroutine
//   - Run: at most one goroutine
//
// Errors are never retried and never rolled back: messages reduced before a
// failure stay committed.
package engine
