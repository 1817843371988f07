package engine

import "log/slog"

// DispatchOptions is the bundle handed to every consume call.
//
// Accessors read the engine at call time, so a bundle retained by a
// goroutine sees the current state rather than a snapshot.
type DispatchOptions[S any] struct {
	engine *Engine[S]
}

// State returns the engine's current state.
func (o DispatchOptions[S]) State() S {
	return o.engine.State()
}

// Dependencies returns the map passed in Config.Dependencies.
func (o DispatchOptions[S]) Dependencies() map[string]any {
	return o.engine.cfg.Dependencies
}

// APIProps returns the map passed in Config.APIProps.
func (o DispatchOptions[S]) APIProps() map[string]any {
	return o.engine.cfg.APIProps
}

// Logger returns the engine's logger.
func (o DispatchOptions[S]) Logger() *slog.Logger {
	return o.engine.logger
}

// Dispatch runs ev as a new transaction.
//
// Called from inside the consume call that received the bundle (or anywhere
// else while that transaction is running) it fails with ErrReentrantDispatch.
// Once the transaction has finished the same bundle dispatches normally.
func (o DispatchOptions[S]) Dispatch(ev Event) error {
	return o.engine.Dispatch(ev)
}

// Defer schedules ev on the engine's queue for a later turn (Run or Drain).
// It is always safe to call from a consumer.
func (o DispatchOptions[S]) Defer(ev Event) error {
	if err := ev.Validate(); err != nil {
		return &DispatchError{Code: CodeInvalidEvent, Message: "deferred event has no type", Err: err}
	}
	if !o.engine.Enqueue(ev) {
		return ErrEngineStopped
	}
	return nil
}
