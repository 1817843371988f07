package engine

import (
	"fmt"
	"log/slog"
)

// Consumer performs side effects for one message. It runs before the
// message is reduced, so opts.State() is the pre-reduce value.
// A returned error aborts the transaction.
type Consumer[S any] func(msg Message, opts DispatchOptions[S]) error

// Reducer computes the next state. It must not mutate its input.
type Reducer[S any] func(state S, msg Message) S

// Config configures an engine. The zero value is valid: an identity
// pipeline over the zero value of S.
type Config[S any] struct {
	// Transformer maps each event to messages. Defaults to Identity.
	Transformer Transformer

	// Consumer runs per message. Defaults to a no-op.
	Consumer Consumer[S]

	// Reducer runs per message. Defaults to returning the state unchanged.
	Reducer Reducer[S]

	InitialState S

	// Dependencies and APIProps are handed to every consume call unchanged.
	Dependencies map[string]any
	APIProps     map[string]any

	// Equal decides whether a transaction changed the state.
	// Defaults to DeepEqual.
	Equal func(a, b S) bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	Observers []Observer

	// MaxMessages bounds the messages one transaction may pull from its
	// transformer. 0 means DefaultMaxMessages.
	MaxMessages int

	// Clock stamps transactions and steps. Defaults to a fresh clock.
	Clock *Clock
}

func (c Config[S]) withDefaults() (Config[S], error) {
	if c.MaxMessages < 0 {
		return c, fmt.Errorf("max messages must be >= 0, got %d", c.MaxMessages)
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.Transformer == nil {
		c.Transformer = Identity
	}
	if c.Consumer == nil {
		c.Consumer = func(Message, DispatchOptions[S]) error { return nil }
	}
	if c.Reducer == nil {
		c.Reducer = func(s S, _ Message) S { return s }
	}
	if c.Equal == nil {
		c.Equal = DeepEqual[S]
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = NewClock()
	}
	for i, o := range c.Observers {
		if o == nil {
			return c, fmt.Errorf("observer %d is nil", i)
		}
	}
	return c, nil
}
