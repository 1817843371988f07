package engine

import (
	"io"
	"log/slog"

	"github.com/roach88/fluxgear/internal/msgtype"
	"github.com/roach88/fluxgear/internal/testutil"
)

var types = testutil.Types("EVENT", "MESSAGE1", "MESSAGE2", "MESSAGE3", "PING", "PONG", "TICK", "SLOW")

var (
	tEvent = types.Get("EVENT")
	tMsg1  = types.Get("MESSAGE1")
	tMsg2  = types.Get("MESSAGE2")
	tMsg3  = types.Get("MESSAGE3")
	tPing  = types.Get("PING")
	tPong  = types.Get("PONG")
	tTick  = types.Get("TICK")
	tSlow  = types.Get("SLOW")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorded wraps the stages of cfg so every call lands in r as
// "transform:T", "consume:T" or "reduce:T".
func recorded[S any](r *testutil.Recorder, cfg Config[S]) Config[S] {
	tr := cfg.Transformer
	if tr == nil {
		tr = Identity
	}
	cfg.Transformer = func(ev Event) Sequence {
		r.Record("transform", ev.Type)
		return tr(ev)
	}

	co := cfg.Consumer
	cfg.Consumer = func(m Message, o DispatchOptions[S]) error {
		r.Record("consume", m.Type)
		if co != nil {
			return co(m, o)
		}
		return nil
	}

	re := cfg.Reducer
	cfg.Reducer = func(s S, m Message) S {
		r.Record("reduce", m.Type)
		if re != nil {
			return re(s, m)
		}
		return s
	}

	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return cfg
}

// countOn returns a reducer that increments the state for messages of type t.
func countOn(ts ...msgtype.Type) Reducer[int] {
	return func(s int, m Message) int {
		for _, t := range ts {
			if t == m.Type {
				return s + 1
			}
		}
		return s
	}
}
