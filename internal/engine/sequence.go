package engine

import (
	"iter"
)

// Sequence is the lazy output of a transformer.
//
// It is pulled with the scanner idiom:
//
//	for seq.Next() {
//	    msg := seq.Message()
//	    ...
//	}
//	if err := seq.Err(); err != nil { ... }
//
// A sequence is finite and cannot be restarted. The engine consumes and
// reduces each message before pulling the next one, so a producer may rely on
// the effects of earlier messages having already happened.
type Sequence interface {
	// Next advances to the next message and reports whether there is one.
	Next() bool

	// Message returns the current message. Valid only after Next returned true.
	Message() Message

	// Err returns the error that ended the sequence, if any.
	Err() error
}

// Stopper is implemented by sequences holding resources that must be
// released when the engine abandons them before exhaustion.
type Stopper interface {
	Stop()
}

// Transformer turns one event into a sequence of messages.
// A nil return is treated as an empty sequence.
type Transformer func(ev Event) Sequence

// Identity is the default transformer: it re-yields the event unchanged.
func Identity(ev Event) Sequence {
	return Of(ev)
}

type sliceSequence struct {
	msgs []Message
	cur  Message
	err  error
}

// Of returns a sequence yielding msgs in order.
func Of(msgs ...Message) Sequence {
	return &sliceSequence{msgs: msgs}
}

// Empty returns a sequence with no messages.
func Empty() Sequence {
	return &sliceSequence{}
}

// Fail returns a sequence that yields nothing and reports err.
func Fail(err error) Sequence {
	return &sliceSequence{err: err}
}

func (s *sliceSequence) Next() bool {
	if len(s.msgs) == 0 {
		return false
	}
	s.cur, s.msgs = s.msgs[0], s.msgs[1:]
	return true
}

func (s *sliceSequence) Message() Message { return s.cur }

func (s *sliceSequence) Err() error {
	if len(s.msgs) > 0 {
		return nil
	}
	return s.err
}

type generatedSequence struct {
	next func() (Message, bool)
	stop func()
	cur  Message
	err  error
	done bool
}

// Generate adapts a generator function into a Sequence.
//
// fn runs as a coroutine: each call to yield hands one message to the engine
// and suspends fn until the engine has consumed and reduced it. yield returns
// false once the engine has given up on the sequence; fn should return
// promptly when that happens. The error fn returns is reported by Err.
//
// Panics inside fn surface from Next and are treated by the engine as
// transform failures.
func Generate(fn func(yield func(Message) bool) error) Sequence {
	g := &generatedSequence{}
	g.next, g.stop = iter.Pull(func(yield func(Message) bool) {
		g.err = fn(yield)
	})
	return g
}

// FromSeq adapts a standard library iterator.
func FromSeq(seq iter.Seq[Message]) Sequence {
	return Generate(func(yield func(Message) bool) error {
		for msg := range seq {
			if !yield(msg) {
				return nil
			}
		}
		return nil
	})
}

func (g *generatedSequence) Next() bool {
	if g.done {
		return false
	}
	msg, ok := g.next()
	if !ok {
		g.done = true
		return false
	}
	g.cur = msg
	return true
}

func (g *generatedSequence) Message() Message { return g.cur }

func (g *generatedSequence) Err() error {
	if !g.done {
		return nil
	}
	return g.err
}

// Stop abandons the generator. Safe to call more than once.
func (g *generatedSequence) Stop() {
	g.done = true
	g.stop()
}

// Collect drains seq into a slice. Intended for tests and tooling; the engine
// itself never collects, because that would break interleaving.
func Collect(seq Sequence) ([]Message, error) {
	if s, ok := seq.(Stopper); ok {
		defer s.Stop()
	}
	var out []Message
	for seq.Next() {
		out = append(out, seq.Message())
	}
	return out, seq.Err()
}
