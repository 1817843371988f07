package engine

import (
	"time"
)

// Transaction identifies one run of the pipeline.
type Transaction struct {
	Seq   int64
	Event Event
	Init  bool // The construction-time INIT transaction
}

// Step describes one message after it was consumed and reduced.
type Step struct {
	Txn     int64 // Seq of the owning transaction
	Seq     int64
	Index   int // Position within the transaction, from 0
	Message Message
	State   any // State after the reduce
	Change  bool
}

// Outcome summarizes a finished transaction.
type Outcome struct {
	Steps    int
	Changed  bool
	Notified int
	Err      error
	Duration time.Duration
}

// Observer receives engine lifecycle callbacks. Callbacks run inside the
// transaction, on the dispatching goroutine, so they must not dispatch.
type Observer interface {
	OnDispatch(txn Transaction)
	OnStep(step Step)
	OnComplete(txn Transaction, out Outcome)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Dispatch func(Transaction)
	Step     func(Step)
	Complete func(Transaction, Outcome)
}

func (f ObserverFuncs) OnDispatch(txn Transaction) {
	if f.Dispatch != nil {
		f.Dispatch(txn)
	}
}

func (f ObserverFuncs) OnStep(step Step) {
	if f.Step != nil {
		f.Step(step)
	}
}

func (f ObserverFuncs) OnComplete(txn Transaction, out Outcome) {
	if f.Complete != nil {
		f.Complete(txn, out)
	}
}
