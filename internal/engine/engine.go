package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/fluxgear/internal/msgtype"
)

// Engine is a reactive state engine over state of type S.
//
// INVARIANTS:
//   - At most one transaction runs at a time (dispatching flag)
//   - Messages are consumed then reduced one at a time, in production order
//   - CHANGE runs at most once per transaction and never through Transform
//   - Subscribers are notified once per transaction that changed state
type Engine[S any] struct {
	cfg    Config[S]
	logger *slog.Logger
	clock  *Clock
	cell   stateCell[S]
	subs   registry
	queue  *eventQueue

	dispatching atomic.Bool
	running     atomic.Bool

	// idle is closed and replaced each time dispatching is released.
	idleMu sync.Mutex
	idle   chan struct{}
}

// closedChan is returned by idleSignal when nothing is in flight.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New creates an engine and runs the INIT transaction before returning.
//
// INIT skips validation but otherwise takes the full path: the transformer
// sees it, the consumer and reducer see whatever the transformer yields, and
// a state change triggers CHANGE. A failure during INIT is returned and no
// engine is created.
func New[S any](cfg Config[S]) (*Engine[S], error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	e := &Engine[S]{
		cfg:    cfg,
		logger: cfg.Logger,
		clock:  cfg.Clock,
		queue:  newEventQueue(),
		idle:   make(chan struct{}),
	}
	e.cell.value = cfg.InitialState

	if err := e.transact(Message{Type: Init}, true); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return e, nil
}

// Dispatch runs ev through the pipeline and returns once the transaction,
// including CHANGE and subscriber notification, has finished.
//
// Errors are *DispatchError values. Messages reduced before a failure stay
// committed.
func (e *Engine[S]) Dispatch(ev Event) error {
	if err := validate(ev); err != nil {
		return err
	}
	return e.transact(ev, false)
}

func validate(ev Event) error {
	if err := ev.Validate(); err != nil {
		return &DispatchError{
			Code:    CodeInvalidEvent,
			Message: "event has no type",
			Err:     err,
		}
	}
	return nil
}

// State returns the most recently reduced state.
func (e *Engine[S]) State() S {
	return e.cell.load()
}

// Subscribe registers fn to run after every transaction that changes state.
// The returned function removes it; calling it again is a no-op.
func (e *Engine[S]) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		panic("engine: Subscribe with nil callback")
	}
	return e.subs.add(fn)
}

// Subscribers returns the number of registered subscribers.
func (e *Engine[S]) Subscribers() int {
	return e.subs.len()
}

// Clock returns the engine's logical clock.
func (e *Engine[S]) Clock() *Clock {
	return e.clock
}

// transaction is the per-dispatch bookkeeping.
type transaction struct {
	info    Transaction
	quota   *messageQuota
	steps   int
	changed bool
}

func (e *Engine[S]) transact(ev Event, init bool) error {
	if !e.dispatching.CompareAndSwap(false, true) {
		return &DispatchError{
			Code:    CodeReentrantDispatch,
			Message: "dispatch called while a transaction is in flight",
			Type:    ev.Type,
			Err:     ErrReentrantDispatch,
		}
	}
	defer e.release()
	return e.transactHeld(ev, init)
}

// release clears the in-flight flag and wakes idleSignal waiters.
func (e *Engine[S]) release() {
	e.idleMu.Lock()
	defer e.idleMu.Unlock()
	e.dispatching.Store(false)
	close(e.idle)
	e.idle = make(chan struct{})
}

// idleSignal returns a channel closed once the in-flight transaction ends.
// The channel is already closed when nothing is in flight.
func (e *Engine[S]) idleSignal() <-chan struct{} {
	e.idleMu.Lock()
	defer e.idleMu.Unlock()
	if !e.dispatching.Load() {
		return closedChan
	}
	return e.idle
}

// transactHeld runs one transaction. The caller holds the in-flight flag.
func (e *Engine[S]) transactHeld(ev Event, init bool) (err error) {
	txn := &transaction{
		info:  Transaction{Seq: e.clock.Next(), Event: ev, Init: init},
		quota: newMessageQuota(e.cfg.MaxMessages),
	}
	started := time.Now()
	var notified int

	for _, o := range e.cfg.Observers {
		o.OnDispatch(txn.info)
	}
	defer func() {
		out := Outcome{
			Steps:    txn.steps,
			Changed:  txn.changed,
			Notified: notified,
			Err:      err,
			Duration: time.Since(started),
		}
		for _, o := range e.cfg.Observers {
			o.OnComplete(txn.info, out)
		}
	}()

	e.logger.Debug("transaction started",
		"txn", txn.info.Seq,
		"type", ev.Type.Name(),
		"init", init,
	)

	start := e.cell.load()

	if err := e.run(txn, ev); err != nil {
		return err
	}

	if e.cfg.Equal(start, e.cell.load()) {
		return nil
	}
	txn.changed = true

	// Single level: whatever CHANGE does to the state is not checked again.
	if err := e.step(txn, Message{Type: Change}, true); err != nil {
		return err
	}

	notified, err = e.subs.notify()
	if err != nil {
		e.logger.Error("subscriber failed",
			"txn", txn.info.Seq,
			"notified", notified,
			"error", err,
		)
		return &DispatchError{
			Code:    CodeSubscriberFailed,
			Message: fmt.Sprintf("subscriber %d failed", notified),
			Type:    ev.Type,
			Seq:     txn.info.Seq,
			Err:     err,
		}
	}
	return nil
}

// run pulls messages from the transformer one at a time and steps each.
func (e *Engine[S]) run(txn *transaction, ev Event) error {
	seq, err := transform(e.cfg.Transformer, ev)
	if err != nil {
		return e.stageFailure(txn, StageTransform, ev.Type, err)
	}
	if s, ok := seq.(Stopper); ok {
		defer s.Stop()
	}

	for {
		msg, ok, err := pull(seq)
		if err != nil {
			return e.stageFailure(txn, StageTransform, ev.Type, err)
		}
		if !ok {
			return nil
		}
		if msg.Type.IsZero() {
			return e.stageFailure(txn, StageTransform, ev.Type,
				fmt.Errorf("%w: message %d has no type", ErrInvalidMessage, txn.quota.Current()))
		}
		if err := txn.quota.Check(msg.Type); err != nil {
			e.logger.Error("max messages quota exceeded",
				"txn", txn.info.Seq,
				"type", ev.Type.Name(),
				"limit", e.cfg.MaxMessages,
			)
			return &DispatchError{
				Code:    CodeMessagesExceeded,
				Message: err.Error(),
				Type:    ev.Type,
				Seq:     txn.info.Seq,
				Err:     err,
			}
		}
		if err := e.step(txn, msg, false); err != nil {
			return err
		}
	}
}

// step consumes then reduces one message and commits the result.
func (e *Engine[S]) step(txn *transaction, msg Message, change bool) error {
	opts := DispatchOptions[S]{engine: e}
	if err := consume(e.cfg.Consumer, msg, opts); err != nil {
		return e.stageFailure(txn, StageConsume, msg.Type, err)
	}

	next, err := reduce(e.cfg.Reducer, e.cell.load(), msg)
	if err != nil {
		return e.stageFailure(txn, StageReduce, msg.Type, err)
	}
	e.cell.store(next)

	st := Step{
		Txn:     txn.info.Seq,
		Seq:     e.clock.Next(),
		Index:   txn.steps,
		Message: msg,
		State:   next,
		Change:  change,
	}
	txn.steps++

	e.logger.Debug("message reduced",
		"txn", st.Txn,
		"seq", st.Seq,
		"type", msg.Type.Name(),
		"change", change,
	)
	for _, o := range e.cfg.Observers {
		o.OnStep(st)
	}
	return nil
}

func (e *Engine[S]) stageFailure(txn *transaction, stage Stage, t msgtype.Type, err error) error {
	e.logger.Error("stage failed",
		"txn", txn.info.Seq,
		"stage", stage,
		"type", t.Name(),
		"error", err,
	)
	return &DispatchError{
		Code: CodeStageFailed,
		Type: t,
		Seq:  txn.info.Seq,
		Err:  &StageError{Stage: stage, Type: t, Err: err},
	}
}

func transform(fn Transformer, ev Event) (seq Sequence, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrStagePanic, r)
		}
	}()
	seq = fn(ev)
	if seq == nil {
		seq = Empty()
	}
	return seq, nil
}

func pull(seq Sequence) (msg Message, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrStagePanic, r)
		}
	}()
	if !seq.Next() {
		return Message{}, false, seq.Err()
	}
	return seq.Message(), true, nil
}

func consume[S any](fn Consumer[S], msg Message, opts DispatchOptions[S]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrStagePanic, r)
		}
	}()
	return fn(msg, opts)
}

func reduce[S any](fn Reducer[S], state S, msg Message) (next S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrStagePanic, r)
		}
	}()
	return fn(state, msg), nil
}

// Enqueue submits an event for a later turn. Safe from any goroutine,
// including consumers. Returns false once the engine has been stopped.
func (e *Engine[S]) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting for Run or Drain.
func (e *Engine[S]) QueueLen() int {
	return e.queue.Len()
}

// dispatchNext takes the in-flight flag, then dequeues and dispatches one
// event. When another transaction holds the flag nothing is dequeued and
// busy is a channel closed once that transaction ends. ok is false when the
// queue was empty.
func (e *Engine[S]) dispatchNext() (ev Event, ok bool, busy <-chan struct{}, err error) {
	if !e.dispatching.CompareAndSwap(false, true) {
		return Event{}, false, e.idleSignal(), nil
	}
	defer e.release()

	ev, ok = e.queue.TryDequeue()
	if !ok {
		return Event{}, false, nil, nil
	}
	if err := validate(ev); err != nil {
		return ev, true, nil, err
	}
	return ev, true, nil, e.transactHeld(ev, false)
}

// Drain dispatches queued events in the caller's goroutine until the queue
// is empty, including events deferred while draining. Failures are logged
// and joined; one failing event does not stop the drain. An event is only
// dequeued once Drain holds the in-flight flag, so a dispatch from another
// goroutine makes Drain wait rather than lose the event.
//
// Drain must not overlap a transaction: called from a consumer or subscriber
// it fails with ErrReentrantDispatch without dequeuing anything.
func (e *Engine[S]) Drain() error {
	if e.dispatching.Load() {
		return &DispatchError{
			Code:    CodeReentrantDispatch,
			Message: "drain called while a transaction is in flight",
			Err:     ErrReentrantDispatch,
		}
	}

	var errs []error
	for {
		ev, ok, busy, err := e.dispatchNext()
		if busy != nil {
			<-busy
			continue
		}
		if !ok {
			return errors.Join(errs...)
		}
		if err != nil {
			e.logEventError(ev, err)
			errs = append(errs, err)
		}
	}
}

// Run dispatches queued events until ctx is cancelled or Stop is called.
// Cancellation takes effect once the queue is empty, so everything queued
// before cancel, and everything it defers, is dispatched first. While a
// Dispatch from another goroutine is in flight, queued events wait for it.
// Blocks; at most one Run may be active per engine.
//
// ERROR HANDLING: a failed event is logged with its type and processing
// continues. Retrying would re-run consumer effects.
func (e *Engine[S]) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: Run already active")
	}
	defer e.running.Store(false)

	e.logger.Info("engine starting")

	for {
		ev, ok, busy, err := e.dispatchNext()
		if busy != nil {
			<-busy
			continue
		}
		if ok {
			if err != nil {
				e.logEventError(ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			// An event may have landed between the dequeue and the select.
			if e.queue.Len() > 0 {
				continue
			}
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal may be stale; only a closed and empty queue ends the loop.
			if e.queue.Done() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns after processing what was already
// queued; later Enqueue calls return false. Dispatch keeps working.
func (e *Engine[S]) Stop() {
	e.queue.Close()
}

// logEventError logs a deferred event failure with enough context to replay it.
func (e *Engine[S]) logEventError(ev Event, err error) {
	e.logger.Error("event processing failed",
		"error", err,
		"code", CodeOf(err),
		"type", ev.Type.Name(),
		"tag", ev.Type.Tag(),
		"payload_keys", len(ev.Payload),
	)
}
