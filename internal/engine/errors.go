package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/fluxgear/internal/msgtype"
)

// Sentinel errors. Every error returned by Dispatch wraps exactly one of
// these (or a user error from a stage), so callers branch with errors.Is.
var (
	// ErrInvalidEvent reports a dispatched event without a type.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidMessage reports a transformer output without a type.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrReentrantDispatch reports a dispatch attempted while another
	// transaction on the same engine is still running.
	ErrReentrantDispatch = errors.New("dispatch while a transaction is in flight")

	// ErrStagePanic reports a panic recovered from transform, consume or reduce.
	ErrStagePanic = errors.New("stage panicked")

	// ErrSubscriberPanic reports a panic recovered from a subscriber.
	ErrSubscriberPanic = errors.New("subscriber panicked")

	// ErrEngineStopped reports a deferred dispatch after Stop.
	ErrEngineStopped = errors.New("engine stopped")
)

// ErrorCode categorizes dispatch failures.
type ErrorCode string

const (
	// CodeInvalidEvent: the event failed validation and never entered the pipeline.
	CodeInvalidEvent ErrorCode = "INVALID_EVENT"

	// CodeReentrantDispatch: another transaction held the engine.
	CodeReentrantDispatch ErrorCode = "REENTRANT_DISPATCH"

	// CodeStageFailed: transform, consume or reduce returned an error or panicked.
	CodeStageFailed ErrorCode = "STAGE_FAILED"

	// CodeMessagesExceeded: the transformer produced more messages than allowed.
	CodeMessagesExceeded ErrorCode = "MESSAGES_EXCEEDED"

	// CodeSubscriberFailed: a subscriber panicked during notification.
	CodeSubscriberFailed ErrorCode = "SUBSCRIBER_FAILED"
)

// DispatchError is the error type returned by Dispatch, Drain and New.
//
// Seq is the logical sequence number of the failed transaction, or 0 when the
// failure happened before a transaction began (validation, re-entrancy).
type DispatchError struct {
	Code    ErrorCode
	Message string
	Type    msgtype.Type
	Seq     int64
	Err     error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if !e.Type.IsZero() && e.Seq != 0 {
		return fmt.Sprintf("%s: %s (type=%s, seq=%d)", e.Code, msg, e.Type, e.Seq)
	}
	if !e.Type.IsZero() {
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, msg, e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Stage names a pipeline stage.
type Stage string

const (
	StageTransform Stage = "transform"
	StageConsume   Stage = "consume"
	StageReduce    Stage = "reduce"
)

// StageError wraps a failure raised by user code inside a stage.
type StageError struct {
	Stage Stage
	Type  msgtype.Type
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Type, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// panicError turns a recovered value into an error wrapping sentinel.
func panicError(sentinel error, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return fmt.Errorf("%w: %v", sentinel, r)
}

// CodeOf returns the code of the first DispatchError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsInvalidEvent reports whether err is a validation failure.
func IsInvalidEvent(err error) bool {
	return errors.Is(err, ErrInvalidEvent)
}

// IsReentrant reports whether err is a re-entrancy rejection.
func IsReentrant(err error) bool {
	return errors.Is(err, ErrReentrantDispatch)
}

// IsStageError reports whether err came from user code inside a stage.
func IsStageError(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}

// IsQuotaError reports whether err is a message quota violation.
func IsQuotaError(err error) bool {
	var qe *MessagesExceededError
	return errors.As(err, &qe)
}
