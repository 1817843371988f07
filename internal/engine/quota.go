package engine

import (
	"fmt"

	"github.com/roach88/fluxgear/internal/msgtype"
)

// DefaultMaxMessages is the default number of messages one transaction may
// pull from its transformer.
const DefaultMaxMessages = 10000

// messageQuota counts messages pulled within one transaction.
//
// Transformers are lazy and may be unbounded generators; the quota turns a
// runaway generator into an error instead of a hung Dispatch. CHANGE is
// produced by the engine and does not count.
type messageQuota struct {
	limit   int
	current int
}

func newMessageQuota(limit int) *messageQuota {
	return &messageQuota{limit: limit}
}

// Check counts one message and fails once the limit is passed.
func (q *messageQuota) Check(t msgtype.Type) error {
	q.current++
	if q.current > q.limit {
		return &MessagesExceededError{
			Type:     t,
			Messages: q.current,
			Limit:    q.limit,
		}
	}
	return nil
}

// Current returns the number of messages counted so far.
func (q *messageQuota) Current() int {
	return q.current
}

// MessagesExceededError is returned when a transaction's transformer yields
// more messages than the configured limit. Messages reduced before the limit
// was hit stay committed.
type MessagesExceededError struct {
	Type     msgtype.Type // The message that crossed the limit
	Messages int
	Limit    int
}

func (e *MessagesExceededError) Error() string {
	return fmt.Sprintf("transaction exceeded max messages: %d messages > %d limit (at %s)",
		e.Messages, e.Limit, e.Type)
}
