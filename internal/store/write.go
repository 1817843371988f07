package store

import (
	"context"
	"fmt"

	"github.com/roach88/fluxgear/internal/ir"
)

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, program, engine_version, format_version, opened_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Program,
		sess.EngineVersion,
		sess.FormatVersion,
		sess.OpenedSeq,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// BeginTransaction records a dispatch as pending.
// The event payload is serialized to canonical JSON.
//
// Note: The session referenced by SessionID must exist (foreign key constraint).
func (s *Store) BeginTransaction(ctx context.Context, txn Transaction) error {
	payloadJSON, err := marshalPayload(txn.Payload)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(session_id, seq, event_type, event_tag, event_payload, init, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		txn.SessionID,
		txn.Seq,
		txn.EventType,
		txn.EventTag,
		payloadJSON,
		boolToInt(txn.Init),
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	return nil
}

// WriteStep inserts a reduced message with the state it produced.
//
// Note: The transaction referenced by (SessionID, Txn) must exist.
func (s *Store) WriteStep(ctx context.Context, step Step) error {
	payloadJSON, err := marshalPayload(step.Payload)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps
		(session_id, seq, txn_seq, idx, message_type, message_tag, payload, state, canonical, state_digest, change)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		step.SessionID,
		step.Seq,
		step.Txn,
		step.Index,
		step.MessageType,
		step.MessageTag,
		payloadJSON,
		step.State,
		boolToInt(step.Canonical),
		step.StateDigest,
		boolToInt(step.Change),
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}

// CompleteTransaction stores a transaction's outcome.
// Returns an error if the transaction was never begun.
func (s *Store) CompleteTransaction(ctx context.Context, txn Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, steps = ?, changed = ?, notified = ?, error_code = ?, error = ?, state_digest = ?
		WHERE session_id = ? AND seq = ?
	`,
		txn.Status,
		txn.Steps,
		boolToInt(txn.Changed),
		txn.Notified,
		txn.ErrorCode,
		txn.Error,
		txn.StateDigest,
		txn.SessionID,
		txn.Seq,
	)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("complete transaction: no pending transaction %s/%d", txn.SessionID, txn.Seq)
	}
	return nil
}

// newStep builds a Step record, encoding the state.
func newStep(session string, txn, seq int64, index int, typ, tag string, payload ir.Object, state any, change bool) (Step, error) {
	text, canonical, digest, err := marshalState(state)
	if err != nil {
		return Step{}, err
	}
	return Step{
		SessionID:   session,
		Seq:         seq,
		Txn:         txn,
		Index:       index,
		MessageType: typ,
		MessageTag:  tag,
		Payload:     payload,
		State:       text,
		Canonical:   canonical,
		StateDigest: digest,
		Change:      change,
	}, nil
}
