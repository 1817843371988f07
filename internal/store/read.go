package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/query"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Sessions returns every session, oldest first.
// UUIDv7 ids sort by creation time, so id order is creation order.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program, engine_version, format_version, opened_seq
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Program, &sess.EngineVersion, &sess.FormatVersion, &sess.OpenedSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns one session.
// Returns ErrSessionNotFound if no row matches.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, program, engine_version, format_version, opened_seq
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Program, &sess.EngineVersion, &sess.FormatVersion, &sess.OpenedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	return sess, nil
}

// LatestSession returns the most recently created session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, ErrSessionNotFound
	}
	return sessions[len(sessions)-1], nil
}

var transactionColumns = []string{
	"session_id", "seq", "event_type", "event_tag", "event_payload", "init",
	"status", "steps", "changed", "notified", "error_code", "error", "state_digest",
}

// journalSchema lists what journal queries may name.
var journalSchema = query.Schema{
	"transactions": {
		Columns: transactionColumns,
		Key:     []string{"seq"},
		Text:    []string{"session_id", "event_type", "status"},
	},
}

// TransactionFilter narrows ReadTransactionsWhere. Zero fields match
// everything.
type TransactionFilter struct {
	Types    []string // event type names
	Status   string   // StatusOK, StatusFailed or StatusPending
	Changed  *bool
	SkipInit bool
}

// ReadTransactions returns a session's transactions ordered by seq.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ReadTransactions(ctx context.Context, sessionID string) ([]Transaction, error) {
	return s.ReadTransactionsWhere(ctx, sessionID, TransactionFilter{})
}

// ReadTransactionsByType returns a session's transactions for one event type.
func (s *Store) ReadTransactionsByType(ctx context.Context, sessionID, eventType string) ([]Transaction, error) {
	return s.ReadTransactionsWhere(ctx, sessionID, TransactionFilter{Types: []string{eventType}})
}

// ReadTransactionsWhere returns a session's transactions matching f,
// ordered by seq.
func (s *Store) ReadTransactionsWhere(ctx context.Context, sessionID string, f TransactionFilter) ([]Transaction, error) {
	text, args, err := query.Compile(transactionQuery(sessionID, f), journalSchema)
	if err != nil {
		return nil, fmt.Errorf("build transaction query: %w", err)
	}
	return s.queryTransactions(ctx, text, args...)
}

func transactionQuery(sessionID string, f TransactionFilter) query.Select {
	preds := []query.Predicate{
		query.Equals{Field: "session_id", Value: ir.String(sessionID)},
	}
	if len(f.Types) > 0 {
		values := make([]ir.Value, len(f.Types))
		for i, t := range f.Types {
			values[i] = ir.String(t)
		}
		preds = append(preds, query.In{Field: "event_type", Values: values})
	}
	if f.Status != "" {
		preds = append(preds, query.Equals{Field: "status", Value: ir.String(f.Status)})
	}
	if f.Changed != nil {
		preds = append(preds, query.Equals{Field: "changed", Value: ir.Bool(*f.Changed)})
	}
	if f.SkipInit {
		preds = append(preds, query.Not{Predicate: query.Equals{Field: "init", Value: ir.Bool(true)}})
	}
	return query.Select{
		From:    "transactions",
		Columns: transactionColumns,
		Filter:  query.And{Predicates: preds},
	}
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

func scanTransaction(rows *sql.Rows) (Transaction, error) {
	var (
		txn         Transaction
		payloadJSON string
		init        int
		changed     int
	)
	err := rows.Scan(
		&txn.SessionID, &txn.Seq, &txn.EventType, &txn.EventTag, &payloadJSON, &init,
		&txn.Status, &txn.Steps, &changed, &txn.Notified, &txn.ErrorCode, &txn.Error, &txn.StateDigest,
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	txn.Payload, err = unmarshalPayload(payloadJSON)
	if err != nil {
		return Transaction{}, fmt.Errorf("scan transaction %d: %w", txn.Seq, err)
	}
	txn.Init = init != 0
	txn.Changed = changed != 0
	return txn, nil
}

// ReadSteps returns the steps of one transaction ordered by index.
// A txnSeq of 0 returns every step in the session ordered by seq.
func (s *Store) ReadSteps(ctx context.Context, sessionID string, txnSeq int64) ([]Step, error) {
	query := `
		SELECT session_id, seq, txn_seq, idx, message_type, message_tag, payload, state, canonical, state_digest, change
		FROM steps
		WHERE session_id = ?`
	args := []any{sessionID}
	if txnSeq != 0 {
		query += " AND txn_seq = ?"
		args = append(args, txnSeq)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var (
			st          Step
			payloadJSON string
			canonical   int
			change      int
		)
		err := rows.Scan(&st.SessionID, &st.Seq, &st.Txn, &st.Index, &st.MessageType, &st.MessageTag,
			&payloadJSON, &st.State, &canonical, &st.StateDigest, &change)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Payload, err = unmarshalPayload(payloadJSON)
		if err != nil {
			return nil, fmt.Errorf("scan step %d: %w", st.Seq, err)
		}
		st.Canonical = canonical != 0
		st.Change = change != 0
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}
