package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
)

// JournalConfig configures a Journal.
type JournalConfig struct {
	SessionID string       // defaults to a new UUIDv7
	Program   string       // recorded on the session row
	OpenedSeq int64        // clock value at attach time
	Logger    *slog.Logger // defaults to slog.Default()
}

// Journal writes engine transactions to a Store. It implements
// engine.Observer.
//
// Write failures are logged and remembered (see Err) but never returned to
// the engine: a broken journal must not change what the engine does.
type Journal struct {
	store   *Store
	ctx     context.Context
	session string
	logger  *slog.Logger

	mu     sync.Mutex
	err    error
	digest string // digest of the last journaled step in the open transaction
}

var _ engine.Observer = (*Journal)(nil)

// NewJournal creates a session row and returns a journal bound to it.
// ctx is used for every write the journal makes.
func (s *Store) NewJournal(ctx context.Context, cfg JournalConfig) (*Journal, error) {
	id := cfg.SessionID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		id = u.String()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	err := s.WriteSession(ctx, Session{
		ID:            id,
		Program:       cfg.Program,
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
		OpenedSeq:     cfg.OpenedSeq,
	})
	if err != nil {
		return nil, err
	}

	return &Journal{
		store:   s,
		ctx:     ctx,
		session: id,
		logger:  logger.With("session", id),
	}, nil
}

// Session returns the journal's session id.
func (j *Journal) Session() string {
	return j.session
}

// Err returns every write failure seen so far, joined.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Journal) fail(op string, seq int64, err error) {
	j.logger.Error("journal write failed", "op", op, "seq", seq, "error", err)
	j.mu.Lock()
	j.err = errors.Join(j.err, err)
	j.mu.Unlock()
}

// OnDispatch records the transaction as pending.
func (j *Journal) OnDispatch(txn engine.Transaction) {
	j.mu.Lock()
	j.digest = ""
	j.mu.Unlock()

	err := j.store.BeginTransaction(j.ctx, Transaction{
		SessionID: j.session,
		Seq:       txn.Seq,
		EventType: txn.Event.Type.Name(),
		EventTag:  txn.Event.Type.Tag(),
		Payload:   txn.Event.Payload,
		Init:      txn.Init,
	})
	if err != nil {
		j.fail("begin", txn.Seq, err)
	}
}

// OnStep records one reduced message.
func (j *Journal) OnStep(step engine.Step) {
	rec, err := newStep(j.session, step.Txn, step.Seq, step.Index,
		step.Message.Type.Name(), step.Message.Type.Tag(), step.Message.Payload,
		step.State, step.Change)
	if err == nil {
		err = j.store.WriteStep(j.ctx, rec)
	}
	if err != nil {
		j.fail("step", step.Seq, err)
		return
	}

	j.mu.Lock()
	j.digest = rec.StateDigest
	j.mu.Unlock()
}

// OnComplete stores the outcome.
func (j *Journal) OnComplete(txn engine.Transaction, out engine.Outcome) {
	rec := Transaction{
		SessionID: j.session,
		Seq:       txn.Seq,
		Status:    StatusOK,
		Steps:     out.Steps,
		Changed:   out.Changed,
		Notified:  out.Notified,
	}
	if out.Err != nil {
		rec.Status = StatusFailed
		rec.ErrorCode = string(engine.CodeOf(out.Err))
		rec.Error = out.Err.Error()
	}
	j.mu.Lock()
	rec.StateDigest = j.digest
	j.mu.Unlock()

	if err := j.store.CompleteTransaction(j.ctx, rec); err != nil {
		j.fail("complete", txn.Seq, err)
	}
}
