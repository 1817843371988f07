package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/msgtype"
)

var (
	types = msgtype.DefineWith(msgtype.NewSequenceGenerator("journal"), "INC", "BOOM")
	tInc  = types.Get("INC")
	tBoom = types.Get("BOOM")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counterEngine wires a journal into an engine counting INC messages.
func counterEngine(t *testing.T, s *Store) (*engine.Engine[int], *Journal) {
	t.Helper()
	j, err := s.NewJournal(context.Background(), JournalConfig{
		SessionID: "session-1",
		Program:   "counter",
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	e, err := engine.New(engine.Config[int]{
		Consumer: func(msg engine.Message, _ engine.DispatchOptions[int]) error {
			if msg.Type == tBoom {
				return errors.New("boom")
			}
			return nil
		},
		Reducer: func(n int, msg engine.Message) int {
			if msg.Type == tInc {
				return n + 1
			}
			return n
		},
		Logger:    quietLogger(),
		Observers: []engine.Observer{j},
	})
	require.NoError(t, err)
	return e, j
}

func TestJournal_RecordsTransactions(t *testing.T) {
	s := createTestStore(t)
	e, j := counterEngine(t, s)
	ctx := context.Background()

	require.NoError(t, e.Dispatch(engine.NewMessage(tInc, ir.Object{"by": ir.Int(1)})))
	require.Error(t, e.Dispatch(engine.NewMessage(tBoom, nil)))
	require.NoError(t, j.Err())

	txns, err := s.ReadTransactions(ctx, j.Session())
	require.NoError(t, err)
	require.Len(t, txns, 3)

	initTxn := txns[0]
	assert.Equal(t, int64(1), initTxn.Seq)
	assert.Equal(t, "INIT", initTxn.EventType)
	assert.True(t, initTxn.Init)
	assert.Equal(t, StatusOK, initTxn.Status)
	assert.Equal(t, 1, initTxn.Steps)
	assert.False(t, initTxn.Changed)
	assert.Equal(t, ir.MustStateDigest(0), initTxn.StateDigest)

	inc := txns[1]
	assert.Equal(t, int64(3), inc.Seq)
	assert.Equal(t, "INC", inc.EventType)
	assert.Equal(t, tInc.Tag(), inc.EventTag)
	assert.Equal(t, ir.Object{"by": ir.Int(1)}, inc.Payload)
	assert.Equal(t, StatusOK, inc.Status)
	assert.Equal(t, 2, inc.Steps)
	assert.True(t, inc.Changed)
	assert.Equal(t, ir.MustStateDigest(1), inc.StateDigest)

	boom := txns[2]
	assert.Equal(t, int64(6), boom.Seq)
	assert.Equal(t, StatusFailed, boom.Status)
	assert.Equal(t, string(engine.CodeStageFailed), boom.ErrorCode)
	assert.Contains(t, boom.Error, "boom")
	assert.Equal(t, 0, boom.Steps)
	assert.Empty(t, boom.StateDigest)
	assert.Equal(t, ir.Object{}, boom.Payload)
}

func TestJournal_RecordsSteps(t *testing.T) {
	s := createTestStore(t)
	e, j := counterEngine(t, s)
	ctx := context.Background()

	require.NoError(t, e.Dispatch(engine.NewMessage(tInc, nil)))

	steps, err := s.ReadSteps(ctx, j.Session(), 3)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, "INC", steps[0].MessageType)
	assert.Equal(t, int64(4), steps[0].Seq)
	assert.Equal(t, 0, steps[0].Index)
	assert.Equal(t, "1", steps[0].State)
	assert.True(t, steps[0].Canonical)
	assert.False(t, steps[0].Change)

	assert.Equal(t, "CHANGE", steps[1].MessageType)
	assert.Equal(t, int64(5), steps[1].Seq)
	assert.Equal(t, 1, steps[1].Index)
	assert.True(t, steps[1].Change)

	all, err := s.ReadSteps(ctx, j.Session(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "INIT", all[0].MessageType)
}

func TestJournal_FilterByType(t *testing.T) {
	s := createTestStore(t)
	e, j := counterEngine(t, s)

	for range 3 {
		require.NoError(t, e.Dispatch(engine.NewMessage(tInc, nil)))
	}

	txns, err := s.ReadTransactionsByType(context.Background(), j.Session(), "INC")
	require.NoError(t, err)
	require.Len(t, txns, 3)
	for i := 1; i < len(txns); i++ {
		assert.Less(t, txns[i-1].Seq, txns[i].Seq)
	}
}

func TestJournal_FilterWhere(t *testing.T) {
	s := createTestStore(t)
	e, j := counterEngine(t, s)
	ctx := context.Background()

	require.NoError(t, e.Dispatch(engine.NewMessage(tInc, nil)))
	require.Error(t, e.Dispatch(engine.NewMessage(tBoom, nil)))
	require.NoError(t, e.Dispatch(engine.NewMessage(tInc, nil)))

	changed := true
	unchanged := false
	tests := []struct {
		name   string
		filter TransactionFilter
		want   []string
	}{
		{"all", TransactionFilter{}, []string{"INIT", "INC", "BOOM", "INC"}},
		{"skip_init", TransactionFilter{SkipInit: true}, []string{"INC", "BOOM", "INC"}},
		{"failed", TransactionFilter{Status: StatusFailed}, []string{"BOOM"}},
		{"changed", TransactionFilter{Changed: &changed}, []string{"INC", "INC"}},
		{"unchanged", TransactionFilter{Changed: &unchanged, SkipInit: true}, []string{"BOOM"}},
		{"types", TransactionFilter{Types: []string{"BOOM", "INIT"}}, []string{"INIT", "BOOM"}},
		{"no_match", TransactionFilter{Types: []string{"NOPE"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns, err := s.ReadTransactionsWhere(ctx, j.Session(), tt.filter)
			require.NoError(t, err)

			got := make([]string, len(txns))
			for i, txn := range txns {
				got[i] = txn.EventType
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJournal_Sessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.NewJournal(ctx, JournalConfig{Program: "a", Logger: quietLogger()})
	require.NoError(t, err)
	second, err := s.NewJournal(ctx, JournalConfig{Program: "b", Logger: quietLogger()})
	require.NoError(t, err)
	assert.NotEqual(t, first.Session(), second.Session())

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ir.EngineVersion, sessions[0].EngineVersion)
	assert.Equal(t, ir.FormatVersion, sessions[0].FormatVersion)

	latest, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Session(), latest.ID)
	assert.Equal(t, "b", latest.Program)

	got, err := s.ReadSession(ctx, first.Session())
	require.NoError(t, err)
	assert.Equal(t, "a", got.Program)

	_, err = s.ReadSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJournal_EmptyStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LatestSession(ctx)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	txns, err := s.ReadTransactions(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, txns)
	assert.Empty(t, txns)
}

func TestJournal_WriteFailureDoesNotReachEngine(t *testing.T) {
	s := createTestStore(t)
	e, j := counterEngine(t, s)

	require.NoError(t, s.Close())

	// The engine keeps working; the journal collects the failures.
	require.NoError(t, e.Dispatch(engine.NewMessage(tInc, nil)))
	assert.Equal(t, 1, e.State())
	assert.Error(t, j.Err())
}

func TestJournal_NonCanonicalState(t *testing.T) {
	type cart struct {
		Items []string `json:"items"`
	}

	s := createTestStore(t)
	j, err := s.NewJournal(context.Background(), JournalConfig{SessionID: "structs", Logger: quietLogger()})
	require.NoError(t, err)

	_, err = engine.New(engine.Config[cart]{
		InitialState: cart{Items: []string{"apple"}},
		Logger:       quietLogger(),
		Observers:    []engine.Observer{j},
	})
	require.NoError(t, err)
	require.NoError(t, j.Err())

	steps, err := s.ReadSteps(context.Background(), "structs", 0)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.False(t, steps[0].Canonical)
	assert.JSONEq(t, `{"items":["apple"]}`, steps[0].State)
}

func TestCompleteTransaction_Unknown(t *testing.T) {
	s := createTestStore(t)
	err := s.CompleteTransaction(context.Background(), Transaction{SessionID: "x", Seq: 9, Status: StatusOK})
	assert.Error(t, err)
}
