package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/msgtype"
	"github.com/roach88/fluxgear/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Program  string // optional - defaults to the program recorded on the session
}

// ReplayMismatch is a transaction whose replayed outcome differs from the
// journal.
type ReplayMismatch struct {
	Seq      int64  `json:"seq"`
	Type     string `json:"type"`
	Field    string `json:"field"` // "status" or "state_digest"
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// ReplayResult holds the replay result for one session.
type ReplayResult struct {
	Session       string           `json:"session"`
	Program       string           `json:"program"`
	Transactions  int              `json:"transactions"`
	Skipped       int              `json:"skipped"` // pending transactions (run interrupted mid-dispatch)
	Deterministic bool             `json:"deterministic"`
	Mismatches    []ReplayMismatch `json:"mismatches,omitempty"`
	StateDigest   string           `json:"state_digest"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <programs-dir>",
		Short: "Replay a journaled session and verify determinism",
		Long: `Re-dispatch every journaled event of a session through a fresh engine
and compare each transaction's status and resulting state digest with
what was recorded.

Events deferred by effects were journaled as transactions of their own,
so replay dispatches them from the journal instead of re-running the
deferral.

Exit codes:
  0 - Replay matched the journal
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  fluxgear replay ./programs --db ./fluxgear.db
  fluxgear replay ./programs --db ./fluxgear.db --session 0192...
  fluxgear replay ./programs --db ./fluxgear.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to replay (default: latest)")
	cmd.Flags().StringVarP(&opts.Program, "program", "p", "", "program to replay with (default: the session's program)")

	return cmd
}

func runReplay(opts *ReplayOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := formatter.Logger()

	st, err := store.OpenReadOnly(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	sess, err := selectSession(ctx, st, opts.Session)
	if err != nil {
		return err
	}

	name := opts.Program
	if name == "" {
		name = sess.Program
	}
	prog, err := loadProgram(dir, name)
	if err != nil {
		return err
	}

	txns, err := st.ReadTransactions(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transactions", err)
	}

	types := prog.Define(msgtype.UUIDv7Generator{})
	cfg, err := prog.Bind(types)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to bind program", err)
	}
	cfg.Logger = logger

	eng, err := engine.New(cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "engine init failed", err)
	}

	formatter.VerboseLog("Replaying session %s (%d transactions)", sess.ID, len(txns))
	result := replaySession(eng, types, txns)
	result.Session = sess.ID
	result.Program = prog.Name

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// selectSession reads the named session, or the latest one when id is empty.
func selectSession(ctx context.Context, st *store.Store, id string) (store.Session, error) {
	var (
		sess store.Session
		err  error
	)
	if id == "" {
		sess, err = st.LatestSession(ctx)
	} else {
		sess, err = st.ReadSession(ctx, id)
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		return store.Session{}, WrapExitError(ExitCommandError, "no session to replay", err)
	}
	if err != nil {
		return store.Session{}, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return sess, nil
}

// replaySession dispatches the journaled events through eng and compares
// outcomes. eng must be freshly created; its INIT transaction is checked
// against the journaled INIT.
func replaySession(eng *engine.Engine[ir.Object], types msgtype.Set, txns []store.Transaction) ReplayResult {
	result := ReplayResult{}

	for _, rec := range txns {
		if rec.Status == store.StatusPending {
			result.Skipped++
			continue
		}
		result.Transactions++

		var dispatchErr error
		if !rec.Init {
			t, ok := types.Lookup(rec.EventType)
			if !ok {
				result.Mismatches = append(result.Mismatches, ReplayMismatch{
					Seq: rec.Seq, Type: rec.EventType, Field: "type",
					Recorded: rec.EventType, Replayed: "unknown to program",
				})
				continue
			}
			dispatchErr = eng.Dispatch(engine.NewMessage(t, rec.Payload))
		}

		status := store.StatusOK
		if dispatchErr != nil {
			status = store.StatusFailed
		}
		if !rec.Init && status != rec.Status {
			result.Mismatches = append(result.Mismatches, ReplayMismatch{
				Seq: rec.Seq, Type: rec.EventType, Field: "status",
				Recorded: rec.Status, Replayed: status,
			})
		}

		// A transaction that reduced nothing records no digest.
		if rec.StateDigest == "" {
			continue
		}
		digest, err := ir.StateDigest(eng.State())
		if err != nil {
			digest = "error: " + err.Error()
		}
		if digest != rec.StateDigest {
			result.Mismatches = append(result.Mismatches, ReplayMismatch{
				Seq: rec.Seq, Type: rec.EventType, Field: "state_digest",
				Recorded: rec.StateDigest, Replayed: digest,
			})
		}
	}

	result.StateDigest, _ = ir.StateDigest(eng.State())
	result.Deterministic = len(result.Mismatches) == 0
	return result
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status:  "ok",
		Data:    result,
		Session: result.Session,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.Deterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay: session %s (program %s)\n", truncateID(result.Session), result.Program)
	fmt.Fprintf(w, "  Transactions: %d\n", result.Transactions)
	if result.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:      %d (pending)\n", result.Skipped)
	}
	if verbose {
		fmt.Fprintf(w, "  State:        %s\n", result.StateDigest)
	}
	fmt.Fprintln(w)

	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "✗ [%d] %s %s: recorded %s, replayed %s\n",
			m.Seq, m.Type, m.Field, truncateID(m.Recorded), truncateID(m.Replayed))
	}

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Replay matches journal")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
