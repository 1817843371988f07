package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string   // optional - defaults to the latest session
	Types    []string // optional - filter to these event types
	Status   string   // optional - ok, failed or pending
	Changed  bool     // with ChangedSet, keep only (un)changed transactions
	SkipInit bool

	ChangedSet bool
}

// TraceStep is one reduced message inside a transaction.
type TraceStep struct {
	Seq     int64          `json:"seq"`
	Index   int            `json:"index"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Change  bool           `json:"change,omitempty"`
	Digest  string         `json:"state_digest"`
}

// TraceTransaction is one dispatched event and its steps.
type TraceTransaction struct {
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Init      bool           `json:"init,omitempty"`
	Status    string         `json:"status"`
	ErrorCode string         `json:"error_code,omitempty"`
	Error     string         `json:"error,omitempty"`
	Steps     []TraceStep    `json:"steps"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string             `json:"session"`
	Program  string             `json:"program,omitempty"`
	Timeline []TraceTransaction `json:"timeline"`
	Stats    TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Transactions int `json:"transactions"`
	Steps        int `json:"steps"`
	Changes      int `json:"changes"`
	Failed       int `json:"failed"`
	Pending      int `json:"pending"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled timeline of a session",
		Long: `Show what a journaled run did, transaction by transaction.

The output includes:
- Timeline: each dispatched event in seq order, with its status
- Steps: the messages each transaction reduced (with --verbose)
- Stats: summary counts for the session

Examples:
  fluxgear trace --db ./fluxgear.db
  fluxgear trace --db ./fluxgear.db --session 0192... --type CHECKOUT
  fluxgear trace --db ./fluxgear.db --status failed
  fluxgear trace --db ./fluxgear.db --changed --skip-init
  fluxgear trace --db ./fluxgear.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ChangedSet = cmd.Flags().Changed("changed")
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (default: latest)")
	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "filter to event types (repeatable)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (ok|failed|pending)")
	cmd.Flags().BoolVar(&opts.Changed, "changed", false, "only transactions that changed state (--changed=false for the rest)")
	cmd.Flags().BoolVar(&opts.SkipInit, "skip-init", false, "omit the INIT transaction")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.OpenReadOnly(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess, err := selectSession(ctx, st, opts.Session)
	if err != nil {
		return err
	}

	filter, err := traceFilter(opts)
	if err != nil {
		return err
	}
	txns, err := st.ReadTransactionsWhere(ctx, sess.ID, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transactions", err)
	}

	result, err := buildTrace(ctx, st, sess, txns)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read steps", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, Session: sess.ID})
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// traceFilter converts the filter flags.
func traceFilter(opts *TraceOptions) (store.TransactionFilter, error) {
	f := store.TransactionFilter{
		Types:    opts.Types,
		Status:   opts.Status,
		SkipInit: opts.SkipInit,
	}
	switch opts.Status {
	case "", store.StatusOK, store.StatusFailed, store.StatusPending:
	default:
		return f, NewExitError(ExitCommandError, fmt.Sprintf("invalid --status %q: must be ok, failed or pending", opts.Status))
	}
	if opts.ChangedSet {
		changed := opts.Changed
		f.Changed = &changed
	}
	return f, nil
}

// buildTrace joins each transaction with its steps.
func buildTrace(ctx context.Context, st *store.Store, sess store.Session, txns []store.Transaction) (TraceResult, error) {
	result := TraceResult{
		Session:  sess.ID,
		Program:  sess.Program,
		Timeline: make([]TraceTransaction, 0, len(txns)),
	}

	for _, txn := range txns {
		steps, err := st.ReadSteps(ctx, sess.ID, txn.Seq)
		if err != nil {
			return TraceResult{}, err
		}

		tt := TraceTransaction{
			Seq:       txn.Seq,
			Type:      txn.EventType,
			Payload:   payloadMap(txn.Payload),
			Init:      txn.Init,
			Status:    txn.Status,
			ErrorCode: txn.ErrorCode,
			Error:     txn.Error,
			Steps:     make([]TraceStep, 0, len(steps)),
		}
		for _, s := range steps {
			tt.Steps = append(tt.Steps, TraceStep{
				Seq:     s.Seq,
				Index:   s.Index,
				Type:    s.MessageType,
				Payload: payloadMap(s.Payload),
				Change:  s.Change,
				Digest:  s.StateDigest,
			})
		}

		result.Timeline = append(result.Timeline, tt)
		result.Stats.Transactions++
		result.Stats.Steps += len(steps)
		if txn.Changed {
			result.Stats.Changes++
		}
		switch txn.Status {
		case store.StatusFailed:
			result.Stats.Failed++
		case store.StatusPending:
			result.Stats.Pending++
		}
	}
	return result, nil
}

func payloadMap(obj ir.Object) map[string]any {
	if len(obj) == 0 {
		return nil
	}
	m, _ := ir.ToAny(obj).(map[string]any)
	return m
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for session: %s\n", truncateID(result.Session))
	if result.Program != "" {
		fmt.Fprintf(w, "Program: %s\n", result.Program)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no transactions)")
	}
	for _, txn := range result.Timeline {
		formatTransaction(w, txn, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Transactions: %d\n", result.Stats.Transactions)
	fmt.Fprintf(w, "  Steps:        %d\n", result.Stats.Steps)
	fmt.Fprintf(w, "  Changes:      %d\n", result.Stats.Changes)
	fmt.Fprintf(w, "  Failed:       %d\n", result.Stats.Failed)
	if result.Stats.Pending > 0 {
		fmt.Fprintf(w, "  Pending:      %d\n", result.Stats.Pending)
	}

	return nil
}

// formatTransaction formats a single transaction for text output.
func formatTransaction(w io.Writer, txn TraceTransaction, verbose bool) {
	mark := "✓"
	switch txn.Status {
	case store.StatusFailed:
		mark = "✗"
	case store.StatusPending:
		mark = "…"
	}

	fmt.Fprintf(w, "  [%d] %s %s %s\n", txn.Seq, mark, txn.Type, formatArgs(txn.Payload))
	if txn.Error != "" {
		fmt.Fprintf(w, "       Error: %s (%s)\n", txn.Error, txn.ErrorCode)
	}
	if !verbose {
		return
	}
	for _, s := range txn.Steps {
		fmt.Fprintf(w, "       %d. %s %s -> %s\n", s.Index, s.Type, formatArgs(s.Payload), truncateID(s.Digest))
	}
}

// formatArgs formats a payload map for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
