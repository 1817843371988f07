package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/metrics"
	"github.com/roach88/fluxgear/internal/msgtype"
	"github.com/roach88/fluxgear/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Program     string
	Events      string // event file, "-" for stdin
	Database    string // journal database; empty disables journaling
	Session     string // journal session id; empty generates one
	MaxMessages int
	Metrics     bool

	// Generator overrides the message type tag generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Generator msgtype.Generator
}

// InputEvent is one event read from the events stream.
type InputEvent struct {
	Type    string         `yaml:"type"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// EventFailure is a transaction that ended with an error.
type EventFailure struct {
	Seq   int64  `json:"seq"`
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// RunResult summarizes a run.
type RunResult struct {
	Program      string           `json:"program"`
	Session      string           `json:"session,omitempty"`
	Transactions int              `json:"transactions"`
	Changes      int              `json:"changes"`
	Notified     int              `json:"notified"`
	Failures     []EventFailure   `json:"failures,omitempty"`
	State        ir.Object        `json:"state"`
	Metrics      []metrics.Sample `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <programs-dir>",
		Short: "Run a program over a stream of events",
		Long: `Start the engine with a compiled program and feed it events.

Events are YAML documents, each a single event or a list of events:

  - type: ADD
    payload: { sku: apple }
  - type: CHECKOUT
    payload: { order: o-1 }

They are queued as they are read and dispatched by the engine loop, so
events deferred by effects run in between. The run ends when the input is
exhausted and the queue is empty, or on Ctrl-C.

With --db every transaction and step is journaled to SQLite.

Examples:
  fluxgear run ./programs --program cart --events events.yaml
  fluxgear run ./programs -p cart --db ./fluxgear.db < events.yaml
  fluxgear run ./programs -p cart --events events.yaml --metrics --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Program, "program", "p", "", "program to run (optional when the directory defines one)")
	cmd.Flags().StringVarP(&opts.Events, "events", "e", "-", `event file ("-" reads stdin)`)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database")
	cmd.Flags().StringVar(&opts.Session, "session", "", "journal session id (default: new UUIDv7)")
	cmd.Flags().IntVar(&opts.MaxMessages, "max-messages", 0, "per-transaction message quota (0 = engine default)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report engine metrics")

	return cmd
}

func runEngine(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := formatter.Logger()

	if opts.MaxMessages < 0 {
		return NewExitError(ExitCommandError, "--max-messages must be >= 0")
	}

	input, closeInput, err := openEvents(opts.Events, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open events", err)
	}
	defer closeInput()

	logger.Info("loading program", "dir", dir, "program", opts.Program)
	prog, err := loadProgram(dir, opts.Program)
	if err != nil {
		return err
	}

	gen := opts.Generator
	if gen == nil {
		gen = msgtype.UUIDv7Generator{}
	}
	types := prog.Define(gen)
	cfg, err := prog.Bind(types)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to bind program", err)
	}

	result := &RunResult{Program: prog.Name}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create metrics", err)
	}

	cfg.Logger = logger
	cfg.MaxMessages = opts.MaxMessages
	cfg.Observers = []engine.Observer{collector, engine.ObserverFuncs{
		Complete: func(txn engine.Transaction, out engine.Outcome) {
			result.Transactions++
			if out.Changed {
				result.Changes++
			}
			if out.Err != nil {
				result.Failures = append(result.Failures, EventFailure{
					Seq:   txn.Seq,
					Type:  txn.Event.Type.Name(),
					Code:  string(engine.CodeOf(out.Err)),
					Error: out.Err.Error(),
				})
			}
		},
	}}

	var journal *store.Journal
	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		journal, err = st.NewJournal(context.Background(), store.JournalConfig{
			SessionID: opts.Session,
			Program:   prog.Name,
			Logger:    logger,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		result.Session = journal.Session()
		cfg.Observers = append(cfg.Observers, journal)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "engine init failed", err)
	}
	eng.Subscribe(func() { result.Notified++ })

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run returns once it is cancelled and the queue is empty, so cancelling
	// at end of input still runs everything queued and deferred.
	runCtx, endOfInput := context.WithCancel(ctx)
	defer endOfInput()

	feedDone := make(chan error, 1)
	go func() {
		defer endOfInput()
		feedDone <- feedEvents(input, types, eng, logger)
	}()

	logger.Info("engine running", "program", prog.Name, "session", result.Session)
	if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	var feedErr error
	select {
	case feedErr = <-feedDone:
	default:
		// Interrupted while the feeder was still reading.
	}
	if feedErr != nil {
		return WrapExitError(ExitCommandError, "failed to read events", feedErr)
	}

	result.State = eng.State()
	if opts.Metrics {
		if result.Metrics, err = metrics.Snapshot(reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}
	if journal != nil {
		if err := journal.Err(); err != nil {
			logger.Warn("journal incomplete", "error", err)
		}
	}

	return outputRunResult(formatter, result)
}

// openEvents opens the events file, or stdin for "-".
func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// feedEvents decodes YAML documents from r and queues each event.
// It stops at the first malformed or unknown event.
func feedEvents(r io.Reader, types msgtype.Set, eng *engine.Engine[ir.Object], logger *slog.Logger) error {
	dec := yaml.NewDecoder(r)
	n := 0
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("end of input", "events", n)
				return nil
			}
			return fmt.Errorf("decode: %w", err)
		}

		events, err := decodeEvents(&doc)
		if err != nil {
			return fmt.Errorf("event %d: %w", n, err)
		}
		for _, in := range events {
			ev, err := toEvent(in, types)
			if err != nil {
				return fmt.Errorf("event %d: %w", n, err)
			}
			if !eng.Enqueue(ev) {
				return fmt.Errorf("event %d: engine stopped", n)
			}
			n++
		}
	}
}

// decodeEvents accepts a single event mapping or a list of them.
func decodeEvents(doc *yaml.Node) ([]InputEvent, error) {
	node := doc
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	switch node.Kind {
	case yaml.SequenceNode:
		var events []InputEvent
		if err := node.Decode(&events); err != nil {
			return nil, err
		}
		return events, nil
	case yaml.MappingNode:
		var ev InputEvent
		if err := node.Decode(&ev); err != nil {
			return nil, err
		}
		return []InputEvent{ev}, nil
	default:
		return nil, fmt.Errorf("expected an event or a list of events at line %d", node.Line)
	}
}

// toEvent resolves an input event's type name.
func toEvent(in InputEvent, types msgtype.Set) (engine.Event, error) {
	t, ok := types.Lookup(in.Type)
	if !ok {
		return engine.Event{}, fmt.Errorf("unknown message %q", in.Type)
	}
	if engine.IsReserved(t) {
		return engine.Event{}, fmt.Errorf("%s is reserved for the engine", in.Type)
	}
	payload, err := ir.ObjectFromAny(in.Payload)
	if err != nil {
		return engine.Event{}, fmt.Errorf("payload: %w", err)
	}
	if len(payload) == 0 {
		payload = nil
	}
	return engine.NewMessage(t, payload), nil
}

// outputRunResult prints the summary. Failed transactions exit with code 1.
func outputRunResult(formatter *OutputFormatter, result *RunResult) error {
	var failure error
	if len(result.Failures) > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d transaction(s) failed", len(result.Failures)))
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, Session: result.Session}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    result.Failures[0].Code,
				Message: result.Failures[0].Error,
			}
		}
		if err := writeJSON(formatter.Writer, resp); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	mark := "✓"
	if failure != nil {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s: %d transaction(s), %d changed state, %d failed\n",
		mark, result.Program, result.Transactions, result.Changes, len(result.Failures))
	if result.Session != "" {
		fmt.Fprintf(w, "  session %s\n", result.Session)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(w, "  [%d] %s: %s\n", f.Seq, f.Type, f.Error)
	}

	state, err := ir.MarshalValue(result.State)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nState: %s\n", state)

	if len(result.Metrics) > 0 {
		fmt.Fprintln(w, "\nMetrics:")
		for _, s := range result.Metrics {
			label := ""
			if s.Label != "" {
				label = "{" + s.Label + "}"
			}
			fmt.Fprintf(w, "  %s%s %g\n", s.Name, label, s.Value)
		}
	}
	return failure
}
