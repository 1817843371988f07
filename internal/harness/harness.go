package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/fluxgear/internal/compiler"
	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/metrics"
	"github.com/roach88/fluxgear/internal/msgtype"
	"github.com/roach88/fluxgear/internal/rules"
	"github.com/roach88/fluxgear/internal/store"
)

// Harness is the test execution engine for one scenario.
type Harness struct {
	store   *store.Store
	journal *store.Journal
	engine  *engine.Engine[ir.Object]
	types   msgtype.Set
	logger  *slog.Logger
}

// Options tunes a scenario run. The zero value discards logs and
// collects no metrics.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Run executes a test scenario with logging discarded.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(scenario, Options{})
}

// RunWithLogger executes a test scenario, logging to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	return RunWithOptions(scenario, Options{Logger: logger})
}

// RunWithOptions executes a test scenario and returns the result.
//
// Each scenario runs against a fresh engine journaled to an in-memory
// database. Message types are minted with a sequence generator and the
// engine's logical clock starts at zero, so traces are reproducible.
//
// Execution flow:
//  1. Load, validate and bind the program
//  2. Create the engine (runs INIT)
//  3. Execute steps, checking expected errors
//  4. Evaluate assertions against trace, state and journal
//
// The returned error reports a scenario that could not run at all; step and
// assertion failures are recorded on the Result instead.
func RunWithOptions(scenario *Scenario, opts Options) (*Result, error) {
	ctx := context.Background()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	prog, err := loadProgram(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	journal, err := st.NewJournal(ctx, store.JournalConfig{
		SessionID: "scenario:" + scenario.Name,
		Program:   prog.Name,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	types := prog.Define(msgtype.NewSequenceGenerator(scenario.Name))
	cfg, err := prog.Bind(types)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Session = journal.Session()
	cfg.Logger = logger
	cfg.MaxMessages = scenario.MaxMessages
	cfg.Observers = []engine.Observer{&tracer{result: result}, journal}
	if opts.Metrics != nil {
		cfg.Observers = append(cfg.Observers, opts.Metrics)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	eng.Subscribe(func() { result.Notified++ })

	h := &Harness{
		store:   st,
		journal: journal,
		engine:  eng,
		types:   types,
		logger:  logger,
	}

	for i, step := range scenario.Steps {
		if err := h.runStep(i, step, result); err != nil {
			return nil, err
		}
	}
	result.State = eng.State()

	if err := journal.Err(); err != nil {
		result.AddError(fmt.Sprintf("journal: %v", err))
	}

	actx := &AssertionContext{
		Store:   st,
		Ctx:     ctx,
		Session: journal.Session(),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors),
	)
	return result, nil
}

// runStep executes one step and records a mismatch against ExpectError.
func (h *Harness) runStep(i int, step Step, result *Result) error {
	var err error
	switch {
	case step.Dispatch != nil:
		ev, evErr := h.event(i, *step.Dispatch, step.Payload)
		if evErr != nil {
			return evErr
		}
		err = h.engine.Dispatch(ev)

	case step.Enqueue != nil:
		ev, evErr := h.event(i, *step.Enqueue, step.Payload)
		if evErr != nil {
			return evErr
		}
		if !h.engine.Enqueue(ev) {
			return fmt.Errorf("steps[%d]: queue closed", i)
		}

	case step.Drain:
		err = h.engine.Drain()
	}

	h.logger.Debug("step executed",
		"step", i,
		"error", err,
	)

	if msg := checkExpectedError(step.ExpectError, err); msg != "" {
		result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
	}
	return nil
}

// event builds an event from a step. An empty name yields a typeless event.
func (h *Harness) event(i int, name string, payload map[string]any) (engine.Event, error) {
	if name == "" {
		return engine.Event{}, nil
	}
	t, ok := h.types.Lookup(name)
	if !ok {
		return engine.Event{}, fmt.Errorf("steps[%d]: unknown message %q", i, name)
	}
	if len(payload) == 0 {
		return engine.NewMessage(t, nil), nil
	}
	obj, err := ir.ObjectFromAny(payload)
	if err != nil {
		return engine.Event{}, fmt.Errorf("steps[%d]: payload: %w", i, err)
	}
	return engine.NewMessage(t, obj), nil
}

// checkExpectedError returns a failure message, or "" when err matches.
func checkExpectedError(expect string, err error) string {
	if expect == "" {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	}
	if err == nil {
		return fmt.Sprintf("expected %s error, got none", expect)
	}

	var match bool
	switch expect {
	case ErrorInvalidEvent:
		match = engine.IsInvalidEvent(err)
	case ErrorReentrant:
		match = engine.IsReentrant(err)
	case ErrorStage:
		match = engine.IsStageError(err)
	case ErrorQuota:
		match = engine.IsQuotaError(err)
	}
	if !match {
		return fmt.Sprintf("expected %s error, got: %v", expect, err)
	}
	return ""
}

// loadProgram compiles every spec directory and selects the scenario's program.
func loadProgram(scenario *Scenario) (*rules.Program, error) {
	all := &compiler.LoadResult{}
	for _, spec := range scenario.Specs {
		dir := spec
		if info, err := os.Stat(spec); err == nil && !info.IsDir() {
			dir = filepath.Dir(spec)
		}
		res, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
		if len(errs) > 0 {
			return nil, fmt.Errorf("loading %s: %w", spec, errors.Join(errs...))
		}
		all.Programs = append(all.Programs, res.Programs...)
	}

	prog, err := all.Program(scenario.Program)
	if err != nil {
		return nil, err
	}

	if verrs := compiler.Validate(prog); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return nil, fmt.Errorf("program %s is invalid:\n  %s", prog.Name, strings.Join(msgs, "\n  "))
	}
	return prog, nil
}

// tracer records engine callbacks into a Result.
type tracer struct {
	result *Result
}

func (t *tracer) OnDispatch(txn engine.Transaction) {
	t.result.Trace = append(t.result.Trace, TraceEvent{
		Kind:    KindDispatch,
		Seq:     txn.Seq,
		Txn:     txn.Seq,
		Type:    txn.Event.Type.Name(),
		Payload: txn.Event.Payload,
	})
}

func (t *tracer) OnStep(step engine.Step) {
	t.result.Trace = append(t.result.Trace, TraceEvent{
		Kind:    KindMessage,
		Seq:     step.Seq,
		Txn:     step.Txn,
		Type:    step.Message.Type.Name(),
		Payload: step.Message.Payload,
		Change:  step.Change,
	})
}

func (t *tracer) OnComplete(txn engine.Transaction, out engine.Outcome) {
	if out.Changed {
		t.result.Changes++
	}
	t.result.Trace = append(t.result.Trace, TraceEvent{
		Kind:    KindComplete,
		Seq:     txn.Seq,
		Txn:     txn.Seq,
		Outcome: metrics.Outcome(out.Err),
	})
}
