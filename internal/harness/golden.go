package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fluxgear/internal/ir"
)

// Snapshot captures a scenario execution for golden comparison.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Program      string
	Trace        []TraceEvent
	FinalState   ir.Object
}

// toCanonicalMap converts a Snapshot to plain data for ir.MarshalCanonical,
// which only handles IR types and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"kind": ev.Kind,
			"seq":  ev.Seq,
			"txn":  ev.Txn,
		}
		switch ev.Kind {
		case KindComplete:
			m["outcome"] = ev.Outcome
		default:
			m["type"] = ev.Type
			m["payload"] = ev.Payload
			if ev.Change {
				m["change"] = true
			}
		}
		traceList[i] = m
	}

	state := s.FinalState
	if state == nil {
		state = ir.Object{}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"program":       s.Program,
		"trace":         traceList,
		"final_state":   state,
	}
}

// Marshal returns the snapshot as canonical JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	m := s.toCanonicalMap()
	// ir.Object values inside the map pass through FromAny untouched; a nil
	// payload marshals as {}.
	return ir.MarshalCanonical(m)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run. A snapshot mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snap := Snapshot{
		ScenarioName: scenario.Name,
		Program:      scenario.Program,
		Trace:        result.Trace,
		FinalState:   result.State,
	}
	data, err := snap.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
