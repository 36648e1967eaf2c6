package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	Policy       ledger.Policy
	Trace        []TraceEvent
}

func (s TraceSnapshot) object() ir.Object {
	trace := make(ir.Array, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = ev.object()
	}
	policy := s.Policy
	if policy == "" {
		policy = ledger.PolicyPerSubmitter
	}
	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"policy":        ir.String(string(policy)),
		"trace":         trace,
	}
}

// MarshalTrace renders the canonical golden bytes for a run.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	snap := TraceSnapshot{
		ScenarioName: scenario.Name,
		Policy:       ledger.Policy(scenario.Policy),
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snap.object())
}

// RunWithGolden runs scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	data, err := MarshalTrace(scenario, result)
	if err != nil {
		return nil, err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}
