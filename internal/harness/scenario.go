package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
)

// Scenario is a conformance test: a flow of signed calls and assertions
// over the resulting trace, log and state.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Policy selects the key policy; empty means per-submitter.
	Policy string `yaml:"policy,omitempty"`

	// TTLLedgers overrides the record TTL horizon.
	TTLLedgers uint32 `yaml:"ttl_ledgers,omitempty"`

	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one signed create or update.
type FlowStep struct {
	Op        string `yaml:"op"`
	As        string `yaml:"as"`
	Submitter string `yaml:"submitter,omitempty"`

	// Video names a video; VideoHash passes a raw hash string instead.
	Video     string `yaml:"video,omitempty"`
	VideoHash string `yaml:"video_hash,omitempty"`

	AI    bool   `yaml:"ai,omitempty"`
	Score int64  `yaml:"score"`
	Nonce *int64 `yaml:"nonce,omitempty"`

	// Expect, if set, is checked against the receipt.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes the expected receipt, or the expected host error.
type ExpectClause struct {
	Outcome string         `yaml:"outcome,omitempty"`
	Result  map[string]any `yaml:"result,omitempty"`
	Error   string         `yaml:"error,omitempty"`
}

// Assertion checks the state after the flow.
type Assertion struct {
	Type string `yaml:"type"`

	Video     string         `yaml:"video,omitempty"`
	Submitter string         `yaml:"submitter,omitempty"`
	Expect    map[string]any `yaml:"expect,omitempty"`
	Absent    bool           `yaml:"absent,omitempty"`

	Topic   string `yaml:"topic,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
	Count   int64  `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertRecord   = "record"
	AssertCount    = "count"
	AssertEvents   = "events"
	AssertOutcomes = "outcomes"
	AssertReplay   = "replay"
)

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := ledger.ParsePolicy(s.Policy); err != nil {
		return err
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	for i, step := range s.Flow {
		if !ir.ValidOps[ir.Op(step.Op)] {
			return fmt.Errorf("flow[%d]: op must be create or update, got %q", i, step.Op)
		}
		if step.As == "" {
			return fmt.Errorf("flow[%d]: as is required", i)
		}
		if (step.Video == "") == (step.VideoHash == "") {
			return fmt.Errorf("flow[%d]: exactly one of video and video_hash is required", i)
		}
		if step.Expect != nil && (step.Expect.Outcome == "") == (step.Expect.Error == "") {
			return fmt.Errorf("flow[%d].expect: exactly one of outcome and error is required", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertRecord:
		if a.Video == "" || a.Submitter == "" {
			return fmt.Errorf("assertions[%d]: video and submitter are required for record", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for record", index)
		}
	case AssertEvents:
		if a.Topic == "" {
			return fmt.Errorf("assertions[%d]: topic is required for events", index)
		}
	case AssertOutcomes:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for outcomes", index)
		}
	case AssertCount, AssertReplay:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
