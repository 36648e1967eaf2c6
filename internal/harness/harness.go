package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/vidproof/internal/host"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/store"
	"github.com/roach88/vidproof/internal/testutil"
)

// Harness holds one scenario execution.
type Harness struct {
	host     *host.Host
	log      *store.Store
	options  []ledger.Option
	nonces   map[string]int64
	scenario *Scenario
}

// ledgerOptions returns the contract options the scenario selects.
func (s *Scenario) ledgerOptions() ([]ledger.Option, error) {
	policy, err := ledger.ParsePolicy(s.Policy)
	if err != nil {
		return nil, err
	}
	opts := []ledger.Option{ledger.WithPolicy(policy)}
	if s.TTLLedgers > 0 {
		opts = append(opts, ledger.WithTTL(ledger.TTL{Threshold: s.TTLLedgers, ExtendTo: s.TTLLedgers}))
	}
	return opts, nil
}

// Run executes scenario against a fresh host and returns the trace and any
// expectation or assertion failures. An error means the scenario could not
// be executed at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	opts, err := scenario.ledgerOptions()
	if err != nil {
		return nil, err
	}
	log, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory log: %w", err)
	}
	defer log.Close()

	tokens := make([]string, len(scenario.Flow))
	for i := range tokens {
		tokens[i] = fmt.Sprintf("%s-%d", scenario.Name, i+1)
	}
	h := &Harness{
		host: host.New(state.NewMemory(), ledger.New(opts...),
			host.WithLog(log),
			host.WithTimeSource(testutil.NewLedgerTime()),
			host.WithTokenGenerator(host.NewFixedGenerator(tokens...)),
		),
		log:      log,
		options:  opts,
		nonces:   make(map[string]int64),
		scenario: scenario,
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.host.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i+1, err)
		}
	}
	for _, msg := range h.evaluateAssertions(ctx, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) nextNonce(step FlowStep) int64 {
	if step.Nonce != nil {
		return *step.Nonce
	}
	h.nonces[step.As]++
	return h.nonces[step.As]
}

func (h *Harness) executeStep(ctx context.Context, n int, step FlowStep, result *Result) error {
	submitterName := step.Submitter
	if submitterName == "" {
		submitterName = step.As
	}
	video, videoHash := step.Video, step.VideoHash
	if video != "" {
		videoHash = testutil.Video(video).String()
	} else {
		video = videoHash
	}

	call := ledger.Call{
		Op:              ir.Op(step.Op),
		Submitter:       testutil.AccountFromName(submitterName).Address().String(),
		VideoHash:       videoHash,
		IsAIGenerated:   step.AI,
		ConfidenceScore: step.Score,
	}
	nonce := h.nextNonce(step)
	tx, err := host.SignTransaction(testutil.AccountFromName(step.As), call, nonce)
	if err != nil {
		return err
	}

	ev := TraceEvent{
		Step:      n,
		Op:        step.Op,
		Signer:    step.As,
		Submitter: submitterName,
		Video:     video,
		IsAI:      step.AI,
		Score:     step.Score,
		Nonce:     nonce,
	}
	receipt, err := h.host.Submit(ctx, tx)
	var hostErr *host.Error
	switch {
	case errors.As(err, &hostErr):
		ev.Error = string(hostErr.Code)
	case err != nil:
		return err
	default:
		ev.Ledger = receipt.Ledger
		ev.Timestamp = receipt.Timestamp
		ev.Outcome = receipt.Outcome
		ev.Code = receipt.Code
		ev.Result = ir.Object{}
		for k, v := range receipt.Result {
			if msg, ok := v.(ir.String); ok && k == "message" {
				ev.Message = string(msg)
				continue
			}
			ev.Result[k] = v
		}
		for _, e := range receipt.Events {
			ev.Events = append(ev.Events, e.Topic)
		}
	}
	result.Trace = append(result.Trace, ev)

	slog.Debug("scenario step",
		"scenario", h.scenario.Name,
		"step", n,
		"op", step.Op,
		"outcome", ev.Outcome,
		"error", ev.Error,
	)

	if step.Expect != nil {
		for _, msg := range checkExpect(n, step.Expect, ev) {
			result.AddError(msg)
		}
	}
	return nil
}

func checkExpect(n int, want *ExpectClause, got TraceEvent) []string {
	var errs []string
	if want.Error != "" {
		if got.Error != want.Error {
			errs = append(errs, fmt.Sprintf("step %d: expected host error %s, got %s", n, want.Error, describe(got)))
		}
		return errs
	}
	if got.Error != "" || got.Outcome != want.Outcome {
		errs = append(errs, fmt.Sprintf("step %d: expected outcome %s, got %s", n, want.Outcome, describe(got)))
		return errs
	}
	if err := matchSubset(got.Result, want.Result); err != nil {
		errs = append(errs, fmt.Sprintf("step %d: result: %v", n, err))
	}
	return errs
}

func describe(ev TraceEvent) string {
	if ev.Error != "" {
		return "host error " + ev.Error
	}
	return fmt.Sprintf("outcome %s (code %d)", ev.Outcome, ev.Code)
}
