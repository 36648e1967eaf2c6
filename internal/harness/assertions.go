package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/roach88/vidproof/internal/host"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/store"
	"github.com/roach88/vidproof/internal/testutil"
)

// evaluateAssertions runs every scenario assertion and returns the
// failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result) []string {
	var errs []string
	for i, a := range h.scenario.Assertions {
		var err error
		switch a.Type {
		case AssertRecord:
			err = h.assertRecord(ctx, a)
		case AssertCount:
			err = h.assertCount(ctx, a)
		case AssertEvents:
			err = h.assertEvents(ctx, a)
		case AssertOutcomes:
			err = assertOutcomes(result.Trace, a)
		case AssertReplay:
			err = h.assertReplay(ctx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func (h *Harness) assertRecord(ctx context.Context, a Assertion) error {
	submitter := testutil.AccountFromName(a.Submitter).Address()
	rec, ok, err := h.host.Read(ctx, testutil.Video(a.Video), submitter)
	if err != nil {
		return err
	}
	if a.Absent {
		if ok {
			return fmt.Errorf("expected no record for %s/%s, found record %d", a.Video, a.Submitter, rec.RecordID)
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("no record for %s/%s", a.Video, a.Submitter)
	}
	return matchSubset(rec.Object(), a.Expect)
}

func (h *Harness) assertCount(ctx context.Context, a Assertion) error {
	n, err := h.host.Count(ctx)
	if err != nil {
		return err
	}
	if int64(n) != a.Count {
		return fmt.Errorf("expected count %d, got %d", a.Count, n)
	}
	return nil
}

func (h *Harness) assertEvents(ctx context.Context, a Assertion) error {
	events, err := h.log.ReadEvents(ctx, store.EventFilter{Topic: a.Topic})
	if err != nil {
		return err
	}
	if int64(len(events)) != a.Count {
		return fmt.Errorf("expected %d %s events, got %d", a.Count, a.Topic, len(events))
	}
	return nil
}

func assertOutcomes(trace []TraceEvent, a Assertion) error {
	var n int64
	for _, ev := range trace {
		if ev.Error == "" && ev.Outcome == a.Outcome {
			n++
		}
	}
	if n != a.Count {
		return fmt.Errorf("expected %d %s receipts, got %d", a.Count, a.Outcome, n)
	}
	return nil
}

func (h *Harness) assertReplay(ctx context.Context) error {
	res, err := host.Replay(ctx, h.log, ledger.New(h.options...))
	if err != nil {
		return err
	}
	if !res.OK() {
		m := res.Mismatches[0]
		return fmt.Errorf("%d receipts not reproduced, first at ledger %d", len(res.Mismatches), m.Ledger)
	}
	return nil
}

// matchSubset checks that every key in want is present in got with an
// equal value. YAML numbers and strings are converted to ledger values
// before comparison.
func matchSubset(got ir.Object, want map[string]any) error {
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		expected, err := ir.FromGo(want[k])
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		actual, ok := got[k]
		if !ok {
			return fmt.Errorf("field %q missing", k)
		}
		if !reflect.DeepEqual(actual, expected) {
			return fmt.Errorf("field %q: expected %v, got %v", k, ir.ToGo(expected), ir.ToGo(actual))
		}
	}
	return nil
}
