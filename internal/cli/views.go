package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/host"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
)

func formatTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

type receiptView struct {
	ir.Receipt
}

func (r receiptView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ledger %d at %s: %s", r.Ledger, formatTime(r.Timestamp), r.Outcome)
	if id, ok := r.Result["record_id"].(ir.Int); ok {
		fmt.Fprintf(&b, "\n  record id: %d", id)
	}
	fmt.Fprintf(&b, "\n  tx: %s", r.TxID)
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "\n  event: %s", ev.Topic)
	}
	return b.String()
}

type recordView struct {
	ledger.Record
}

func (r recordView) Text() string {
	verdict := "authentic"
	if r.IsAIGenerated {
		verdict = "AI-generated"
	}
	return fmt.Sprintf("record %d: %s (confidence %d%%)\n  video: %s\n  submitter: %s\n  verified: %s",
		r.RecordID, verdict, r.ConfidenceScore, r.VideoHash, r.Submitter, formatTime(int64(r.Timestamp)))
}

type countView struct {
	Count uint32 `json:"count"`
}

func (c countView) Text() string {
	return fmt.Sprintf("%d verifications", c.Count)
}

type listView struct {
	Submitter auth.Address    `json:"submitter"`
	Records   []ledger.Record `json:"records"`
}

func (l listView) Text() string {
	if len(l.Records) == 0 {
		return fmt.Sprintf("no records listed for %s", l.Submitter.Short())
	}
	lines := make([]string, len(l.Records))
	for i, r := range l.Records {
		lines[i] = recordView{r}.Text()
	}
	return strings.Join(lines, "\n")
}

type eventsView struct {
	Events []ir.LoggedEvent `json:"events"`
}

func (e eventsView) Text() string {
	if len(e.Events) == 0 {
		return "no recent events"
	}
	lines := make([]string, len(e.Events))
	for i, ev := range e.Events {
		id, _ := ev.Data.GetInt("record_id")
		video, _ := ev.Data.GetString("video_hash")
		lines[i] = fmt.Sprintf("ledger %d  %-6s  record %d  video %s", ev.Ledger, ev.Topic, id, video)
	}
	return strings.Join(lines, "\n")
}

type replayView struct {
	host.ReplayResult
}

func (r replayView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replayed %d transaction(s): %d succeeded, %d rejected", r.Applied, r.Succeeded, r.Rejected)
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "\n  ledger %d: receipt %s, replay produced %s", m.Ledger, m.Want, m.Got)
	}
	if r.OK() {
		b.WriteString("\nAll receipts reproduced")
	} else {
		b.WriteString("\nReplay diverged from the log")
	}
	return b.String()
}

type sweepView struct {
	Ledger int64 `json:"ledger"`
	Swept  int   `json:"swept"`
}

func (s sweepView) Text() string {
	return fmt.Sprintf("swept %d expired entries at ledger %d", s.Swept, s.Ledger)
}

type hashView struct {
	VideoHash string `json:"video_hash"`
	Source    string `json:"source"`
}

func (h hashView) Text() string {
	return h.VideoHash
}

type keyView struct {
	Address string `json:"address"`
	Path    string `json:"path"`
}

func (k keyView) Text() string {
	return fmt.Sprintf("wrote %s\naddress: %s", k.Path, k.Address)
}
