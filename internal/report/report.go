// Package report assembles the diagnostic evidence report: session
// metadata, per-kind summaries in canonical order, and the raw per-run
// trace. Assembling the same results twice yields the same report apart
// from the session identity fields.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/linkproofhq/linkproof/internal/aggregate"
	"github.com/linkproofhq/linkproof/pkg/types"
)

// Endpoint records the iperf3 server the saturating probes targeted.
type Endpoint struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Description string `json:"description,omitempty"`
	UDP         bool   `json:"udp"`
}

// Meta carries the session facts the report preserves for escalation.
type Meta struct {
	Runs                int
	Parallel            int
	SerializedSaturated bool
	Endpoint            *Endpoint
	PingHost            string
	DNSDomain           string
}

// Report is the complete evidence document handed to a Sink.
type Report struct {
	SessionID   string    `json:"session_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Runs     int `json:"runs"`
	Parallel int `json:"parallel"`
	// ParallelNote is set when run-iterations overlapped, since
	// concurrent load can color latency measurements.
	ParallelNote string `json:"parallel_note,omitempty"`

	Endpoint  *Endpoint `json:"endpoint,omitempty"`
	PingHost  string    `json:"ping_host,omitempty"`
	DNSDomain string    `json:"dns_domain,omitempty"`

	// Kinds holds one summary per probe kind, in canonical order.
	Kinds []aggregate.KindSummary `json:"kinds"`

	// Trace is the raw per-run sample record, ordered by run index.
	Trace []types.RunResult `json:"trace"`
}

// Assembler builds reports. The zero value uses the real clock and random
// session identifiers; tests override the function fields.
type Assembler struct {
	Now   func() time.Time
	NewID func() string
}

// Assemble summarizes the run results and wraps them with session metadata.
func (a Assembler) Assemble(meta Meta, results []types.RunResult) Report {
	now := a.Now
	if now == nil {
		now = time.Now
	}
	newID := a.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	r := Report{
		SessionID:   newID(),
		GeneratedAt: now().UTC(),
		Runs:        meta.Runs,
		Parallel:    meta.Parallel,
		Endpoint:    meta.Endpoint,
		PingHost:    meta.PingHost,
		DNSDomain:   meta.DNSDomain,
		Kinds:       aggregate.Summarize(results),
		Trace:       results,
	}
	if meta.Parallel > 1 {
		if meta.SerializedSaturated {
			r.ParallelNote = "run-iterations overlapped; link-saturating probes were serialized across workers"
		} else {
			r.ParallelNote = "run-iterations overlapped, including link-saturating probes; latency figures may interact"
		}
	}
	return r
}
