// Package probe defines the probe adapter contract and the concrete
// adapters that wrap external measurement tools. Adapters never return
// errors: every fault (missing binary, non-zero exit, malformed output,
// timeout) is normalized into a Failure sample at this boundary so the
// session scheduler can treat all probe kinds uniformly.
package probe

import (
	"context"
	"math"

	"github.com/linkproofhq/linkproof/pkg/types"
)

// Probe runs one measurement and reports it as a Sample. Implementations
// must honor ctx cancellation and must not panic or block past their
// configured timeout.
type Probe interface {
	Kind() types.ProbeKind
	Run(ctx context.Context) types.Sample
}

// Skipped returns a probe that records an Unsupported failure on every run.
// The session uses it for kinds whose endpoint requirements could not be
// satisfied, keeping the one-entry-per-kind invariant intact.
func Skipped(kind types.ProbeKind, detail string) Probe {
	return skipped{kind: kind, detail: detail}
}

type skipped struct {
	kind   types.ProbeKind
	detail string
}

func (s skipped) Kind() types.ProbeKind { return s.kind }

func (s skipped) Run(ctx context.Context) types.Sample {
	return types.Fail(s.kind, types.ReasonUnsupported, s.detail)
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

func stdev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	avg := mean(series)
	var sq float64
	for _, v := range series {
		sq += (v - avg) * (v - avg)
	}
	return math.Sqrt(sq / float64(len(series)-1))
}
