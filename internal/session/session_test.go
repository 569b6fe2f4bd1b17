package session

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkproofhq/linkproof/internal/probe"
	"github.com/linkproofhq/linkproof/pkg/types"
)

type fakeProbe struct {
	kind types.ProbeKind
	run  func(ctx context.Context) types.Sample
}

func (f fakeProbe) Kind() types.ProbeKind { return f.kind }

func (f fakeProbe) Run(ctx context.Context) types.Sample {
	if f.run != nil {
		return f.run(ctx)
	}
	return types.Sample{Kind: f.kind, MTU: &types.MTUSample{PathMTUBytes: 1500}}
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fullSuite() []probe.Probe {
	probes := make([]probe.Probe, 0, 5)
	for _, kind := range types.AllKinds() {
		probes = append(probes, fakeProbe{kind: kind})
	}
	return probes
}

func TestSessionProducesOneEntryPerKindPerRun(t *testing.T) {
	s, err := New(Config{Runs: 3, Parallel: 1}, fullSuite(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	results, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 run results got %d", len(results))
	}
	for i, res := range results {
		if res.Run != i+1 {
			t.Fatalf("expected run index %d got %d", i+1, res.Run)
		}
		if len(res.Samples) != len(types.AllKinds()) {
			t.Fatalf("run %d: expected %d samples got %d", res.Run, len(types.AllKinds()), len(res.Samples))
		}
		for j, kind := range types.AllKinds() {
			if res.Samples[j].Kind != kind {
				t.Fatalf("run %d: expected kind %s at position %d got %s", res.Run, kind, j, res.Samples[j].Kind)
			}
			if res.Samples[j].Run != res.Run {
				t.Fatalf("sample run index %d does not match run %d", res.Samples[j].Run, res.Run)
			}
		}
	}
	if s.State() != StateCompleted {
		t.Fatalf("expected completed state got %s", s.State())
	}
}

func TestSessionParallelResultsStayOrdered(t *testing.T) {
	// Later runs finish first so completion order is the reverse of run
	// order; the collected results must still come back as 1,2,3.
	var started atomic.Int32
	probes := []probe.Probe{fakeProbe{
		kind: types.KindMTUDiscovery,
		run: func(ctx context.Context) types.Sample {
			order := started.Add(1)
			time.Sleep(time.Duration(4-order) * 30 * time.Millisecond)
			return types.Sample{Kind: types.KindMTUDiscovery, MTU: &types.MTUSample{PathMTUBytes: 1500}}
		},
	}}

	s, err := New(Config{Runs: 3, Parallel: 3}, probes, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	results, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results got %d", len(results))
	}
	for i, res := range results {
		if res.Run != i+1 {
			t.Fatalf("expected run %d at position %d got %d", i+1, i, res.Run)
		}
	}
}

func TestSessionFailureDoesNotAbortIteration(t *testing.T) {
	probes := []probe.Probe{
		fakeProbe{
			kind: types.KindBufferbloat,
			run: func(ctx context.Context) types.Sample {
				return types.Fail(types.KindBufferbloat, types.ReasonToolNotFound, "iperf3 not found in PATH")
			},
		},
		fakeProbe{kind: types.KindDNSLatency, run: func(ctx context.Context) types.Sample {
			return types.Sample{
				Kind: types.KindDNSLatency,
				DNS:  &types.DNSSample{Lookups: []types.ResolverLatency{{Resolver: "1.1.1.1", LatencyMs: 9}}},
			}
		}},
	}

	s, err := New(Config{Runs: 2, Parallel: 1}, probes, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	results, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	for _, res := range results {
		if len(res.Samples) != 2 {
			t.Fatalf("run %d: expected both samples recorded got %d", res.Run, len(res.Samples))
		}
		if res.Samples[0].OK() {
			t.Fatalf("expected first sample to be a failure")
		}
		if !res.Samples[1].OK() {
			t.Fatalf("expected second sample to succeed despite earlier failure")
		}
	}
}

func TestSessionRecoversPanickingAdapter(t *testing.T) {
	probes := []probe.Probe{fakeProbe{
		kind: types.KindRouteAnalysis,
		run: func(ctx context.Context) types.Sample {
			panic("malformed tool output")
		},
	}}
	s, err := New(Config{Runs: 1, Parallel: 1}, probes, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	results, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	sample := results[0].Samples[0]
	if sample.OK() || sample.Failure.Reason != types.ReasonParseError {
		t.Fatalf("expected panic to become a ParseError failure, got %+v", sample.Failure)
	}
}

func TestSessionRunsExactlyOnce(t *testing.T) {
	s, err := New(Config{Runs: 1, Parallel: 1}, fullSuite(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected second run to be rejected")
	}
}

func TestSessionValidation(t *testing.T) {
	cases := []Config{
		{Runs: 0, Parallel: 1},
		{Runs: 3, Parallel: 0},
		{Runs: 2, Parallel: 3},
	}
	for _, cfg := range cases {
		if _, err := New(cfg, fullSuite()); err == nil {
			t.Fatalf("expected config %+v to be rejected", cfg)
		}
	}
	if _, err := New(Config{Runs: 1, Parallel: 1}, nil); err == nil {
		t.Fatalf("expected empty suite to be rejected")
	}
}

func TestSessionStopsFeedingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	probes := []probe.Probe{fakeProbe{
		kind: types.KindDNSLatency,
		run: func(runCtx context.Context) types.Sample {
			if runs.Add(1) == 1 {
				cancel()
			}
			return types.Sample{
				Kind: types.KindDNSLatency,
				DNS:  &types.DNSSample{Lookups: []types.ResolverLatency{{Resolver: "1.1.1.1", LatencyMs: 5}}},
			}
		},
	}}

	s, err := New(Config{Runs: 5, Parallel: 1}, probes, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	results, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	// The in-flight iteration completes; no new iterations start after
	// cancellation.
	if len(results) == 0 || len(results) == 5 {
		t.Fatalf("expected a partial result set, got %d runs", len(results))
	}
	if results[0].Run != 1 {
		t.Fatalf("expected first run present, got run %d", results[0].Run)
	}
}

func TestCollectorOrdersByRunIndex(t *testing.T) {
	c := NewCollector(4)
	for _, run := range []int{3, 1, 4, 2} {
		c.Put(types.RunResult{Run: run})
	}
	if c.Len() != 4 {
		t.Fatalf("expected 4 results got %d", c.Len())
	}
	ordered := c.Ordered()
	for i, res := range ordered {
		if res.Run != i+1 {
			t.Fatalf("expected run %d at position %d got %d", i+1, i, res.Run)
		}
	}
}
