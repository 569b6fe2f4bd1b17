package grade

import (
	"testing"

	"github.com/linkproofhq/linkproof/pkg/types"
)

func TestBufferbloatBands(t *testing.T) {
	cases := []struct {
		deltaMs float64
		want    types.Grade
	}{
		{0, types.GradeA},
		{29.999, types.GradeA},
		{30.0, types.GradeB},
		{99.999, types.GradeB},
		{100.0, types.GradeC},
		{250, types.GradeC},
	}
	for _, tc := range cases {
		if got := Bufferbloat(tc.deltaMs); got != tc.want {
			t.Fatalf("delta %.3f: expected %s got %s", tc.deltaMs, tc.want, got)
		}
	}
}

func TestJitterLossBands(t *testing.T) {
	cases := []struct {
		jitterMs float64
		lossPct  float64
		want     types.Grade
	}{
		{1.0, 0, types.GradeExcellent},
		{4.999, 0, types.GradeExcellent},
		{5.0, 0, types.GradeGood},
		{4.0, 0.05, types.GradeGood},
		{19.999, 0.099, types.GradeGood},
		{20.0, 0, types.GradePoor},
		{10.0, 0.1, types.GradePoor},
		{50.0, 5.0, types.GradePoor},
	}
	for _, tc := range cases {
		if got := JitterLoss(tc.jitterMs, tc.lossPct); got != tc.want {
			t.Fatalf("jitter %.3f loss %.3f: expected %s got %s", tc.jitterMs, tc.lossPct, tc.want, got)
		}
	}
}

func TestHopTagging(t *testing.T) {
	cases := []struct {
		name string
		hop  types.Hop
		want types.HopTag
	}{
		{"healthy", types.Hop{AvgMs: 20, BestMs: 18, WorstMs: 25, StdevMs: 1}, types.TagHealthy},
		{"any loss wins", types.Hop{LossPct: 0.5, AvgMs: 20, StdevMs: 30, BestMs: 1, WorstMs: 300}, types.TagLoss},
		{"stddev above half of avg", types.Hop{AvgMs: 20, StdevMs: 11, BestMs: 18, WorstMs: 25}, types.TagHighJitter},
		{"spread above 100ms", types.Hop{AvgMs: 50, StdevMs: 2, BestMs: 10, WorstMs: 120}, types.TagLatencyVar},
		{"spread exactly 100ms stays healthy", types.Hop{AvgMs: 50, StdevMs: 2, BestMs: 10, WorstMs: 110}, types.TagHealthy},
	}
	for _, tc := range cases {
		if got := Hop(tc.hop); got != tc.want {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.want, got)
		}
	}
}

func TestRouteGradeIsWorstHop(t *testing.T) {
	hops := []types.Hop{
		{Index: 1, AvgMs: 5, StdevMs: 0.2, BestMs: 4, WorstMs: 6},
		{Index: 2, AvgMs: 50, StdevMs: 2, BestMs: 10, WorstMs: 180},
		{Index: 3, AvgMs: 20, StdevMs: 15, BestMs: 18, WorstMs: 25},
	}
	if got := Route(hops); got != types.TagHighJitter {
		t.Fatalf("expected HIGH-JITTER got %s", got)
	}

	hops = append(hops, types.Hop{Index: 4, LossPct: 2.0})
	if got := Route(hops); got != types.TagLoss {
		t.Fatalf("expected LOSS got %s", got)
	}

	if got := Route(nil); got != types.TagHealthy {
		t.Fatalf("expected empty path to grade Healthy got %s", got)
	}
}

func TestDNSBands(t *testing.T) {
	cases := []struct {
		latencyMs float64
		timedOut  bool
		want      types.Grade
	}{
		{10, false, types.GradeExcellent},
		{49.999, false, types.GradeExcellent},
		{50.0, false, types.GradeGood},
		{150, false, types.GradeGood},
		{199.999, false, types.GradeGood},
		{200.0, false, types.GradePoor},
		{500, false, types.GradePoor},
		{10, true, types.GradePoor},
	}
	for _, tc := range cases {
		if got := DNS(tc.latencyMs, tc.timedOut); got != tc.want {
			t.Fatalf("latency %.3f timeout %t: expected %s got %s", tc.latencyMs, tc.timedOut, tc.want, got)
		}
	}
}

func TestMTUGrade(t *testing.T) {
	if got := MTU(1500); got != types.GradeGood {
		t.Fatalf("expected Good for 1500 got %s", got)
	}
	if got := MTU(1400); got != types.GradeGood {
		t.Fatalf("expected Good for 1400 got %s", got)
	}
	if got := MTU(1399); got != types.GradePoor {
		t.Fatalf("expected Poor for 1399 got %s", got)
	}
}

func TestSampleGrading(t *testing.T) {
	bloat := types.Sample{
		Kind: types.KindBufferbloat,
		Bufferbloat: &types.BufferbloatSample{
			BaselineAvgMs: 20,
			UploadAvgMs:   55,
			DownloadAvgMs: 40,
		},
	}
	g, ok := Sample(bloat)
	if !ok || g != types.GradeB {
		t.Fatalf("expected B got %s ok=%t", g, ok)
	}

	dns := types.Sample{
		Kind: types.KindDNSLatency,
		DNS: &types.DNSSample{Lookups: []types.ResolverLatency{
			{Resolver: "1.1.1.1", LatencyMs: 12},
			{Resolver: "8.8.8.8", LatencyMs: 80},
		}},
	}
	g, ok = Sample(dns)
	if !ok || g != types.GradeGood {
		t.Fatalf("expected worst resolver grade Good got %s ok=%t", g, ok)
	}

	failed := types.Fail(types.KindJitterLoss, types.ReasonTimeout, "udp stream timed out")
	if _, ok := Sample(failed); ok {
		t.Fatalf("failure samples must not be graded")
	}
}

func TestSampleGradingIsDeterministic(t *testing.T) {
	s := types.Sample{
		Kind:   types.KindJitterLoss,
		Jitter: &types.JitterSample{JitterMs: 3.2, LostPackets: 0, Packets: 1000},
	}
	first, _ := Sample(s)
	for i := 0; i < 100; i++ {
		g, _ := Sample(s)
		if g != first {
			t.Fatalf("grade changed between evaluations: %s vs %s", first, g)
		}
	}
	if first != types.GradeExcellent {
		t.Fatalf("expected Excellent got %s", first)
	}
}
