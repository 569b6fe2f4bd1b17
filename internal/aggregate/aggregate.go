// Package aggregate folds the samples collected across every run-iteration
// into per-kind summaries: metric statistics over successful samples, grade
// histograms, failure counts, and a merged per-hop view of the traced route.
// Aggregation is a pure fold over its input and is insensitive to the order
// in which run results arrive.
package aggregate

import (
	"math"
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/linkproofhq/linkproof/internal/grade"
	"github.com/linkproofhq/linkproof/pkg/types"
)

// Metric names used as keys in KindSummary.Metrics. DNS latencies use a
// per-resolver key of the form "lookup_ms:<resolver>".
const (
	MetricBaselineRTT   = "baseline_rtt_ms"
	MetricUploadDelta   = "upload_delta_ms"
	MetricDownloadDelta = "download_delta_ms"
	MetricWorstDelta    = "worst_delta_ms"
	MetricJitter        = "jitter_ms"
	MetricLossPct       = "loss_pct"
	MetricHopCount      = "hop_count"
	MetricPathMTU       = "path_mtu_bytes"

	metricLookupPrefix = "lookup_ms:"
)

// LookupMetric returns the DNS latency metric key for a resolver address.
func LookupMetric(resolver string) string {
	return metricLookupPrefix + resolver
}

// KindSummary is the aggregated view of a single probe kind across all runs.
type KindSummary struct {
	Kind types.ProbeKind `json:"kind" yaml:"kind"`

	// Metrics holds one Statistic per metric name, computed over successful
	// samples only. Empty when NoData is set.
	Metrics map[string]types.Statistic `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Grades counts how many successful samples fell into each grade.
	Grades map[types.Grade]int `json:"grades,omitempty" yaml:"grades,omitempty"`

	Failures       int                         `json:"failures" yaml:"failures"`
	FailureReasons map[types.FailureReason]int `json:"failure_reasons,omitempty" yaml:"failure_reasons,omitempty"`

	// NoData is set when the kind produced zero successful samples. No
	// statistics or grades are reported in that case.
	NoData bool `json:"no_data,omitempty" yaml:"no_data,omitempty"`

	// Hops is the merged per-hop route view, populated for route analysis
	// only.
	Hops []HopSummary `json:"hops,omitempty" yaml:"hops,omitempty"`
}

// HopSummary merges one hop index across every route trace. The tag is the
// worst observed for that hop; loss and jitter figures are the worst case.
type HopSummary struct {
	Index      int          `json:"hop" yaml:"hop"`
	Host       string       `json:"host" yaml:"host"`
	Tag        types.HopTag `json:"tag" yaml:"tag"`
	MaxLossPct float64      `json:"max_loss_pct" yaml:"max_loss_pct"`
	MaxStdevMs float64      `json:"max_stdev_ms" yaml:"max_stdev_ms"`
	AvgMs      float64      `json:"avg_ms" yaml:"avg_ms"`
	CGNAT      bool         `json:"cgnat,omitempty" yaml:"cgnat,omitempty"`
	Seen       int          `json:"seen" yaml:"seen"`
}

// Summarize folds run results into one KindSummary per probe kind, in
// canonical kind order. Re-running it over the same results, in any order,
// produces the same summaries.
func Summarize(results []types.RunResult) []KindSummary {
	acc := make(map[types.ProbeKind]*kindAccumulator)
	for _, kind := range types.AllKinds() {
		acc[kind] = newKindAccumulator(kind)
	}

	for _, rr := range results {
		for _, s := range rr.Samples {
			a, ok := acc[s.Kind]
			if !ok {
				continue
			}
			a.add(s)
		}
	}

	summaries := make([]KindSummary, 0, len(types.AllKinds()))
	for _, kind := range types.AllKinds() {
		summaries = append(summaries, acc[kind].summary())
	}
	return summaries
}

// kindAccumulator gathers one kind's samples before the final summary is
// produced.
type kindAccumulator struct {
	kind     types.ProbeKind
	metrics  map[string]*series
	grades   map[types.Grade]int
	failures map[types.FailureReason]int
	hops     map[int]*HopSummary
	hopAvg   map[int]*series
	ok       int
}

func newKindAccumulator(kind types.ProbeKind) *kindAccumulator {
	return &kindAccumulator{
		kind:     kind,
		metrics:  make(map[string]*series),
		grades:   make(map[types.Grade]int),
		failures: make(map[types.FailureReason]int),
		hops:     make(map[int]*HopSummary),
		hopAvg:   make(map[int]*series),
	}
}

func (a *kindAccumulator) add(s types.Sample) {
	if !s.OK() {
		a.failures[s.Failure.Reason]++
		return
	}
	a.ok++

	if g, graded := grade.Sample(s); graded {
		a.grades[g]++
	}

	switch s.Kind {
	case types.KindBufferbloat:
		b := s.Bufferbloat
		a.observe(MetricBaselineRTT, b.BaselineAvgMs)
		a.observe(MetricUploadDelta, b.UploadDeltaMs())
		a.observe(MetricDownloadDelta, b.DownloadDeltaMs())
		a.observe(MetricWorstDelta, b.WorstDeltaMs())
	case types.KindJitterLoss:
		a.observe(MetricJitter, s.Jitter.JitterMs)
		a.observe(MetricLossPct, s.Jitter.LossPct())
	case types.KindRouteAnalysis:
		a.observe(MetricHopCount, float64(len(s.Route.Hops)))
		for _, h := range s.Route.Hops {
			a.mergeHop(h)
		}
	case types.KindDNSLatency:
		for _, l := range s.DNS.Lookups {
			if l.TimedOut {
				continue
			}
			a.observe(LookupMetric(l.Resolver), l.LatencyMs)
		}
	case types.KindMTUDiscovery:
		a.observe(MetricPathMTU, float64(s.MTU.PathMTUBytes))
	}
}

func (a *kindAccumulator) observe(metric string, v float64) {
	sr, ok := a.metrics[metric]
	if !ok {
		sr = newSeries()
		a.metrics[metric] = sr
	}
	sr.add(v)
}

func (a *kindAccumulator) mergeHop(h types.Hop) {
	hs, ok := a.hops[h.Index]
	if !ok {
		hs = &HopSummary{Index: h.Index, Host: h.Host, Tag: types.TagHealthy}
		a.hops[h.Index] = hs
		a.hopAvg[h.Index] = newSeries()
	}
	hs.Tag = types.WorstTag(hs.Tag, grade.Hop(h))
	if h.LossPct > hs.MaxLossPct {
		hs.MaxLossPct = h.LossPct
	}
	if h.StdevMs > hs.MaxStdevMs {
		hs.MaxStdevMs = h.StdevMs
	}
	hs.CGNAT = hs.CGNAT || h.CGNAT
	hs.Seen++
	a.hopAvg[h.Index].add(h.AvgMs)
}

func (a *kindAccumulator) summary() KindSummary {
	out := KindSummary{Kind: a.kind}
	for reason, n := range a.failures {
		if out.FailureReasons == nil {
			out.FailureReasons = make(map[types.FailureReason]int)
		}
		out.FailureReasons[reason] = n
		out.Failures += n
	}

	if a.ok == 0 {
		out.NoData = true
		return out
	}

	out.Metrics = make(map[string]types.Statistic, len(a.metrics))
	for name, sr := range a.metrics {
		out.Metrics[name] = sr.statistic()
	}
	out.Grades = make(map[types.Grade]int, len(a.grades))
	for g, n := range a.grades {
		out.Grades[g] = n
	}

	if len(a.hops) > 0 {
		out.Hops = make([]HopSummary, 0, len(a.hops))
		for idx, hs := range a.hops {
			merged := *hs
			merged.AvgMs = a.hopAvg[idx].statistic().Avg
			out.Hops = append(out.Hops, merged)
		}
		sort.Slice(out.Hops, func(i, j int) bool {
			return out.Hops[i].Index < out.Hops[j].Index
		})
	}
	return out
}

// series maintains running statistics for one metric, with percentiles
// backed by a DDSketch.
type series struct {
	count  int
	sum    float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

func newSeries() *series {
	s := &series{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err == nil {
		s.sketch = sketch
	}
	return s
}

func (s *series) add(v float64) {
	s.count++
	s.sum += v
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	if s.sketch != nil {
		s.sketch.Add(v)
	}
}

func (s *series) statistic() types.Statistic {
	if s.count == 0 {
		return types.Statistic{}
	}
	st := types.Statistic{
		Min:   s.min,
		Max:   s.max,
		Avg:   s.sum / float64(s.count),
		Count: s.count,
	}
	if s.sketch != nil {
		p50, _ := s.sketch.GetValueAtQuantile(0.50)
		p95, _ := s.sketch.GetValueAtQuantile(0.95)
		st.P50 = p50
		st.P95 = p95
	}
	return st
}
