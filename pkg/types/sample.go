package types

import "time"

// ProbeKind identifies one of the fixed diagnostic probe types.
type ProbeKind string

const (
	KindBufferbloat   ProbeKind = "bufferbloat"
	KindJitterLoss    ProbeKind = "jitter_loss"
	KindRouteAnalysis ProbeKind = "route_analysis"
	KindDNSLatency    ProbeKind = "dns_latency"
	KindMTUDiscovery  ProbeKind = "mtu_discovery"
)

// AllKinds returns every probe kind in canonical report order.
func AllKinds() []ProbeKind {
	return []ProbeKind{
		KindBufferbloat,
		KindJitterLoss,
		KindRouteAnalysis,
		KindDNSLatency,
		KindMTUDiscovery,
	}
}

// FailureReason is a stable code describing why a probe produced no sample.
type FailureReason string

const (
	ReasonToolNotFound       FailureReason = "ToolNotFound"
	ReasonTimeout            FailureReason = "Timeout"
	ReasonParseError         FailureReason = "ParseError"
	ReasonNetworkUnreachable FailureReason = "NetworkUnreachable"
	ReasonUnsupported        FailureReason = "Unsupported"
)

// Failure records a normalized probe fault. Failures are first-class
// results: they are counted and reported, never propagated as errors.
type Failure struct {
	Reason FailureReason `json:"reason" yaml:"reason"`
	Detail string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Sample is one probe's result for one run-iteration. Exactly one of the
// kind-specific payloads is set on success; Failure is set instead when the
// probe could not produce a measurement.
type Sample struct {
	Kind      ProbeKind `json:"kind" yaml:"kind"`
	Run       int       `json:"run" yaml:"run"`
	Timestamp time.Time `json:"ts" yaml:"ts"`

	Failure *Failure `json:"failure,omitempty" yaml:"failure,omitempty"`

	Bufferbloat *BufferbloatSample `json:"bufferbloat,omitempty" yaml:"bufferbloat,omitempty"`
	Jitter      *JitterSample      `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	Route       *RouteSample       `json:"route,omitempty" yaml:"route,omitempty"`
	DNS         *DNSSample         `json:"dns,omitempty" yaml:"dns,omitempty"`
	MTU         *MTUSample         `json:"mtu,omitempty" yaml:"mtu,omitempty"`
}

// OK reports whether the sample carries a measurement rather than a failure.
func (s Sample) OK() bool {
	return s.Failure == nil
}

// Fail constructs a failure sample for the given kind.
func Fail(kind ProbeKind, reason FailureReason, detail string) Sample {
	return Sample{
		Kind:    kind,
		Failure: &Failure{Reason: reason, Detail: detail},
	}
}

// BufferbloatSample captures RTT behavior with and without link saturation.
type BufferbloatSample struct {
	BaselineAvgMs   float64 `json:"baseline_avg_ms" yaml:"baseline_avg_ms"`
	BaselineStdevMs float64 `json:"baseline_stdev_ms" yaml:"baseline_stdev_ms"`
	BaselineCount   int     `json:"baseline_count" yaml:"baseline_count"`
	UploadAvgMs     float64 `json:"upload_avg_ms" yaml:"upload_avg_ms"`
	DownloadAvgMs   float64 `json:"download_avg_ms" yaml:"download_avg_ms"`
}

// UploadDeltaMs is the added latency under upload saturation.
func (b BufferbloatSample) UploadDeltaMs() float64 {
	return b.UploadAvgMs - b.BaselineAvgMs
}

// DownloadDeltaMs is the added latency under download saturation.
func (b BufferbloatSample) DownloadDeltaMs() float64 {
	return b.DownloadAvgMs - b.BaselineAvgMs
}

// WorstDeltaMs is the larger of the upload and download added latencies and
// is the metric graded against the bufferbloat thresholds.
func (b BufferbloatSample) WorstDeltaMs() float64 {
	up := b.UploadDeltaMs()
	down := b.DownloadDeltaMs()
	if up > down {
		return up
	}
	return down
}

// JitterSample captures a UDP stream's jitter and packet loss.
type JitterSample struct {
	JitterMs    float64 `json:"jitter_ms" yaml:"jitter_ms"`
	LostPackets int64   `json:"lost_packets" yaml:"lost_packets"`
	Packets     int64   `json:"packets" yaml:"packets"`
}

// LossPct returns the packet loss percentage for the stream.
func (j JitterSample) LossPct() float64 {
	if j.Packets <= 0 {
		return 0
	}
	return float64(j.LostPackets) / float64(j.Packets) * 100.0
}

// HopTag classifies the health of a single route hop. Tags are ordered by
// severity: LOSS > HIGH-JITTER > LATENCY-VAR > Healthy.
type HopTag string

const (
	TagHealthy    HopTag = "Healthy"
	TagLatencyVar HopTag = "LATENCY-VAR"
	TagHighJitter HopTag = "HIGH-JITTER"
	TagLoss       HopTag = "LOSS"
)

var hopTagRank = map[HopTag]int{
	TagHealthy:    0,
	TagLatencyVar: 1,
	TagHighJitter: 2,
	TagLoss:       3,
}

// Severity returns the ordinal rank of the tag; higher is worse.
func (t HopTag) Severity() int {
	return hopTagRank[t]
}

// WorstTag returns the more severe of two hop tags.
func WorstTag(a, b HopTag) HopTag {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Hop is one intermediate router along a traced path.
type Hop struct {
	Index   int     `json:"hop" yaml:"hop"`
	Host    string  `json:"host" yaml:"host"`
	LossPct float64 `json:"loss_pct" yaml:"loss_pct"`
	Sent    int     `json:"sent" yaml:"sent"`
	LastMs  float64 `json:"last_ms" yaml:"last_ms"`
	AvgMs   float64 `json:"avg_ms" yaml:"avg_ms"`
	BestMs  float64 `json:"best_ms" yaml:"best_ms"`
	WorstMs float64 `json:"worst_ms" yaml:"worst_ms"`
	StdevMs float64 `json:"stdev_ms" yaml:"stdev_ms"`
	// CGNAT marks hops whose address falls inside the carrier-grade NAT
	// shared range 100.64.0.0/10.
	CGNAT bool `json:"cgnat,omitempty" yaml:"cgnat,omitempty"`
}

// RouteSample is the ordered hop list from one route trace.
type RouteSample struct {
	Target string `json:"target" yaml:"target"`
	Hops   []Hop  `json:"hops" yaml:"hops"`
}

// ResolverLatency is one resolver's A-record lookup timing.
type ResolverLatency struct {
	Resolver  string  `json:"resolver" yaml:"resolver"`
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms"`
	TimedOut  bool    `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
}

// DNSSample holds per-resolver lookup latencies in resolver order.
type DNSSample struct {
	Domain  string            `json:"domain" yaml:"domain"`
	Lookups []ResolverLatency `json:"lookups" yaml:"lookups"`
}

// MTUSample is the discovered path MTU.
type MTUSample struct {
	PathMTUBytes int `json:"path_mtu_bytes" yaml:"path_mtu_bytes"`
}

// RunResult is one full pass over every configured probe kind.
type RunResult struct {
	Run         int       `json:"run" yaml:"run"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
	Samples     []Sample  `json:"samples" yaml:"samples"`
}
