// Package grade maps measurements to qualitative grades using fixed
// thresholds. Every function is pure; band boundaries are inclusive on the
// lower bound (a bufferbloat delta of exactly 30 ms grades B, not A).
package grade

import "github.com/linkproofhq/linkproof/pkg/types"

const (
	// Bufferbloat added-latency bands (ms).
	bufferbloatGoodMs = 30.0
	bufferbloatFairMs = 100.0

	// Jitter/loss bands.
	jitterExcellentMs = 5.0
	jitterGoodMs      = 20.0
	lossGoodPct       = 0.1

	// Route hop tagging.
	hopJitterRatio  = 0.5   // stddev above this multiple of avg is HIGH-JITTER
	hopSpreadMs     = 100.0 // worst-best spread above this is LATENCY-VAR
	hopLossFloorPct = 0.0   // any measured loss tags the hop

	// DNS lookup bands (ms). Lookups between 100 and 200 ms carry Good:
	// the Good band is extended up to the Poor threshold.
	dnsExcellentMs = 50.0
	dnsPoorMs      = 200.0

	// Path MTU below this is considered degraded.
	mtuFloorBytes = 1400
)

// Bufferbloat grades the worst added latency under load.
func Bufferbloat(worstDeltaMs float64) types.Grade {
	switch {
	case worstDeltaMs < bufferbloatGoodMs:
		return types.GradeA
	case worstDeltaMs < bufferbloatFairMs:
		return types.GradeB
	default:
		return types.GradeC
	}
}

// JitterLoss grades a UDP stream by its jitter and loss percentage.
func JitterLoss(jitterMs, lossPct float64) types.Grade {
	switch {
	case jitterMs < jitterExcellentMs && lossPct == 0:
		return types.GradeExcellent
	case jitterMs < jitterGoodMs && lossPct < lossGoodPct:
		return types.GradeGood
	default:
		return types.GradePoor
	}
}

// Hop tags a single route hop with the most severe condition it exhibits.
func Hop(h types.Hop) types.HopTag {
	if h.LossPct > hopLossFloorPct {
		return types.TagLoss
	}
	if h.AvgMs > 0 && h.StdevMs > hopJitterRatio*h.AvgMs {
		return types.TagHighJitter
	}
	if h.WorstMs-h.BestMs > hopSpreadMs {
		return types.TagLatencyVar
	}
	return types.TagHealthy
}

// Route grades a whole path as the worst tag present across its hops.
func Route(hops []types.Hop) types.HopTag {
	worst := types.TagHealthy
	for _, h := range hops {
		worst = types.WorstTag(worst, Hop(h))
	}
	return worst
}

// DNS grades a single resolver lookup.
func DNS(latencyMs float64, timedOut bool) types.Grade {
	switch {
	case timedOut:
		return types.GradePoor
	case latencyMs < dnsExcellentMs:
		return types.GradeExcellent
	case latencyMs < dnsPoorMs:
		return types.GradeGood
	default:
		return types.GradePoor
	}
}

// MTU grades a discovered path MTU.
func MTU(bytes int) types.Grade {
	if bytes >= mtuFloorBytes {
		return types.GradeGood
	}
	return types.GradePoor
}

// Sample grades one successful sample of any kind. Route samples grade as
// their worst hop tag; DNS samples grade as their worst resolver lookup.
// The second return is false for failure samples, which are never graded.
func Sample(s types.Sample) (types.Grade, bool) {
	if !s.OK() {
		return "", false
	}
	switch s.Kind {
	case types.KindBufferbloat:
		return Bufferbloat(s.Bufferbloat.WorstDeltaMs()), true
	case types.KindJitterLoss:
		return JitterLoss(s.Jitter.JitterMs, s.Jitter.LossPct()), true
	case types.KindRouteAnalysis:
		return types.Grade(Route(s.Route.Hops)), true
	case types.KindDNSLatency:
		worst := types.GradeExcellent
		for _, l := range s.DNS.Lookups {
			g := DNS(l.LatencyMs, l.TimedOut)
			if dnsRank(g) > dnsRank(worst) {
				worst = g
			}
		}
		return worst, true
	case types.KindMTUDiscovery:
		return MTU(s.MTU.PathMTUBytes), true
	default:
		return "", false
	}
}

func dnsRank(g types.Grade) int {
	switch g {
	case types.GradeExcellent:
		return 0
	case types.GradeGood:
		return 1
	default:
		return 2
	}
}
