package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/linkproofhq/linkproof/internal/aggregate"
	"github.com/linkproofhq/linkproof/pkg/types"
)

var kindLabels = map[types.ProbeKind]string{
	types.KindBufferbloat:   "Bufferbloat",
	types.KindJitterLoss:    "Jitter / Loss",
	types.KindRouteAnalysis: "Route Analysis",
	types.KindDNSLatency:    "DNS Latency",
	types.KindMTUDiscovery:  "MTU Discovery",
}

// Console renders a human-readable summary of the report to Out.
type Console struct {
	Out io.Writer
}

func (c Console) Render(r Report) {
	header := color.New(color.FgCyan, color.Bold)
	section := color.New(color.Bold)
	warn := color.New(color.FgYellow)

	header.Fprintln(c.Out, "=== Link Diagnostic Summary ===")
	fmt.Fprintf(c.Out, "Session %s, %d run(s)", r.SessionID, r.Runs)
	if r.Parallel > 1 {
		fmt.Fprintf(c.Out, ", %d parallel", r.Parallel)
	}
	fmt.Fprintln(c.Out)
	if r.Endpoint != nil {
		mode := "TCP only"
		if r.Endpoint.UDP {
			mode = "TCP + UDP"
		}
		fmt.Fprintf(c.Out, "Server: %s:%d (%s)\n", r.Endpoint.Host, r.Endpoint.Port, mode)
	}
	if r.ParallelNote != "" {
		warn.Fprintf(c.Out, "Note: %s\n", r.ParallelNote)
	}
	fmt.Fprintln(c.Out)

	section.Fprintln(c.Out, "Results:")
	for _, ks := range r.Kinds {
		c.renderKind(ks)
	}

	problems := collectProblems(r)
	fmt.Fprintln(c.Out)
	if len(problems) == 0 {
		color.New(color.FgGreen, color.Bold).Fprintln(c.Out, "No problems detected.")
		return
	}
	color.New(color.FgRed, color.Bold).Fprintln(c.Out, "Problems detected:")
	for _, p := range problems {
		fmt.Fprintf(c.Out, "  - %s\n", p)
	}
}

func (c Console) renderKind(ks aggregate.KindSummary) {
	label := kindLabels[ks.Kind]
	if label == "" {
		label = string(ks.Kind)
	}

	if ks.NoData {
		color.New(color.FgYellow).Fprintf(c.Out, "  %-16s NO DATA (%d failure(s)%s)\n",
			label, ks.Failures, failureBreakdown(ks))
		return
	}

	fmt.Fprintf(c.Out, "  %-16s %s", label, gradeSummary(ks.Grades))
	if detail := kindDetail(ks); detail != "" {
		fmt.Fprintf(c.Out, "  %s", detail)
	}
	if ks.Failures > 0 {
		color.New(color.FgYellow).Fprintf(c.Out, "  [%d failed run(s)]", ks.Failures)
	}
	fmt.Fprintln(c.Out)
}

func kindDetail(ks aggregate.KindSummary) string {
	switch ks.Kind {
	case types.KindBufferbloat:
		if st, ok := ks.Metrics[aggregate.MetricWorstDelta]; ok {
			return fmt.Sprintf("added latency avg %.1f ms, worst %.1f ms", st.Avg, st.Max)
		}
	case types.KindJitterLoss:
		j, jok := ks.Metrics[aggregate.MetricJitter]
		l, lok := ks.Metrics[aggregate.MetricLossPct]
		if jok && lok {
			return fmt.Sprintf("jitter avg %.2f ms, loss max %.2f%%", j.Avg, l.Max)
		}
	case types.KindRouteAnalysis:
		if st, ok := ks.Metrics[aggregate.MetricHopCount]; ok {
			return fmt.Sprintf("%d hop(s) traced", int(st.Max))
		}
	case types.KindDNSLatency:
		parts := make([]string, 0, len(ks.Metrics))
		for name, st := range ks.Metrics {
			resolver := strings.TrimPrefix(name, aggregate.LookupMetric(""))
			parts = append(parts, fmt.Sprintf("%s %.1f ms", resolver, st.Avg))
		}
		sort.Strings(parts)
		return strings.Join(parts, ", ")
	case types.KindMTUDiscovery:
		if st, ok := ks.Metrics[aggregate.MetricPathMTU]; ok {
			return fmt.Sprintf("path MTU %d bytes", int(st.Min))
		}
	}
	return ""
}

func gradeSummary(grades map[types.Grade]int) string {
	order := []types.Grade{
		types.GradeA, types.GradeB, types.GradeC,
		types.GradeExcellent, types.GradeGood, types.GradePoor,
		types.Grade(types.TagHealthy), types.Grade(types.TagLatencyVar),
		types.Grade(types.TagHighJitter), types.Grade(types.TagLoss),
	}
	parts := make([]string, 0, len(grades))
	for _, g := range order {
		if n, ok := grades[g]; ok {
			parts = append(parts, fmt.Sprintf("%s:%d", g, n))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func failureBreakdown(ks aggregate.KindSummary) string {
	if len(ks.FailureReasons) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ks.FailureReasons))
	for reason, n := range ks.FailureReasons {
		parts = append(parts, fmt.Sprintf("%s x%d", reason, n))
	}
	sort.Strings(parts)
	return ": " + strings.Join(parts, ", ")
}

// collectProblems derives the escalation-worthy findings from the
// aggregated summaries.
func collectProblems(r Report) []string {
	var problems []string
	for _, ks := range r.Kinds {
		if ks.NoData {
			problems = append(problems, fmt.Sprintf("%s produced no data (%d failure(s)%s)",
				kindLabels[ks.Kind], ks.Failures, failureBreakdown(ks)))
			continue
		}
		switch ks.Kind {
		case types.KindBufferbloat:
			if n := ks.Grades[types.GradeC]; n > 0 {
				problems = append(problems,
					fmt.Sprintf("severe bufferbloat: added latency over 100 ms in %d run(s)", n))
			}
		case types.KindJitterLoss:
			if n := ks.Grades[types.GradePoor]; n > 0 {
				problems = append(problems,
					fmt.Sprintf("poor jitter or packet loss in %d run(s)", n))
			}
		case types.KindRouteAnalysis:
			for _, hop := range ks.Hops {
				if hop.Tag == types.TagLoss {
					problems = append(problems,
						fmt.Sprintf("packet loss at hop %d (%s), up to %.1f%%", hop.Index, hop.Host, hop.MaxLossPct))
				}
				if hop.CGNAT {
					problems = append(problems,
						fmt.Sprintf("hop %d (%s) is in the carrier-grade NAT range 100.64.0.0/10", hop.Index, hop.Host))
				}
			}
		case types.KindDNSLatency:
			if n := ks.Grades[types.GradePoor]; n > 0 {
				problems = append(problems,
					fmt.Sprintf("slow or failing DNS lookups in %d run(s)", n))
			}
		case types.KindMTUDiscovery:
			if st, ok := ks.Metrics[aggregate.MetricPathMTU]; ok && int(st.Min) < 1400 {
				problems = append(problems,
					fmt.Sprintf("reduced path MTU: %d bytes (fragmentation or tunnel overhead likely)", int(st.Min)))
			}
		}
	}
	return problems
}
