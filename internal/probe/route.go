package probe

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/linkproofhq/linkproof/pkg/types"
)

// cgnatRange is the shared-address space reserved for carrier-grade NAT.
var cgnatRange = netip.MustParsePrefix("100.64.0.0/10")

// RouteConfig configures the route-hop analysis probe.
type RouteConfig struct {
	Target string
	Count  int
}

// RouteProbe runs mtr in report mode and parses per-hop statistics.
type RouteProbe struct {
	cfg    RouteConfig
	runner Runner
}

func NewRoute(cfg RouteConfig, runner Runner) *RouteProbe {
	if cfg.Target == "" {
		cfg.Target = "8.8.8.8"
	}
	if cfg.Count <= 0 {
		cfg.Count = 100
	}
	return &RouteProbe{cfg: cfg, runner: runner}
}

func (p *RouteProbe) Kind() types.ProbeKind { return types.KindRouteAnalysis }

func (p *RouteProbe) Run(ctx context.Context) types.Sample {
	if _, err := p.runner.lookPath("mtr"); err != nil {
		return types.Fail(p.Kind(), types.ReasonToolNotFound, "mtr not found in PATH")
	}

	args := []string{"-r", "-n", "-c", strconv.Itoa(p.cfg.Count), p.cfg.Target}
	out, err := p.runner.run(ctx, "mtr", args...)
	if err != nil {
		return failFromTool(p.Kind(), "mtr", err, out)
	}

	hops, err := parseMTRReport(out)
	if err != nil {
		return types.Fail(p.Kind(), types.ReasonParseError, err.Error())
	}
	if len(hops) == 0 {
		return types.Fail(p.Kind(), types.ReasonParseError, "mtr report contained no hops")
	}
	return types.Sample{
		Kind:  p.Kind(),
		Route: &types.RouteSample{Target: p.cfg.Target, Hops: hops},
	}
}

// parseMTRReport reads mtr -r output. Each hop line looks like
//
//	2.|-- 100.72.16.1   0.5%   100   12.1  13.4  11.0  88.2   6.3
//
// with columns hop, host, loss%, sent, last, avg, best, worst, stddev.
func parseMTRReport(output []byte) ([]types.Hop, error) {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	hops := make([]types.Hop, 0, len(lines))

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		index, ok := parseHopIndex(fields[0])
		if !ok {
			continue
		}

		loss, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "%"), 64)
		if err != nil {
			return nil, fmt.Errorf("hop %d: bad loss column %q", index, fields[2])
		}
		sent, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("hop %d: bad sent column %q", index, fields[3])
		}
		values := make([]float64, 5)
		for i, col := range fields[4:9] {
			v, err := strconv.ParseFloat(col, 64)
			if err != nil {
				return nil, fmt.Errorf("hop %d: bad timing column %q", index, col)
			}
			values[i] = v
		}

		host := fields[1]
		hops = append(hops, types.Hop{
			Index:   index,
			Host:    host,
			LossPct: loss,
			Sent:    sent,
			LastMs:  values[0],
			AvgMs:   values[1],
			BestMs:  values[2],
			WorstMs: values[3],
			StdevMs: values[4],
			CGNAT:   isCGNATAddr(host),
		})
	}
	return hops, nil
}

// parseHopIndex accepts the "N.|--" hop prefix used by mtr report mode.
func parseHopIndex(field string) (int, bool) {
	field = strings.TrimSuffix(field, "|--")
	field = strings.TrimSuffix(field, ".")
	index, err := strconv.Atoi(field)
	if err != nil || index <= 0 {
		return 0, false
	}
	return index, true
}

func isCGNATAddr(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return cgnatRange.Contains(addr)
}
