package probe

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/linkproofhq/linkproof/pkg/types"
)

// JitterConfig configures the UDP jitter/loss probe.
type JitterConfig struct {
	Server    string
	Port      int
	Duration  time.Duration
	Bandwidth string
}

// JitterProbe drives an iperf3 UDP stream and reads jitter and loss from
// the JSON end-of-run summary.
type JitterProbe struct {
	cfg    JitterConfig
	runner Runner
}

func NewJitter(cfg JitterConfig, runner Runner) *JitterProbe {
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.Bandwidth == "" {
		cfg.Bandwidth = "100M"
	}
	return &JitterProbe{cfg: cfg, runner: runner}
}

func (p *JitterProbe) Kind() types.ProbeKind { return types.KindJitterLoss }

func (p *JitterProbe) Run(ctx context.Context) types.Sample {
	if _, err := p.runner.lookPath("iperf3"); err != nil {
		return types.Fail(p.Kind(), types.ReasonToolNotFound, "iperf3 not found in PATH")
	}

	seconds := int(p.cfg.Duration / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	args := []string{
		"-c", p.cfg.Server,
		"-p", strconv.Itoa(p.cfg.Port),
		"-u", "-b", p.cfg.Bandwidth,
		"-t", strconv.Itoa(seconds),
		"--json",
	}
	out, err := p.runner.run(ctx, "iperf3", args...)
	if err != nil {
		return failFromTool(p.Kind(), "iperf3", err, out)
	}

	jitter, err := parseUDPSummary(out)
	if err != nil {
		return types.Fail(p.Kind(), types.ReasonParseError, err.Error())
	}
	return types.Sample{Kind: p.Kind(), Jitter: jitter}
}

type udpReport struct {
	End struct {
		Sum struct {
			JitterMs    *float64 `json:"jitter_ms"`
			LostPackets *int64   `json:"lost_packets"`
			Packets     *int64   `json:"packets"`
		} `json:"sum"`
	} `json:"end"`
}

func parseUDPSummary(output []byte) (*types.JitterSample, error) {
	var report udpReport
	if err := json.Unmarshal(output, &report); err != nil {
		return nil, &parseError{"iperf3 UDP output is not valid JSON"}
	}
	sum := report.End.Sum
	if sum.JitterMs == nil || sum.LostPackets == nil || sum.Packets == nil {
		return nil, &parseError{"iperf3 UDP summary is incomplete"}
	}
	return &types.JitterSample{
		JitterMs:    *sum.JitterMs,
		LostPackets: *sum.LostPackets,
		Packets:     *sum.Packets,
	}, nil
}

type parseError struct {
	msg string
}

func (e *parseError) Error() string { return e.msg }
