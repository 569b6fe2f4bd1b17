package probe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/linkproofhq/linkproof/pkg/types"
)

var pingRTTPattern = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

// BufferbloatConfig configures the latency-under-load probe. Immutable once
// the session starts.
type BufferbloatConfig struct {
	Server       string
	Port         int
	PingHost     string
	Duration     time.Duration
	PingInterval time.Duration
}

// BufferbloatProbe measures baseline RTT, then RTT while iperf3 saturates
// the link in each direction.
type BufferbloatProbe struct {
	cfg    BufferbloatConfig
	runner Runner
	goos   string
}

func NewBufferbloat(cfg BufferbloatConfig, runner Runner) *BufferbloatProbe {
	if cfg.PingHost == "" {
		cfg.PingHost = "8.8.8.8"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 100 * time.Millisecond
	}
	return &BufferbloatProbe{cfg: cfg, runner: runner, goos: runtime.GOOS}
}

func (p *BufferbloatProbe) Kind() types.ProbeKind { return types.KindBufferbloat }

func (p *BufferbloatProbe) Run(ctx context.Context) types.Sample {
	if _, err := p.runner.lookPath("ping"); err != nil {
		return types.Fail(p.Kind(), types.ReasonToolNotFound, "ping not found in PATH")
	}
	if _, err := p.runner.lookPath("iperf3"); err != nil {
		return types.Fail(p.Kind(), types.ReasonToolNotFound, "iperf3 not found in PATH")
	}

	baseline := p.sampleRTTs(ctx, p.cfg.Duration)
	if err := ctx.Err(); err != nil {
		return types.Fail(p.Kind(), types.ReasonTimeout, "baseline RTT sampling interrupted")
	}
	if len(baseline) == 0 {
		return types.Fail(p.Kind(), types.ReasonNetworkUnreachable,
			fmt.Sprintf("no echo replies from %s during baseline", p.cfg.PingHost))
	}

	upload, fail := p.loadedRTTs(ctx, false)
	if fail != nil {
		return types.Fail(p.Kind(), fail.Reason, fail.Detail)
	}
	download, fail := p.loadedRTTs(ctx, true)
	if fail != nil {
		return types.Fail(p.Kind(), fail.Reason, fail.Detail)
	}

	if len(upload) == 0 || len(download) == 0 {
		return types.Fail(p.Kind(), types.ReasonNetworkUnreachable,
			fmt.Sprintf("no echo replies from %s under load", p.cfg.PingHost))
	}

	return types.Sample{
		Kind: p.Kind(),
		Bufferbloat: &types.BufferbloatSample{
			BaselineAvgMs:   mean(baseline),
			BaselineStdevMs: stdev(baseline),
			BaselineCount:   len(baseline),
			UploadAvgMs:     mean(upload),
			DownloadAvgMs:   mean(download),
		},
	}
}

// loadedRTTs saturates the link with a TCP stream while sampling RTTs
// concurrently. The reverse flag asks the server to send, saturating the
// download direction instead of the upload.
func (p *BufferbloatProbe) loadedRTTs(ctx context.Context, reverse bool) ([]float64, *types.Failure) {
	seconds := int(p.cfg.Duration / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	args := []string{"-c", p.cfg.Server, "-p", strconv.Itoa(p.cfg.Port), "-t", strconv.Itoa(seconds)}
	if reverse {
		args = append(args, "-R")
	}

	var rtts []float64
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		out, err := p.runner.run(gctx, "iperf3", args...)
		if err != nil {
			return &failureError{classifyToolError("iperf3", err, out)}
		}
		return nil
	})
	grp.Go(func() error {
		rtts = p.sampleRTTs(gctx, p.cfg.Duration)
		return nil
	})

	if err := grp.Wait(); err != nil {
		var fe *failureError
		if errors.As(err, &fe) {
			return nil, &fe.failure
		}
		f := types.Failure{Reason: types.ReasonNetworkUnreachable, Detail: err.Error()}
		return nil, &f
	}
	return rtts, nil
}

// sampleRTTs issues single-echo pings paced by a rate limiter until the
// window elapses. Lost echoes are dropped, matching the baseline semantics.
func (p *BufferbloatProbe) sampleRTTs(ctx context.Context, window time.Duration) []float64 {
	limiter := rate.NewLimiter(rate.Every(p.cfg.PingInterval), 1)
	deadline := time.Now().Add(window)

	var rtts []float64
	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if rtt, ok := p.pingOnce(ctx); ok {
			rtts = append(rtts, rtt)
		}
	}
	return rtts
}

func (p *BufferbloatProbe) pingOnce(ctx context.Context) (float64, bool) {
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var args []string
	if p.goos == "windows" {
		args = []string{"-n", "1", "-w", "1000", p.cfg.PingHost}
	} else {
		args = []string{"-c", "1", "-W", "1", p.cfg.PingHost}
	}
	out, err := p.runner.run(pingCtx, "ping", args...)
	if err != nil {
		return 0, false
	}
	return parsePingRTT(out)
}

func parsePingRTT(output []byte) (float64, bool) {
	m := pingRTTPattern.FindSubmatch(output)
	if m == nil {
		return 0, false
	}
	rtt, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return rtt, true
}

type failureError struct {
	failure types.Failure
}

func (e *failureError) Error() string {
	return string(e.failure.Reason) + ": " + e.failure.Detail
}
