package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/linkproofhq/linkproof/pkg/types"
)

// icmpOverheadBytes is the IP+ICMP header overhead added to the payload
// size when reporting the discovered MTU.
const icmpOverheadBytes = 28

// maxProbePayload starts the search just under the common 1500-byte
// Ethernet MTU.
const maxProbePayload = 1472

// MTUConfig configures path MTU discovery.
type MTUConfig struct {
	Host string
}

// MTUProbe binary-searches the largest DF-bit ping payload the path
// forwards without fragmentation.
type MTUProbe struct {
	cfg    MTUConfig
	runner Runner
	goos   string
}

func NewMTU(cfg MTUConfig, runner Runner) *MTUProbe {
	if cfg.Host == "" {
		cfg.Host = "8.8.8.8"
	}
	return &MTUProbe{cfg: cfg, runner: runner, goos: runtime.GOOS}
}

func (p *MTUProbe) Kind() types.ProbeKind { return types.KindMTUDiscovery }

func (p *MTUProbe) Run(ctx context.Context) types.Sample {
	var dfArgs []string
	var sizeFlag, countFlag string
	switch p.goos {
	case "linux":
		dfArgs = []string{"-M", "do"}
		sizeFlag, countFlag = "-s", "-c"
	case "windows":
		dfArgs = []string{"-f"}
		sizeFlag, countFlag = "-l", "-n"
	default:
		return types.Fail(p.Kind(), types.ReasonUnsupported,
			fmt.Sprintf("path MTU discovery not supported on %s", p.goos))
	}

	if _, err := p.runner.lookPath("ping"); err != nil {
		return types.Fail(p.Kind(), types.ReasonToolNotFound, "ping not found in PATH")
	}

	low, high := 0, maxProbePayload
	mtu := 0
	for low <= high {
		mid := (low + high) / 2
		ok, err := p.probeSize(ctx, dfArgs, countFlag, sizeFlag, mid)
		if err != nil {
			return types.Fail(p.Kind(), types.ReasonTimeout, "MTU discovery interrupted")
		}
		if ok {
			mtu = mid + icmpOverheadBytes
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	if mtu == 0 {
		return types.Fail(p.Kind(), types.ReasonNetworkUnreachable,
			fmt.Sprintf("no DF-bit echo reply from %s at any payload size", p.cfg.Host))
	}
	return types.Sample{Kind: p.Kind(), MTU: &types.MTUSample{PathMTUBytes: mtu}}
}

// probeSize sends one DF-bit echo with the given payload size. A non-zero
// exit means the payload did not fit; only cancellation is an error.
func (p *MTUProbe) probeSize(ctx context.Context, dfArgs []string, countFlag, sizeFlag string, size int) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	args := append(append([]string{}, dfArgs...), countFlag, "1", sizeFlag, strconv.Itoa(size), p.cfg.Host)
	_, err := p.runner.run(probeCtx, "ping", args...)
	if err == nil {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A single silent drop counts as "did not fit" and the search
		// continues; only parent-context expiry aborts the probe.
		return false, nil
	}
	return false, nil
}
