package probe

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/linkproofhq/linkproof/pkg/types"
)

// DNSConfig configures the per-resolver lookup timing probe.
type DNSConfig struct {
	Domain    string
	Resolvers []string
	Timeout   time.Duration
}

// DNSProbe times A-record lookups against each configured resolver
// directly, bypassing the system resolver.
type DNSProbe struct {
	cfg    DNSConfig
	lookup func(ctx context.Context, resolver, domain string) error
	now    func() time.Time
}

func NewDNS(cfg DNSConfig) *DNSProbe {
	if cfg.Domain == "" {
		cfg.Domain = "google.com"
	}
	if len(cfg.Resolvers) == 0 {
		cfg.Resolvers = []string{"1.1.1.1", "8.8.8.8"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &DNSProbe{
		cfg:    cfg,
		lookup: lookupViaResolver,
		now:    time.Now,
	}
}

func (p *DNSProbe) Kind() types.ProbeKind { return types.KindDNSLatency }

func (p *DNSProbe) Run(ctx context.Context) types.Sample {
	lookups := make([]types.ResolverLatency, 0, len(p.cfg.Resolvers))
	failures := 0

	for _, resolver := range p.cfg.Resolvers {
		lookupCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		start := p.now()
		err := p.lookup(lookupCtx, resolver, p.cfg.Domain)
		elapsed := p.now().Sub(start)
		cancel()

		entry := types.ResolverLatency{Resolver: resolver}
		if err != nil {
			entry.TimedOut = true
			failures++
		} else {
			entry.LatencyMs = float64(elapsed.Microseconds()) / 1000.0
		}
		lookups = append(lookups, entry)

		if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}

	if failures == len(lookups) {
		return types.Fail(p.Kind(), types.ReasonTimeout, "all resolvers failed to answer within the timeout")
	}
	return types.Sample{
		Kind: p.Kind(),
		DNS:  &types.DNSSample{Domain: p.cfg.Domain, Lookups: lookups},
	}
}

// lookupViaResolver resolves through one specific nameserver by pinning the
// resolver dial address to it.
func lookupViaResolver(ctx context.Context, resolver, domain string) error {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(resolver, "53"))
		},
	}
	addrs, err := r.LookupHost(ctx, domain)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return errors.New("no addresses returned")
	}
	return nil
}
