package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultDialTimeout = 3 * time.Second
	defaultUDPTimeout  = 5 * time.Second
)

// Prober discovers a usable server from a catalog. It prefers endpoints that
// accept both a TCP connection and a short UDP stream, falling back to
// TCP-only endpoints, and finally to the catalog's first entry so a run can
// still proceed and report the resulting failures.
type Prober struct {
	DialTimeout time.Duration
	UDPTimeout  time.Duration

	// Dial and CheckUDP are overridable for tests. Dial defaults to a plain
	// net.Dialer; CheckUDP defaults to a one second iperf3 UDP exchange.
	Dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	CheckUDP func(ctx context.Context, host string, port int) bool

	Logger logrus.FieldLogger
}

// Discover walks the catalog twice: first for a server with TCP and UDP
// support, then for any server that at least accepts TCP. When nothing
// responds it returns the first server's first port with UDP unset.
func (p *Prober) Discover(ctx context.Context, servers []Server) (Selection, error) {
	if len(servers) == 0 {
		return Selection{}, fmt.Errorf("no servers to probe")
	}

	log := p.logger()
	for _, srv := range servers {
		for _, port := range srv.Ports() {
			if err := ctx.Err(); err != nil {
				return Selection{}, err
			}
			if !p.tcpOpen(ctx, srv.Host, port) {
				continue
			}
			if p.udpSupported(ctx, srv.Host, port) {
				log.WithFields(logrus.Fields{"server": srv.Host, "port": port}).
					Info("selected server with TCP and UDP support")
				return Selection{Host: srv.Host, Description: srv.Description, Port: port, UDP: true}, nil
			}
			log.WithFields(logrus.Fields{"server": srv.Host, "port": port}).
				Debug("TCP reachable but UDP unsupported")
		}
	}

	log.Warn("no server with UDP support found, trying TCP-only")
	for _, srv := range servers {
		for _, port := range srv.Ports() {
			if err := ctx.Err(); err != nil {
				return Selection{}, err
			}
			if p.tcpOpen(ctx, srv.Host, port) {
				log.WithFields(logrus.Fields{"server": srv.Host, "port": port}).
					Info("selected TCP-only server, UDP tests may fail")
				return Selection{Host: srv.Host, Description: srv.Description, Port: port}, nil
			}
		}
	}

	first := servers[0]
	sel := Selection{Host: first.Host, Description: first.Description, Port: first.Ports()[0]}
	log.WithFields(logrus.Fields{"server": sel.Host, "port": sel.Port}).
		Warn("no server responded, using catalog fallback")
	return sel, nil
}

func (p *Prober) tcpOpen(ctx context.Context, host string, port int) bool {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := p.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	conn, err := dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (p *Prober) udpSupported(ctx context.Context, host string, port int) bool {
	if p.CheckUDP != nil {
		return p.CheckUDP(ctx, host, port)
	}

	timeout := p.UDPTimeout
	if timeout <= 0 {
		timeout = defaultUDPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "iperf3",
		"-c", host, "-p", strconv.Itoa(port), "-u", "-b", "1M", "-t", "1", "--json")
	out, err := cmd.Output()
	if err != nil {
		return false
	}

	var report struct {
		End struct {
			Sum struct {
				JitterMs    *float64 `json:"jitter_ms"`
				LostPackets *int64   `json:"lost_packets"`
				Packets     *int64   `json:"packets"`
			} `json:"sum"`
		} `json:"end"`
	}
	if err := json.Unmarshal(out, &report); err != nil {
		return false
	}
	sum := report.End.Sum
	return sum.JitterMs != nil && sum.LostPackets != nil && sum.Packets != nil
}

func (p *Prober) logger() logrus.FieldLogger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}
