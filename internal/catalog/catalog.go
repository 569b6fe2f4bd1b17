// Package catalog holds the set of public iperf3 servers the saturating
// probes run against, and discovers which of them is reachable. Catalogs can
// be loaded from a YAML file, optionally verified against a detached
// minisign signature, or fall back to the built-in server list.
package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/linkproofhq/linkproof/pkg/types"
)

// Capability describes what an endpoint can serve.
type Capability string

const (
	CapTCP    Capability = "tcp"
	CapTCPUDP Capability = "tcp+udp"
)

// RequiredCapability maps a probe kind to the endpoint capability it needs.
// Kinds that do not use the iperf3 endpoint require nothing.
func RequiredCapability(kind types.ProbeKind) Capability {
	switch kind {
	case types.KindBufferbloat:
		return CapTCP
	case types.KindJitterLoss:
		return CapTCPUDP
	default:
		return ""
	}
}

// Server is one iperf3 endpoint offering a contiguous port range.
type Server struct {
	Host        string `yaml:"host"`
	Description string `yaml:"description"`
	FirstPort   int    `yaml:"first_port"`
	LastPort    int    `yaml:"last_port"`
}

// Ports expands the server's port range in ascending order.
func (s Server) Ports() []int {
	if s.LastPort < s.FirstPort {
		return []int{s.FirstPort}
	}
	ports := make([]int, 0, s.LastPort-s.FirstPort+1)
	for p := s.FirstPort; p <= s.LastPort; p++ {
		ports = append(ports, p)
	}
	return ports
}

// Selection is the outcome of server discovery: one concrete host and port,
// and whether the endpoint accepted a UDP stream.
type Selection struct {
	Host        string `yaml:"host"`
	Description string `yaml:"description"`
	Port        int    `yaml:"port"`
	UDP         bool   `yaml:"udp"`
}

/// Endpoint renders the selection as host:port.
func (s Selection) Endpoint() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Capability reports what the selected endpoint was observed to serve.
func (s Selection) Capability() Capability {
	if s.UDP {
		return CapTCPUDP
	}
	return CapTCP
}

// Supports reports whether the endpoint satisfies the given probe kind.
func (s Selection) Supports(kind types.ProbeKind) bool {
	need := RequiredCapability(kind)
	if need == CapTCPUDP {
		return s.UDP
	}
	return true
}

// Default returns the built-in catalog of public iperf3 servers.
func Default() []Server {
	return []Server{
		{Host: "ping.online.net", Description: "Scaleway France", FirstPort: 5200, LastPort: 5209},
		{Host: "speedtest.milkywan.fr", Description: "CBO France", FirstPort: 9200, LastPort: 9240},
		{Host: "str.cubic.iperf.bytel.fr", Description: "Bouygues France", FirstPort: 9200, LastPort: 9240},
		{Host: "ch.iperf.014.fr", Description: "HostHatch Switzerland", FirstPort: 15315, LastPort: 15320},
	}
}

type catalogFile struct {
	Servers []Server `yaml:"servers"`
}

// Load reads a server catalog from a YAML file.
func Load(path string) ([]Server, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open catalog %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document and validates every entry.
func Parse(data []byte) ([]Server, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Servers) == 0 {
		return nil, fmt.Errorf("catalog lists no servers")
	}
	for i, s := range file.Servers {
		if s.Host == "" {
			return nil, fmt.Errorf("catalog server %d has no host", i)
		}
		if s.FirstPort <= 0 || s.FirstPort > 65535 {
			return nil, fmt.Errorf("catalog server %q has invalid first_port %d", s.Host, s.FirstPort)
		}
		if s.LastPort != 0 && (s.LastPort < s.FirstPort || s.LastPort > 65535) {
			return nil, fmt.Errorf("catalog server %q has invalid last_port %d", s.Host, s.LastPort)
		}
	}
	return file.Servers, nil
}
