// Package config loads and validates the YAML session configuration. A
// configuration error is the only fault that stops a diagnostic session
// before it starts; every later fault degrades into reported failures.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "LINKPROOF_CONFIG"
	DefaultConfigPath = "/etc/linkproof/config.yaml"

	DefaultOutputPath = "linkproof-report.json"
)

// ConfigurationError marks a fatal pre-session validation failure.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

type Config struct {
	Session SessionConfig `yaml:"session"`
	Probes  ProbesConfig  `yaml:"probes"`
	Catalog CatalogConfig `yaml:"catalog"`
	Report  ReportConfig  `yaml:"report"`
}

type SessionConfig struct {
	Runs     int `yaml:"runs"`
	Parallel int `yaml:"parallel"`
	// SerializeSaturating keeps load-generating probes from overlapping
	// when runs execute in parallel. Unset means enabled.
	SerializeSaturating *bool `yaml:"serialize_saturating"`
	ProbeTimeoutSec     int   `yaml:"probe_timeout_sec"`
}

type ProbesConfig struct {
	PingHost        string   `yaml:"ping_host"`
	MTRCount        int      `yaml:"mtr_count"`
	DNSDomain       string   `yaml:"dns_domain"`
	DNSResolvers    []string `yaml:"dns_resolvers"`
	IperfServer     string   `yaml:"iperf_server"`
	IperfPort       int      `yaml:"iperf_port"`
	LoadDurationSec int      `yaml:"load_duration_sec"`
	UDPBandwidth    string   `yaml:"udp_bandwidth"`
}

type CatalogConfig struct {
	Path          string `yaml:"path"`
	SignaturePath string `yaml:"signature_path"`
	PublicKey     string `yaml:"public_key"`
}

type ReportConfig struct {
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Session.Runs == 0 {
		c.Session.Runs = 5
	}
	if c.Session.Parallel == 0 {
		c.Session.Parallel = 1
	}
	if c.Session.ProbeTimeoutSec == 0 {
		c.Session.ProbeTimeoutSec = 120
	}
	if c.Probes.PingHost == "" {
		c.Probes.PingHost = "8.8.8.8"
	}
	if c.Probes.MTRCount == 0 {
		c.Probes.MTRCount = 200
	}
	if c.Probes.DNSDomain == "" {
		c.Probes.DNSDomain = "google.com"
	}
	if len(c.Probes.DNSResolvers) == 0 {
		c.Probes.DNSResolvers = []string{"1.1.1.1", "8.8.8.8"}
	}
	if c.Probes.LoadDurationSec == 0 {
		c.Probes.LoadDurationSec = 10
	}
	if c.Probes.UDPBandwidth == "" {
		c.Probes.UDPBandwidth = "100M"
	}
	if c.Report.Output == "" {
		c.Report.Output = DefaultOutputPath
	}
}

// SerializeSaturating resolves the tri-state setting; the default is on.
func (c Config) SerializeSaturating() bool {
	if c.Session.SerializeSaturating == nil {
		return true
	}
	return *c.Session.SerializeSaturating
}

// ProbeTimeout returns the per-probe timeout as a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Session.ProbeTimeoutSec) * time.Second
}

// LoadDuration returns the iperf3 load duration as a duration.
func (c Config) LoadDuration() time.Duration {
	return time.Duration(c.Probes.LoadDurationSec) * time.Second
}

// Validate checks the resolved configuration. All failures are
// ConfigurationErrors and abort the session before any probe runs.
func (c Config) Validate() error {
	if c.Session.Runs < 1 {
		return &ConfigurationError{Field: "session.runs", Msg: "must be at least 1"}
	}
	if c.Session.Parallel < 1 {
		return &ConfigurationError{Field: "session.parallel", Msg: "must be at least 1"}
	}
	if c.Session.Parallel > c.Session.Runs {
		return &ConfigurationError{Field: "session.parallel", Msg: "must not exceed session.runs"}
	}
	if c.Session.ProbeTimeoutSec <= 0 {
		return &ConfigurationError{Field: "session.probe_timeout_sec", Msg: "must be positive"}
	}
	if c.Probes.MTRCount < 1 {
		return &ConfigurationError{Field: "probes.mtr_count", Msg: "must be at least 1"}
	}
	if c.Probes.PingHost == "" {
		return &ConfigurationError{Field: "probes.ping_host", Msg: "must not be empty"}
	}
	if len(c.Probes.DNSResolvers) == 0 {
		return &ConfigurationError{Field: "probes.dns_resolvers", Msg: "at least one resolver required"}
	}
	if c.Probes.IperfPort < 0 || c.Probes.IperfPort > 65535 {
		return &ConfigurationError{Field: "probes.iperf_port", Msg: "must be a valid port"}
	}
	if c.Catalog.SignaturePath != "" && c.Catalog.PublicKey == "" {
		return &ConfigurationError{Field: "catalog.public_key", Msg: "required when signature_path is set"}
	}
	return nil
}

// Load reads a configuration file, fills in defaults, and validates it.
func Load(path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by LINKPROOF_CONFIG, falling back to the
// default path, and falling back to built-in defaults when neither exists.
func LoadFromEnv() (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}
