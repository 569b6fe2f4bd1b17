package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Session.Runs != 5 || cfg.Session.Parallel != 1 {
		t.Fatalf("session defaults = %+v", cfg.Session)
	}
	if cfg.Probes.PingHost != "8.8.8.8" || cfg.Probes.MTRCount != 200 {
		t.Fatalf("probe defaults = %+v", cfg.Probes)
	}
	if len(cfg.Probes.DNSResolvers) != 2 {
		t.Fatalf("resolver defaults = %v", cfg.Probes.DNSResolvers)
	}
	if cfg.Report.Output != DefaultOutputPath {
		t.Fatalf("output default = %q", cfg.Report.Output)
	}
	if !cfg.SerializeSaturating() {
		t.Fatal("saturating serialization should default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
session:
  runs: 10
  parallel: 2
  serialize_saturating: false
  probe_timeout_sec: 90
probes:
  ping_host: 1.1.1.1
  mtr_count: 50
  dns_resolvers: ["9.9.9.9"]
report:
  output: /tmp/evidence.json
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Runs != 10 || cfg.Session.Parallel != 2 {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if cfg.ProbeTimeout() != 90*time.Second {
		t.Fatalf("probe timeout = %v", cfg.ProbeTimeout())
	}
	if cfg.SerializeSaturating() {
		t.Fatal("serialize_saturating: false should stick")
	}
	if cfg.Probes.PingHost != "1.1.1.1" || cfg.Probes.MTRCount != 50 {
		t.Fatalf("probes = %+v", cfg.Probes)
	}
	if len(cfg.Probes.DNSResolvers) != 1 || cfg.Probes.DNSResolvers[0] != "9.9.9.9" {
		t.Fatalf("resolvers = %v", cfg.Probes.DNSResolvers)
	}
	if cfg.Report.Output != "/tmp/evidence.json" {
		t.Fatalf("output = %q", cfg.Report.Output)
	}
	// Unset fields still pick up defaults.
	if cfg.Probes.DNSDomain != "google.com" {
		t.Fatalf("dns domain = %q", cfg.Probes.DNSDomain)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"negative runs", "session:\n  runs: -1"},
		{"parallel above runs", "session:\n  runs: 2\n  parallel: 4"},
		{"bad mtr count", "probes:\n  mtr_count: -5"},
		{"bad iperf port", "probes:\n  iperf_port: 70000"},
		{"signature without key", "catalog:\n  signature_path: /tmp/c.minisig"},
	}

	dir := t.TempDir()
	for _, tc := range cases {
		path := filepath.Join(dir, tc.name+".yaml")
		if err := os.WriteFile(path, []byte(tc.doc), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		_, err := Load(path)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: err = %v, want ConfigurationError", tc.name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromEnvFallsBackToDefaults(t *testing.T) {
	t.Setenv("LINKPROOF_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Session.Runs != 5 {
		t.Fatalf("fallback config = %+v", cfg.Session)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("session: ["), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
