package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/linkproofhq/linkproof/internal/catalog"
	"github.com/linkproofhq/linkproof/internal/config"
	"github.com/linkproofhq/linkproof/internal/logging"
	"github.com/linkproofhq/linkproof/internal/probe"
	"github.com/linkproofhq/linkproof/internal/report"
	"github.com/linkproofhq/linkproof/internal/session"
	"github.com/linkproofhq/linkproof/pkg/types"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "servers":
		err = listServers(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	runs := fs.Int("runs", 0, "Number of diagnostic runs")
	parallel := fs.Int("parallel", 0, "Number of run-iterations to execute concurrently")
	output := fs.String("output", "", "Report output path")
	mtrCount := fs.Int("mtr-count", 0, "Number of mtr packets per route trace")
	iperfServer := fs.String("iperf-server", "", "iperf3 server override (skips catalog discovery)")
	iperfPort := fs.Int("iperf-port", 0, "iperf3 port override")
	pingHost := fs.String("ping-host", "", "Host used for RTT, route, and MTU probes")
	quick := fs.Bool("quick", false, "Single fast run, no report file")
	verbose := fs.Bool("verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "runs":
			cfg.Session.Runs = *runs
		case "parallel":
			cfg.Session.Parallel = *parallel
		case "output":
			cfg.Report.Output = *output
		case "mtr-count":
			cfg.Probes.MTRCount = *mtrCount
		case "iperf-server":
			cfg.Probes.IperfServer = *iperfServer
		case "iperf-port":
			cfg.Probes.IperfPort = *iperfPort
		case "ping-host":
			cfg.Probes.PingHost = *pingHost
		}
	})
	if *quick {
		cfg.Session.Runs = 1
		cfg.Session.Parallel = 1
		cfg.Probes.MTRCount = 100
		cfg.Report.Output = ""
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(*verbose)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sel, err := selectServer(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"server": sel.Host,
		"port":   sel.Port,
		"udp":    sel.UDP,
	}).Info("server selected")

	suite := buildSuite(cfg, sel)

	sess, err := session.New(session.Config{
		Runs:                cfg.Session.Runs,
		Parallel:            cfg.Session.Parallel,
		SerializeSaturating: cfg.SerializeSaturating(),
		ProbeTimeout:        cfg.ProbeTimeout(),
	}, suite, session.WithLogger(logger))
	if err != nil {
		return err
	}

	results, err := sess.Run(runCtx)
	if err != nil {
		return err
	}

	rep := report.Assembler{}.Assemble(report.Meta{
		Runs:                cfg.Session.Runs,
		Parallel:            cfg.Session.Parallel,
		SerializedSaturated: cfg.SerializeSaturating(),
		Endpoint: &report.Endpoint{
			Host:        sel.Host,
			Port:        sel.Port,
			Description: sel.Description,
			UDP:         sel.UDP,
		},
		PingHost:  cfg.Probes.PingHost,
		DNSDomain: cfg.Probes.DNSDomain,
	}, results)

	report.Console{Out: os.Stdout}.Render(rep)

	if cfg.Report.Output != "" {
		if err := (report.FileSink{Path: cfg.Report.Output}).Write(rep); err != nil {
			return err
		}
		logger.WithField("path", cfg.Report.Output).Info("evidence report written")
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

// selectServer resolves the iperf3 endpoint: an explicit override is probed
// directly when it appears in the catalog and trusted as-is otherwise;
// without an override the whole catalog is walked.
func selectServer(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (catalog.Selection, error) {
	servers, err := loadCatalog(cfg)
	if err != nil {
		return catalog.Selection{}, err
	}

	prober := &catalog.Prober{Logger: logger}

	if cfg.Probes.IperfServer != "" {
		for _, srv := range servers {
			if srv.Host == cfg.Probes.IperfServer {
				return prober.Discover(ctx, []catalog.Server{srv})
			}
		}
		port := cfg.Probes.IperfPort
		if port == 0 {
			port = 5201
		}
		logger.WithField("server", cfg.Probes.IperfServer).
			Warn("server not in catalog, UDP support unknown")
		return catalog.Selection{Host: cfg.Probes.IperfServer, Port: port, UDP: true}, nil
	}

	return prober.Discover(ctx, servers)
}

func loadCatalog(cfg config.Config) ([]catalog.Server, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	if cfg.Catalog.PublicKey != "" {
		verifier, err := catalog.NewVerifier(cfg.Catalog.PublicKey)
		if err != nil {
			return nil, err
		}
		return verifier.LoadSigned(cfg.Catalog.Path, cfg.Catalog.SignaturePath)
	}
	return catalog.Load(cfg.Catalog.Path)
}

// buildSuite assembles the probe list in canonical kind order. A kind whose
// endpoint requirements cannot be met still gets a probe, one that records
// an Unsupported failure, so every run keeps one entry per kind.
func buildSuite(cfg config.Config, sel catalog.Selection) []probe.Probe {
	runner := probe.Runner{}

	jitter := probe.Probe(probe.NewJitter(probe.JitterConfig{
		Server:    sel.Host,
		Port:      sel.Port,
		Duration:  cfg.LoadDuration(),
		Bandwidth: cfg.Probes.UDPBandwidth,
	}, runner))
	if !sel.Supports(types.KindJitterLoss) {
		jitter = probe.Skipped(types.KindJitterLoss, "selected iperf3 server has no UDP support")
	}

	return []probe.Probe{
		probe.NewBufferbloat(probe.BufferbloatConfig{
			Server:   sel.Host,
			Port:     sel.Port,
			PingHost: cfg.Probes.PingHost,
			Duration: cfg.LoadDuration(),
		}, runner),
		jitter,
		probe.NewRoute(probe.RouteConfig{
			Target: cfg.Probes.PingHost,
			Count:  cfg.Probes.MTRCount,
		}, runner),
		probe.NewDNS(probe.DNSConfig{
			Domain:    cfg.Probes.DNSDomain,
			Resolvers: cfg.Probes.DNSResolvers,
		}),
		probe.NewMTU(probe.MTUConfig{
			Host: cfg.Probes.PingHost,
		}, runner),
	}
}

func listServers(args []string) error {
	fs := flag.NewFlagSet("servers", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	servers, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	fmt.Println("Available iperf3 servers:")
	for _, srv := range servers {
		ports := srv.Ports()
		portDisplay := fmt.Sprintf("port %d", ports[0])
		if len(ports) > 1 {
			portDisplay = fmt.Sprintf("ports %d-%d", ports[0], ports[len(ports)-1])
		}
		fmt.Printf("  %-30s - %s (%s)\n", srv.Host, srv.Description, portDisplay)
	}
	return nil
}

func printUsage() {
	fmt.Println("linkproof - network link diagnostics for ISP escalation")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  linkproof run [--config path] [--runs N] [--parallel N] [--output file]")
	fmt.Println("                [--mtr-count N] [--iperf-server host] [--iperf-port N]")
	fmt.Println("                [--ping-host host] [--quick] [--verbose]")
	fmt.Println("  linkproof servers [--config path]")
}
