package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/iti/ecmsim"
	"github.com/iti/ecmsim/internal/logging"
	"github.com/iti/ecmsim/internal/observability"
	"github.com/iti/ecmsim/server"
	"github.com/prometheus/client_golang/prometheus"
)

// cliOptions are the parsed command-line flags
type cliOptions struct {
	configPath  string
	writeConfig string
	scenarios   string
	runs        int
	seed        uint64
	parallel    bool
	outPath     string
	topoPath    string
	traceDir    string
	metricsAddr string
	wsAddr      string
	holdOpen    bool
}

func parseFlags(args []string, errOut io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet("ecmsim", flag.ContinueOnError)
	fs.SetOutput(errOut)

	opts := new(cliOptions)
	fs.StringVar(&opts.configPath, "config", "", "yaml or json configuration file; defaults are used when empty")
	fs.StringVar(&opts.writeConfig, "write-config", "", "write the effective configuration to this file and exit")
	fs.StringVar(&opts.scenarios, "scenarios", "", "comma-separated scenarios to run (A1,A2,B1,B2); all when empty")
	fs.IntVar(&opts.runs, "runs", 0, "replications per scenario, overriding the configuration when > 0")
	fs.Uint64Var(&opts.seed, "seed", 0, "seed for reproducible runs, overriding the configuration when > 0")
	fs.BoolVar(&opts.parallel, "parallel", false, "run scenarios in parallel")
	fs.StringVar(&opts.outPath, "out", "results.json", "file receiving the report, yaml or json by extension")
	fs.StringVar(&opts.topoPath, "topology", "", "file receiving the topology snapshot of the first run")
	fs.StringVar(&opts.traceDir, "trace-dir", "", "directory receiving per-run transition traces; tracing is off when empty")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; disabled when empty")
	fs.StringVar(&opts.wsAddr, "ws-addr", "", "HTTP address streaming progress over websocket at /ws; disabled when empty")
	fs.BoolVar(&opts.holdOpen, "hold", false, "keep serving /ws and /metrics after the runs finish, until interrupted")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	log := logging.NewFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], log); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Error(ctx, "ecmsim failed", logging.Err(err))
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides
func loadConfig(opts *cliOptions) (ecmsim.Config, error) {
	cfg := ecmsim.DefaultConfig()
	if opts.configPath != "" {
		read, err := ecmsim.LoadConfig(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *read
	}
	if opts.runs > 0 {
		cfg.Runs = opts.runs
	}
	if opts.seed > 0 {
		cfg.Seed = opts.seed
	}
	if opts.traceDir != "" {
		cfg.Trace = true
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, log logging.Logger) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.writeConfig != "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.WriteToFile(opts.writeConfig); err != nil {
			return err
		}
		log.Info(ctx, "configuration written", logging.String("path", opts.writeConfig))
		return nil
	}

	scenarios, err := ecmsim.SelectScenarios(opts.scenarios)
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	runOpts := ecmsim.RunOptions{Logger: log, Parallel: opts.parallel}
	servers := []*http.Server{}

	if opts.metricsAddr != "" {
		collector, err := observability.NewRunCollector(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		runOpts.Metrics = collector
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		servers = append(servers, serve(ctx, opts.metricsAddr, mux, "metrics", log))
	}

	var hub *server.ProgressHub
	if opts.wsAddr != "" {
		hub = server.NewProgressHub(log)
		go hub.Run(ctx)
		servers = append(servers, serve(ctx, opts.wsAddr, hub.Handler(), "websocket", log))
	}

	lastLogged := -10.0
	runOpts.Progress = func(pct float64) {
		if hub != nil {
			hub.PublishProgress(pct)
		}
		if pct-lastLogged >= 10.0 {
			lastLogged = pct
			log.Info(ctx, "progress", logging.Float64("percent", pct))
		}
	}
	runOpts.RunDone = func(res *ecmsim.Results, topo ecmsim.Topology) {
		if hub != nil {
			hub.PublishRun(res, topo)
		}
	}

	started := time.Now()
	rpt, err := ecmsim.RunScenarios(ctx, cfg, scenarios, runOpts)
	if err != nil {
		shutdown(servers)
		return err
	}
	log.Info(ctx, "experiment completed",
		logging.Int("scenarios", len(rpt.Scenarios)),
		logging.String("elapsed", time.Since(started).Round(time.Millisecond).String()))

	for _, sr := range rpt.Scenarios {
		log.Info(ctx, "scenario summary",
			logging.String("scenario", sr.Scenario.Name),
			logging.Float64("pdr_mean", sr.PDR.Mean),
			logging.Float64("energy_mean_mj", sr.Energy.Mean),
			logging.Float64("reconnect_latency_mean_s", sr.Reconnect.Mean),
			logging.Float64("identifier_usage_mean", sr.Usage.Mean))
	}

	if err := writeOutputs(opts, rpt, log); err != nil {
		shutdown(servers)
		return err
	}

	if hub != nil {
		hub.PublishReport(rpt)
	}
	if opts.holdOpen && len(servers) > 0 {
		log.Info(ctx, "serving results until interrupted")
		<-ctx.Done()
	}
	shutdown(servers)
	return nil
}

func writeOutputs(opts *cliOptions, rpt *ecmsim.Report, log logging.Logger) error {
	if opts.outPath != "" {
		if err := rpt.WriteToFile(opts.outPath); err != nil {
			return err
		}
		log.Info(context.Background(), "report written", logging.String("path", opts.outPath))
	}
	if opts.topoPath != "" && rpt.Topology != nil {
		if err := rpt.Topology.WriteToFile(opts.topoPath); err != nil {
			return err
		}
	}
	if opts.traceDir != "" {
		if err := os.MkdirAll(opts.traceDir, 0o755); err != nil {
			return fmt.Errorf("create trace directory: %w", err)
		}
		for _, trc := range rpt.Traces {
			name := filepath.Join(opts.traceDir, trc.ExpName+".yaml")
			if _, err := trc.WriteToFile(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func serve(ctx context.Context, addr string, handler http.Handler, what string, log logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, what+" server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving "+what, logging.String("addr", addr))
	return srv
}

func shutdown(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(ctx)
	}
}
