package ecmsim

// scenario.go runs the comparison experiment: each scenario fixes the connection
// management mode and the scheduling algorithm, and is replicated Config.Runs times.
// Scenarios may run in parallel since every run owns its configuration copy and state.

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iti/ecmsim/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/iti/ecmsim"

// Scenario names a combination of mode and algorithm
type Scenario struct {
	Name      string    `json:"name" yaml:"name"`
	Mode      Mode      `json:"mode" yaml:"mode"`
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`
}

// DefaultScenarios are the four standard comparisons
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "A1", Mode: IdleTimeout, Algorithm: RoundRobin},
		{Name: "A2", Mode: IdleTimeout, Algorithm: ProportionalFair},
		{Name: "B1", Mode: AlwaysConnected, Algorithm: RoundRobin},
		{Name: "B2", Mode: AlwaysConnected, Algorithm: ProportionalFair},
	}
}

// SelectScenarios picks default scenarios from a comma-separated list of names.
// An empty list selects all of them.
func SelectScenarios(names string) ([]Scenario, error) {
	all := DefaultScenarios()
	if strings.TrimSpace(names) == "" {
		return all, nil
	}
	byName := make(map[string]Scenario)
	for _, scn := range all {
		byName[scn.Name] = scn
	}
	selected := []Scenario{}
	errs := []error{}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		scn, present := byName[name]
		if !present {
			errs = append(errs, fmt.Errorf("unknown scenario %q", name))
			continue
		}
		selected = append(selected, scn)
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return selected, nil
}

// Apply returns a copy of cfg with the scenario's mode and algorithm
func (scn Scenario) Apply(cfg Config) Config {
	cfg.Mode = scn.Mode
	cfg.Algorithm = scn.Algorithm
	cfg.Profiles = append([]TrafficProfile(nil), cfg.Profiles...)
	return cfg
}

// Aggregate summarizes a scalar across the runs of a scenario
type Aggregate struct {
	Mean float64 `json:"mean" yaml:"mean"`
	Std  float64 `json:"std" yaml:"std"`
}

func aggregate(values []float64) Aggregate {
	mean, std := meanStd(values)
	return Aggregate{Mean: mean, Std: std}
}

// ScenarioReport holds every run of a scenario and the cross-run aggregates
type ScenarioReport struct {
	Scenario  Scenario   `json:"scenario" yaml:"scenario"`
	Runs      []*Results `json:"runs" yaml:"runs"`
	PDR       Aggregate  `json:"pdr" yaml:"pdr"`
	Energy    Aggregate  `json:"energy" yaml:"energy"`
	Reconnect Aggregate  `json:"reconnect" yaml:"reconnect"`
	Usage     Aggregate  `json:"usage" yaml:"usage"`
}

func (sr *ScenarioReport) summarize() {
	pdr, energy, reconnect, usage := []float64{}, []float64{}, []float64{}, []float64{}
	for _, res := range sr.Runs {
		pdr = append(pdr, res.Throughput.PDR)
		energy = append(energy, res.Energy.Mean)
		reconnect = append(reconnect, res.Latency.Reconnect.Mean)
		usage = append(usage, res.Identifiers.AvgUsage)
	}
	sr.PDR = aggregate(pdr)
	sr.Energy = aggregate(energy)
	sr.Reconnect = aggregate(reconnect)
	sr.Usage = aggregate(usage)
}

// Report is the outcome of RunScenarios. Topology is the final snapshot of the
// first run that completed.
type Report struct {
	Scenarios []*ScenarioReport `json:"scenarios" yaml:"scenarios"`
	Topology  *Topology         `json:"topology" yaml:"topology"`
	Traces    []*TraceManager   `json:"-" yaml:"-"`
}

// WriteToFile stores the report, as yaml or json chosen by the file extension
func (rpt *Report) WriteToFile(filename string) error {
	return writeDesc(filename, rpt)
}

// RunOptions carries the collaborators of RunScenarios
type RunOptions struct {
	Logger   logging.Logger
	Metrics  MetricsRecorder
	Parallel bool

	// Progress receives the overall progress in percent, never decreasing
	Progress func(pct float64)

	// RunDone is called with the results of each run as it completes
	RunDone func(res *Results, topo Topology)
}

// progressTracker folds per-run progress into monotone overall progress
type progressTracker struct {
	mu       sync.Mutex
	done     []float64 // completed runs plus the fraction of the current one, by scenario
	total    float64
	last     float64
	callback func(pct float64)
}

func (pt *progressTracker) update(scnIdx, run int, pct float64) {
	if pt.callback == nil {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.done[scnIdx] = float64(run) + pct/100.0
	sum := 0.0
	for _, d := range pt.done {
		sum += d
	}
	overall := 100.0 * sum / pt.total
	if overall < pt.last {
		return
	}
	pt.last = overall
	pt.callback(overall)
}

// RunScenarios runs every scenario cfg.Runs times. The configuration is validated
// before any run starts; the first failing run stops the experiment.
func RunScenarios(ctx context.Context, cfg Config, scenarios []Scenario, opts RunOptions) (*Report, error) {
	for _, scn := range scenarios {
		scnCfg := scn.Apply(cfg)
		if err := scnCfg.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scn.Name, err)
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}

	rpt := &Report{Scenarios: make([]*ScenarioReport, len(scenarios))}
	tracker := &progressTracker{done: make([]float64, len(scenarios)),
		total: float64(len(scenarios) * cfg.Runs), callback: opts.Progress}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	runScenario := func(idx int) error {
		scn := scenarios[idx]
		sr := &ScenarioReport{Scenario: scn, Runs: make([]*Results, 0, cfg.Runs)}
		for run := 0; run < cfg.Runs; run++ {
			res, topo, trc, err := runOnce(ctx, scn, run, cfg, opts, func(pct float64) {
				tracker.update(idx, run, pct)
			})
			if err != nil {
				cancel()
				return err
			}
			sr.Runs = append(sr.Runs, res)

			mu.Lock()
			if rpt.Topology == nil {
				rpt.Topology = &topo
			}
			if trc.Active() {
				rpt.Traces = append(rpt.Traces, trc)
			}
			mu.Unlock()
			if opts.RunDone != nil {
				opts.RunDone(res, topo)
			}
		}
		sr.summarize()
		rpt.Scenarios[idx] = sr
		return nil
	}

	if !opts.Parallel {
		for idx := range scenarios {
			if err := runScenario(idx); err != nil {
				return nil, err
			}
		}
		return rpt, nil
	}

	errs := make([]error, len(scenarios))
	var wg sync.WaitGroup
	for idx := range scenarios {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = runScenario(idx)
		}(idx)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return rpt, nil
}

// runOnce executes one run of a scenario inside its own span
func runOnce(ctx context.Context, scn Scenario, run int, cfg Config, opts RunOptions,
	progress func(pct float64)) (*Results, Topology, *TraceManager, error) {

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ecmsim.run", trace.WithAttributes(
		attribute.String("scenario", scn.Name),
		attribute.Int("run", run),
		attribute.String("mode", string(scn.Mode)),
		attribute.String("algorithm", string(scn.Algorithm)),
	))
	defer span.End()

	runCfg := scn.Apply(cfg)
	if runCfg.Seed != 0 {
		runCfg.Seed += uint64(run)
	}
	trc := CreateTraceManager(fmt.Sprintf("%s-%d", scn.Name, run), runCfg.Trace)

	_, log := logging.WithRunLogger(ctx, opts.Logger)
	sim, err := NewSimulator(runCfg, Options{Scenario: scn.Name, Run: run, Logger: log,
		Metrics: opts.Metrics, Trace: trc})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, Topology{}, nil, err
	}

	res, err := sim.Run(ctx, func(pct float64, _ *Results) { progress(pct) })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, Topology{}, nil, err
	}
	span.SetAttributes(
		attribute.Float64("pdr", res.Throughput.PDR),
		attribute.Float64("energy.mean", res.Energy.Mean),
		attribute.Int("reconnects", res.Latency.Reconnect.Count),
	)
	return res, sim.Snapshot(), trc, nil
}
