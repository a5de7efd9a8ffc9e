package ecmsim

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSelectScenarios(t *testing.T) {
	all, err := SelectScenarios("")
	if err != nil || len(all) != 4 {
		t.Fatalf("SelectScenarios(\"\") = %d scenarios, %v", len(all), err)
	}

	picked, err := SelectScenarios("B2, A1")
	if err != nil {
		t.Fatalf("SelectScenarios() error = %v", err)
	}
	if len(picked) != 2 || picked[0].Name != "B2" || picked[1].Mode != IdleTimeout {
		t.Fatalf("SelectScenarios() = %+v", picked)
	}

	if _, err := SelectScenarios("A1,C7,D"); err == nil || !strings.Contains(err.Error(), "C7") {
		t.Fatalf("SelectScenarios() error = %v, want unknown scenario C7", err)
	}
}

func TestScenarioApplyCopies(t *testing.T) {
	cfg := DefaultConfig()
	scn := Scenario{Name: "B2", Mode: AlwaysConnected, Algorithm: ProportionalFair}
	applied := scn.Apply(cfg)
	applied.Profiles[0].Share = 0.99

	if applied.Mode != AlwaysConnected || applied.Algorithm != ProportionalFair {
		t.Fatalf("Apply() = %q %q", applied.Mode, applied.Algorithm)
	}
	if cfg.Mode != IdleTimeout || cfg.Profiles[0].Share == 0.99 {
		t.Fatalf("Apply() changed the source configuration")
	}
}

func experimentConfig() Config {
	cfg := busyConfig(IdleTimeout, RoundRobin)
	cfg.Entities = 30
	cfg.MeasureTicks = 60
	cfg.Duration = 120
	cfg.Runs = 2
	cfg.Trace = true
	return cfg
}

func TestRunScenarios(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			cfg := experimentConfig()
			scenarios := DefaultScenarios()

			var mu sync.Mutex
			runsDone := 0
			pcts := []float64{}
			rpt, err := RunScenarios(context.Background(), cfg, scenarios, RunOptions{
				Parallel: parallel,
				Progress: func(pct float64) { pcts = append(pcts, pct) },
				RunDone: func(res *Results, topo Topology) {
					mu.Lock()
					defer mu.Unlock()
					runsDone += 1
					if len(topo.Entities) != 30 {
						t.Errorf("run %s/%d topology has %d entities", res.Scenario, res.Run, len(topo.Entities))
					}
				},
			})
			if err != nil {
				t.Fatalf("RunScenarios() error = %v", err)
			}

			if runsDone != 8 || len(rpt.Scenarios) != 4 {
				t.Fatalf("%d runs done, %d scenario reports; want 8 and 4", runsDone, len(rpt.Scenarios))
			}
			for idx, sr := range rpt.Scenarios {
				if sr.Scenario != scenarios[idx] || len(sr.Runs) != 2 {
					t.Fatalf("report %d = %+v with %d runs", idx, sr.Scenario, len(sr.Runs))
				}
				if sr.PDR.Mean < 0 || sr.PDR.Mean > 1 || sr.Energy.Mean <= 0 {
					t.Fatalf("scenario %s aggregates pdr %+v energy %+v", sr.Scenario.Name, sr.PDR, sr.Energy)
				}
				if sr.Runs[0].Run != 0 || sr.Runs[1].Run != 1 || sr.Runs[0].Mode != sr.Scenario.Mode {
					t.Fatalf("scenario %s runs mislabelled", sr.Scenario.Name)
				}
			}
			if rpt.Topology == nil || len(rpt.Traces) != 8 {
				t.Fatalf("topology %v, %d traces", rpt.Topology != nil, len(rpt.Traces))
			}

			for idx := 1; idx < len(pcts); idx++ {
				if pcts[idx] < pcts[idx-1] {
					t.Fatalf("progress went from %v to %v", pcts[idx-1], pcts[idx])
				}
			}
			if last := pcts[len(pcts)-1]; last < 100.0-1e-9 {
				t.Fatalf("final progress %v, want 100", last)
			}

			if err := rpt.WriteToFile(filepath.Join(t.TempDir(), "report.json")); err != nil {
				t.Fatalf("WriteToFile() error = %v", err)
			}
		})
	}
}

func TestParallelScenariosMatchSequential(t *testing.T) {
	cfg := busyConfig(IdleTimeout, RoundRobin)
	scenarios := DefaultScenarios()

	sequential, err := RunScenarios(context.Background(), cfg, scenarios, RunOptions{})
	if err != nil {
		t.Fatalf("sequential RunScenarios() error = %v", err)
	}
	parallel, err := RunScenarios(context.Background(), cfg, scenarios, RunOptions{Parallel: true})
	if err != nil {
		t.Fatalf("parallel RunScenarios() error = %v", err)
	}

	for idx := range scenarios {
		seq, par := sequential.Scenarios[idx].Runs[0], parallel.Scenarios[idx].Runs[0]
		if seq.Throughput.Transmitted != par.Throughput.Transmitted || seq.Throughput.Dropped != par.Throughput.Dropped ||
			seq.Energy.Mean != par.Energy.Mean {
			t.Fatalf("scenario %s: parallel %d sent %d dropped energy %v, sequential %d sent %d dropped energy %v",
				scenarios[idx].Name, par.Throughput.Transmitted, par.Throughput.Dropped, par.Energy.Mean,
				seq.Throughput.Transmitted, seq.Throughput.Dropped, seq.Energy.Mean)
		}
		if seq.Latency.Reconnect.Count != par.Latency.Reconnect.Count {
			t.Fatalf("scenario %s: parallel %d reconnects, sequential %d",
				scenarios[idx].Name, par.Latency.Reconnect.Count, seq.Latency.Reconnect.Count)
		}
	}
}

func TestRunScenariosValidatesFirst(t *testing.T) {
	cfg := experimentConfig()
	cfg.BlockRate = 0
	called := false
	_, err := RunScenarios(context.Background(), cfg, DefaultScenarios(), RunOptions{
		RunDone: func(*Results, Topology) { called = true },
	})
	if !errors.Is(err, ErrInvalidConfig) || called {
		t.Fatalf("RunScenarios() = %v with runs started %v", err, called)
	}
}

func TestRunScenariosStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunScenarios(ctx, experimentConfig(), DefaultScenarios(), RunOptions{Parallel: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunScenarios() error = %v, want context.Canceled", err)
	}
}
