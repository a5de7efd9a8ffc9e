package ecmsim

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if got := cfg.SimulatedEntities(); got != 1400 {
		t.Fatalf("SimulatedEntities() = %d, want 1400", got)
	}
	if got := cfg.MeasureStep(); got != 86400.0/500.0 {
		t.Fatalf("MeasureStep() = %v", got)
	}
	if got := cfg.WarmupStep(); got != 36 {
		t.Fatalf("WarmupStep() = %v, want 36", got)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResourceBlocks = 0
	cfg.PoolSize = IdentifierSpace + 1
	cfg.Mode = "sometimes"
	cfg.Profiles = append(cfg.Profiles, TrafficProfile{Name: "Office", Share: 0.1})

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() = %v, want an error wrapping ErrInvalidConfig", err)
	}
	for _, want := range []string{"resourceblocks", "poolsize", "sometimes", "declared twice"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate() = %q, missing %q", err.Error(), want)
		}
	}
}

func TestValidateWarmupPairing(t *testing.T) {
	tests := []struct {
		warmup float64
		ticks  int
		valid  bool
	}{
		{0, 0, true},
		{3600, 100, true},
		{3600, 0, false},
		{0, 100, false},
	}
	for _, tc := range tests {
		cfg := DefaultConfig()
		cfg.Warmup = tc.warmup
		cfg.WarmupTicks = tc.ticks
		err := cfg.Validate()
		if (err == nil) != tc.valid {
			t.Fatalf("Validate() with warmup %v over %d ticks = %v, want valid %v", tc.warmup, tc.ticks, err, tc.valid)
		}
		if err != nil && !strings.Contains(err.Error(), "warmup") {
			t.Fatalf("Validate() = %q, want a warmup problem", err.Error())
		}
	}
}

func TestValidateRejectsBadWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles = []TrafficProfile{{Name: "odd", Share: 1,
		Windows: []ActivityWindow{{StartHour: 5, EndHour: 5, PeakLevel: 1.5}}}}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "empty window") || !strings.Contains(err.Error(), "peaklevel") {
		t.Fatalf("Validate() = %q", err.Error())
	}
}

func TestReadConfigKeepsDefaults(t *testing.T) {
	yamlDict := []byte("mode: always\nalgorithm: PF\nstations: 3\n")
	cfg, err := ReadConfig("inline.yaml", true, yamlDict)
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	if cfg.Mode != AlwaysConnected || cfg.Algorithm != ProportionalFair || cfg.Stations != 3 {
		t.Fatalf("ReadConfig() = mode %q algorithm %q stations %d", cfg.Mode, cfg.Algorithm, cfg.Stations)
	}
	if cfg.PoolSize != 1000 || len(cfg.Profiles) != len(DefaultProfiles()) {
		t.Fatalf("defaults lost: poolsize %d, %d profiles", cfg.PoolSize, len(cfg.Profiles))
	}

	jsonDict := []byte(`{"profiles":[{"name":"Only","share":1,"windows":[{"starthour":0,"endhour":24,"peaklevel":0.5}]}]}`)
	cfg, err = ReadConfig("inline.json", false, jsonDict)
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	if len(cfg.Profiles) != 1 || cfg.Profiles[0].Name != "Only" {
		t.Fatalf("profiles = %+v, want the single listed profile", cfg.Profiles)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	if _, err := ReadConfig("broken.json", false, []byte("{")); err == nil {
		t.Fatalf("ReadConfig accepted malformed json")
	}
}

func TestConfigWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Seed = 99
	cfg.Mobility = RandomWaypointInCircle

	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		filename := filepath.Join(dir, name)
		if err := cfg.WriteToFile(filename); err != nil {
			t.Fatalf("WriteToFile(%s) error = %v", name, err)
		}
		read, err := LoadConfig(filename)
		if err != nil {
			t.Fatalf("LoadConfig(%s) error = %v", name, err)
		}
		if read.Seed != 99 || read.Mobility != RandomWaypointInCircle || len(read.Profiles) != 8 {
			t.Fatalf("LoadConfig(%s) = seed %d mobility %q, %d profiles", name, read.Seed, read.Mobility, len(read.Profiles))
		}
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("LoadConfig of a missing file succeeded")
	}
}

func TestReportErrs(t *testing.T) {
	if err := ReportErrs([]error{nil, nil}); err != nil {
		t.Fatalf("ReportErrs(nils) = %v, want nil", err)
	}
	err := ReportErrs([]error{errors.New("a"), nil, errors.New("b")})
	if err == nil || err.Error() != "a,b" {
		t.Fatalf("ReportErrs() = %v, want \"a,b\"", err)
	}
}
