package ecmsim

// config.go holds the description of a simulation experiment: the parameters of the
// topology, of connection management, of scheduling, of energy use, and of the traffic
// profiles. A Config is read from a yaml or json file, validated once, and then passed
// by value into every run; nothing in the simulation writes to it.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every configuration rejection
var ErrInvalidConfig = errors.New("invalid configuration")

// Mode selects the connection-management policy
type Mode string

const (
	// IdleTimeout releases the identifier of an entity after an inactivity period
	IdleTimeout Mode = "timeout"

	// AlwaysConnected keeps every entity Connected for the whole run
	AlwaysConnected Mode = "always"
)

// Algorithm selects the scheduler variant used by every base station
type Algorithm string

const (
	RoundRobin       Algorithm = "RR"
	ProportionalFair Algorithm = "PF"
)

// Mobility selects the position update model
type Mobility string

const (
	Static                 Mobility = "Static"
	RandomWaypointInCircle Mobility = "RandomWaypointInCircle"
)

// ActivityWindow is a period of the day during which a profile generates traffic.
// EndHour may be smaller than StartHour, in which case the window wraps past midnight.
type ActivityWindow struct {
	StartHour float64 `json:"starthour" yaml:"starthour"`
	EndHour   float64 `json:"endhour" yaml:"endhour"`
	PeakLevel float64 `json:"peaklevel" yaml:"peaklevel"`
}

// TrafficProfile names a behaviour, gives the share of the population that
// follows it, and lists its activity windows
type TrafficProfile struct {
	Name    string           `json:"name" yaml:"name"`
	Share   float64          `json:"share" yaml:"share"`
	Windows []ActivityWindow `json:"windows" yaml:"windows"`
}

// Config gathers every parameter of a run. Times are in seconds, distances in km,
// sizes in bits, powers in mW.
type Config struct {
	// timing
	Duration     float64 `json:"duration" yaml:"duration"`         // measurement phase length
	Warmup       float64 `json:"warmup" yaml:"warmup"`             // warm-up phase length
	WarmupTicks  int     `json:"warmupticks" yaml:"warmupticks"`   // ticks in the warm-up phase
	MeasureTicks int     `json:"measureticks" yaml:"measureticks"` // ticks in the measurement phase
	Runs         int     `json:"runs" yaml:"runs"`                 // replications per scenario
	TTI          float64 `json:"tti" yaml:"tti"`                   // transmission time interval

	// topology
	Radius       float64  `json:"radius" yaml:"radius"`
	Stations     int      `json:"stations" yaml:"stations"`
	StationSigma float64  `json:"stationsigma" yaml:"stationsigma"`
	Entities     int      `json:"entities" yaml:"entities"`
	EntitySigma  float64  `json:"entitysigma" yaml:"entitysigma"`
	SampleFactor int      `json:"samplefactor" yaml:"samplefactor"` // simulate one entity in SampleFactor
	Mobility     Mobility `json:"mobility" yaml:"mobility"`

	// connection management
	Mode              Mode    `json:"mode" yaml:"mode"`
	InactivityTimeout float64 `json:"inactivitytimeout" yaml:"inactivitytimeout"`
	SetupDelay        float64 `json:"setupdelay" yaml:"setupdelay"`
	ReleaseDelay      float64 `json:"releasedelay" yaml:"releasedelay"`
	PagingDelay       float64 `json:"pagingdelay" yaml:"pagingdelay"`
	PoolSize          int     `json:"poolsize" yaml:"poolsize"`     // identifiers per station
	StrictPool        bool    `json:"strictpool" yaml:"strictpool"` // never grow pools in always-connected mode

	// scheduling
	Algorithm      Algorithm `json:"algorithm" yaml:"algorithm"`
	ResourceBlocks int       `json:"resourceblocks" yaml:"resourceblocks"` // per tick
	BlockRate      int       `json:"blockrate" yaml:"blockrate"`           // bits per resource block
	PFWindow       float64   `json:"pfwindow" yaml:"pfwindow"`

	// energy
	PowerIdle      float64 `json:"poweridle" yaml:"poweridle"`
	PowerConnected float64 `json:"powerconnected" yaml:"powerconnected"`
	PowerTx        float64 `json:"powertx" yaml:"powertx"`
	PowerRx        float64 `json:"powerrx" yaml:"powerrx"`

	// traffic
	BufferSize int              `json:"buffersize" yaml:"buffersize"` // packets
	Profiles   []TrafficProfile `json:"profiles" yaml:"profiles"`

	// Seed, when non-zero, makes every random stream of a run derive from it.
	// When zero the run draws fresh rngstream streams.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Trace enables the transition trace
	Trace bool `json:"trace" yaml:"trace"`
}

// DefaultProfiles returns the eight standard behaviours and their shares
func DefaultProfiles() []TrafficProfile {
	return []TrafficProfile{
		{Name: "Office", Share: 0.25, Windows: []ActivityWindow{{8, 12, 0.8}, {13, 17, 0.7}}},
		{Name: "Streaming", Share: 0.15, Windows: []ActivityWindow{{19, 23, 0.9}}},
		{Name: "IoT", Share: 0.1, Windows: []ActivityWindow{{0, 24, 0.3}}},
		{Name: "Social", Share: 0.2, Windows: []ActivityWindow{{7, 9, 0.6}, {12, 14, 0.5}, {18, 23, 0.8}}},
		{Name: "Night", Share: 0.05, Windows: []ActivityWindow{{22, 4, 0.7}}},
		{Name: "Commuter", Share: 0.1, Windows: []ActivityWindow{{6, 9, 0.8}, {16, 19, 0.8}}},
		{Name: "Student", Share: 0.1, Windows: []ActivityWindow{{8, 18, 0.6}, {19, 23, 0.4}}},
		{Name: "Random", Share: 0.05, Windows: []ActivityWindow{{0, 24, 0.5}}},
	}
}

// DefaultConfig returns the reference experiment
func DefaultConfig() Config {
	return Config{
		Duration:     86400,
		Warmup:       3600,
		WarmupTicks:  100,
		MeasureTicks: 500,
		Runs:         10,
		TTI:          0.001,

		Radius:       2.5,
		Stations:     19,
		StationSigma: 1.0,
		Entities:     70000,
		EntitySigma:  0.8,
		SampleFactor: 50,
		Mobility:     Static,

		Mode:              IdleTimeout,
		InactivityTimeout: 10,
		SetupDelay:        0.1,
		ReleaseDelay:      0.05,
		PagingDelay:       0.05,
		PoolSize:          1000,

		Algorithm:      RoundRobin,
		ResourceBlocks: 100,
		BlockRate:      1500,
		PFWindow:       100,

		PowerIdle:      5,
		PowerConnected: 100,
		PowerTx:        150,
		PowerRx:        80,

		BufferSize: 100,
		Profiles:   DefaultProfiles(),
	}
}

// SimulatedEntities is the number of entities actually created for a run
func (cfg *Config) SimulatedEntities() int {
	factor := cfg.SampleFactor
	if factor < 1 {
		factor = 1
	}
	return (cfg.Entities + factor - 1) / factor
}

// WarmupStep and MeasureStep are the tick lengths of the two phases
func (cfg *Config) WarmupStep() float64 {
	if cfg.WarmupTicks == 0 {
		return 0.0
	}
	return cfg.Warmup / float64(cfg.WarmupTicks)
}

func (cfg *Config) MeasureStep() float64 {
	return cfg.Duration / float64(cfg.MeasureTicks)
}

// Validate checks every parameter and reports all the problems found in one error
// that wraps ErrInvalidConfig
func (cfg *Config) Validate() error {
	errs := []error{}
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(cfg.Duration > 0, "duration must be positive, got %v", cfg.Duration)
	check(cfg.Warmup >= 0, "warmup must not be negative, got %v", cfg.Warmup)
	check(cfg.WarmupTicks >= 0, "warmupticks must not be negative, got %d", cfg.WarmupTicks)
	check(cfg.Warmup == 0 || cfg.WarmupTicks > 0, "warmup of %v s needs warmupticks > 0", cfg.Warmup)
	check(cfg.WarmupTicks == 0 || cfg.Warmup > 0, "%d warmupticks need a positive warmup", cfg.WarmupTicks)
	check(cfg.MeasureTicks > 0, "measureticks must be positive, got %d", cfg.MeasureTicks)
	check(cfg.Runs > 0, "runs must be positive, got %d", cfg.Runs)
	check(cfg.TTI > 0, "tti must be positive, got %v", cfg.TTI)

	check(cfg.Radius > 0, "radius must be positive, got %v", cfg.Radius)
	check(cfg.Stations > 0, "stations must be positive, got %d", cfg.Stations)
	check(cfg.StationSigma > 0, "stationsigma must be positive, got %v", cfg.StationSigma)
	check(cfg.Entities > 0, "entities must be positive, got %d", cfg.Entities)
	check(cfg.EntitySigma > 0, "entitysigma must be positive, got %v", cfg.EntitySigma)
	check(cfg.SampleFactor >= 1, "samplefactor must be at least 1, got %d", cfg.SampleFactor)
	check(cfg.Mobility == Static || cfg.Mobility == RandomWaypointInCircle,
		"unknown mobility model %q", cfg.Mobility)

	check(cfg.Mode == IdleTimeout || cfg.Mode == AlwaysConnected, "unknown mode %q", cfg.Mode)
	check(cfg.InactivityTimeout > 0, "inactivitytimeout must be positive, got %v", cfg.InactivityTimeout)
	check(cfg.SetupDelay >= 0, "setupdelay must not be negative, got %v", cfg.SetupDelay)
	check(cfg.ReleaseDelay >= 0, "releasedelay must not be negative, got %v", cfg.ReleaseDelay)
	check(cfg.PagingDelay >= 0, "pagingdelay must not be negative, got %v", cfg.PagingDelay)
	check(cfg.PoolSize > 0 && cfg.PoolSize <= IdentifierSpace,
		"poolsize must be in [1,%d], got %d", IdentifierSpace, cfg.PoolSize)

	check(cfg.Algorithm == RoundRobin || cfg.Algorithm == ProportionalFair,
		"unknown scheduling algorithm %q", cfg.Algorithm)
	check(cfg.ResourceBlocks > 0, "resourceblocks must be positive, got %d", cfg.ResourceBlocks)
	check(cfg.BlockRate > 0, "blockrate must be positive, got %d", cfg.BlockRate)
	check(cfg.PFWindow >= 1, "pfwindow must be at least 1, got %v", cfg.PFWindow)

	check(cfg.PowerIdle >= 0 && cfg.PowerConnected >= 0 && cfg.PowerTx >= 0 && cfg.PowerRx >= 0,
		"power draws must not be negative")

	check(cfg.BufferSize > 0, "buffersize must be positive, got %d", cfg.BufferSize)
	check(len(cfg.Profiles) > 0, "at least one traffic profile is needed")

	shares := 0.0
	names := make(map[string]bool)
	for _, prf := range cfg.Profiles {
		check(len(prf.Name) > 0, "traffic profile with empty name")
		check(!names[prf.Name], "traffic profile %q declared twice", prf.Name)
		names[prf.Name] = true
		check(prf.Share >= 0, "profile %q has negative share", prf.Name)
		shares += prf.Share
		for _, win := range prf.Windows {
			check(win.StartHour >= 0 && win.StartHour <= 24 && win.EndHour >= 0 && win.EndHour <= 24,
				"profile %q has window hours outside [0,24]", prf.Name)
			check(win.StartHour != win.EndHour, "profile %q has an empty window", prf.Name)
			check(win.PeakLevel >= 0 && win.PeakLevel <= 1, "profile %q has peaklevel outside [0,1]", prf.Name)
		}
	}
	check(len(cfg.Profiles) == 0 || shares > 0, "profile shares must not all be zero")

	if err := ReportErrs(errs); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	return nil
}

// ReportErrs folds a list of errors (nils are skipped) into one, or nil if none remain
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}
	return errors.New(strings.Join(errMsg, ","))
}

// useYAMLFor selects the serialization from a file name extension
func useYAMLFor(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// ReadConfig deserializes a Config. If dict is empty the bytes are read from the named
// file. Fields absent from the input keep their DefaultConfig value.
func ReadConfig(filename string, useYAML bool, dict []byte) (*Config, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", filename, err)
		}
	}

	example := DefaultConfig()

	// a profiles list in the input replaces the default one rather than merging into it
	example.Profiles = nil

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config %q: %w", filename, err)
	}

	if example.Profiles == nil {
		example.Profiles = DefaultProfiles()
	}
	return &example, nil
}

// LoadConfig reads a config file choosing yaml or json by its extension
func LoadConfig(filename string) (*Config, error) {
	return ReadConfig(filename, useYAMLFor(filename), nil)
}

// WriteToFile stores the Config in the named file, as yaml or json by extension
func (cfg *Config) WriteToFile(filename string) error {
	return writeDesc(filename, cfg)
}

// writeDesc serializes v to yaml or json, chosen from the file name extension
func writeDesc(filename string, v any) error {
	var bytes []byte
	var merr error

	if useYAMLFor(filename) {
		bytes, merr = yaml.Marshal(v)
	} else {
		bytes, merr = json.MarshalIndent(v, "", "\t")
	}
	if merr != nil {
		return fmt.Errorf("encode %q: %w", filename, merr)
	}

	if werr := os.WriteFile(filename, bytes, 0o644); werr != nil {
		return fmt.Errorf("write %q: %w", filename, werr)
	}
	return nil
}
