package ecmsim

// sim.go holds the Simulator, which owns every station and entity of one run and
// drives them through a warm-up phase and a measurement phase on a discrete-event
// manager. Ticks are self-rescheduling events; connection setup and release are
// events scheduled a fixed delay after the tick that requested them.

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/iti/ecmsim/internal/logging"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// evtm numbers scheduled entries with a package-level counter, and runs of
// parallel scenarios schedule concurrently
var scheduleMutex sync.Mutex

// schedule puts an event for sim on its event manager, offset seconds from now
func schedule(evtMgr *evtm.EventManager, sim *Simulator, data any,
	handler func(*evtm.EventManager, any, any) any, offset float64) {
	scheduleMutex.Lock()
	defer scheduleMutex.Unlock()
	evtMgr.Schedule(sim, data, handler, vrtime.SecondsToTime(offset))
}

// ProgressFunc receives the fraction of the run completed, in percent, after every
// tick. It is called once more with 100 and the Results when the run completes.
// The percentages never decrease.
type ProgressFunc func(pct float64, res *Results)

// Options carries the collaborators of a run. Every field may be left zero.
type Options struct {
	Scenario string
	Run      int
	Logger   logging.Logger
	Metrics  MetricsRecorder
	Arrivals ArrivalSource // defaults to the stochastic TrafficGenerator
	Trace    *TraceManager
}

// Simulator is one self-contained run
type Simulator struct {
	cfg  Config
	opts Options

	evtMgr    *evtm.EventManager
	stations  []*BaseStation
	ents      []*MobileEntity
	arrivals  ArrivalSource
	mobility  uniformStream
	collector *StatsCollector
	counters  runCounters

	log     logging.Logger
	metrics MetricsRecorder
	trace   *TraceManager

	ctx      context.Context
	progress ProgressFunc

	now       float64
	ticks     int
	measuring bool
	start     float64 // measurement phase start
	lastPct   float64
	finished  bool
	err       error
	results   *Results
}

// NewSimulator validates the configuration and builds the topology of a run.
// The entities start Disconnected, or Connected in always-connected mode.
func NewSimulator(cfg Config, opts Options) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim := new(Simulator)
	sim.cfg = cfg
	sim.opts = opts
	sim.log = opts.Logger
	if sim.log == nil {
		sim.log = logging.Noop()
	}
	sim.log = sim.log.With(logging.String("scenario", opts.Scenario), logging.Int("run", opts.Run))
	sim.metrics = opts.Metrics
	if sim.metrics == nil {
		sim.metrics = nopRecorder{}
	}
	sim.trace = opts.Trace

	sim.stations, sim.ents = buildTopology(&sim.cfg, createStream(cfg.Seed, streamName("topology", opts.Run)))
	sim.mobility = createStream(cfg.Seed, streamName("mobility", opts.Run))
	sim.arrivals = opts.Arrivals
	if sim.arrivals == nil {
		sim.arrivals = CreateTrafficGenerator(sim.cfg.Profiles, createStream(cfg.Seed, streamName("traffic", opts.Run)))
	}
	sim.collector = CreateStatsCollector()

	for _, bs := range sim.stations {
		sim.trace.AddName(bs.ID, fmt.Sprintf("station-%d", bs.ID), "station")
	}
	sim.initStates()
	return sim, nil
}

// initStates connects every entity in always-connected mode. Pools smaller than their
// registered population grow to it unless the configuration asks for strict pools.
func (sim *Simulator) initStates() {
	if sim.cfg.Mode != AlwaysConnected {
		return
	}
	for _, bs := range sim.stations {
		if !sim.cfg.StrictPool {
			bs.pool.Grow(len(bs.registered))
		}
		for _, entID := range bs.registered {
			if !bs.admitInitial(sim.ents[entID], 0.0) {
				sim.counters.unservable += 1
			}
		}
	}
}

func (sim *Simulator) Config() Config { return sim.cfg }
func (sim *Simulator) Stations() []*BaseStation { return sim.stations }
func (sim *Simulator) Entities() []*MobileEntity { return sim.ents }
func (sim *Simulator) Now() float64 { return sim.now }
func (sim *Simulator) Collector() *StatsCollector { return sim.collector }
func (sim *Simulator) Trace() *TraceManager { return sim.trace }
func (sim *Simulator) Snapshot() Topology { return snapshot(sim.now, sim.stations, sim.ents) }
func (sim *Simulator) totalTicks() int { return sim.cfg.WarmupTicks + sim.cfg.MeasureTicks }
func (sim *Simulator) timeoutManaged() bool { return sim.cfg.Mode == IdleTimeout }
func (sim *Simulator) station(ent *MobileEntity) *BaseStation { return sim.stations[ent.Station] }

// stepLength is the length of the tick that follows tick number sim.ticks
func (sim *Simulator) stepLength() float64 {
	if sim.ticks < sim.cfg.WarmupTicks {
		return sim.cfg.WarmupStep()
	}
	return sim.cfg.MeasureStep()
}

// Run executes the run to completion, or until ctx is done. Cancellation is
// checked between ticks, and the error returned wraps ctx.Err().
func (sim *Simulator) Run(ctx context.Context, progress ProgressFunc) (*Results, error) {
	if sim.evtMgr != nil {
		return nil, fmt.Errorf("simulator for scenario %q run %d has already run", sim.opts.Scenario, sim.opts.Run)
	}
	sim.ctx = ctx
	sim.progress = progress
	sim.evtMgr = evtm.New()

	sim.log.Info(ctx, "run started",
		logging.String("mode", string(sim.cfg.Mode)),
		logging.String("algorithm", string(sim.cfg.Algorithm)),
		logging.Int("stations", len(sim.stations)),
		logging.Int("entities", len(sim.ents)))

	if sim.cfg.WarmupTicks == 0 {
		sim.beginMeasurement()
	}
	schedule(sim.evtMgr, sim, nil, tickHandler, sim.stepLength())

	// events still queued after the last tick are ignored by their handlers
	limit := sim.cfg.Warmup + sim.cfg.Duration + math.Max(sim.cfg.WarmupStep(), sim.cfg.MeasureStep())
	sim.evtMgr.Run(limit)

	if sim.err != nil {
		sim.log.Info(ctx, "run cancelled", logging.Float64("time", sim.now), logging.Int("ticks", sim.ticks))
		return nil, sim.err
	}
	if sim.ticks < sim.totalTicks() {
		return nil, fmt.Errorf("run stopped after %d of %d ticks at time %v", sim.ticks, sim.totalTicks(), sim.now)
	}

	sim.results = sim.collector.analyze(sim.stations, sim.ents, sim.counters)
	sim.results.Scenario = sim.opts.Scenario
	sim.results.Run = sim.opts.Run
	sim.results.Mode = sim.cfg.Mode
	sim.results.Algorithm = sim.cfg.Algorithm
	sim.results.Start = sim.start
	sim.results.End = sim.now

	sim.report(100.0, sim.results)
	sim.log.Info(ctx, "run completed",
		logging.Float64("pdr", sim.results.Throughput.PDR),
		logging.Float64("mean_energy_mj", sim.results.Energy.Mean),
		logging.Int("reconnects", sim.results.Latency.Reconnect.Count))
	return sim.results, nil
}

// report passes progress on, never letting it decrease
func (sim *Simulator) report(pct float64, res *Results) {
	pct = math.Max(pct, sim.lastPct)
	sim.lastPct = pct
	sim.metrics.SetProgress(sim.opts.Scenario, pct)
	if sim.progress != nil {
		sim.progress(pct, res)
	}
}

// tickProgress maps the executed tick count to 0-10% in warm-up and 10-100% in measurement
func (sim *Simulator) tickProgress() float64 {
	if sim.ticks <= sim.cfg.WarmupTicks {
		if sim.cfg.WarmupTicks == 0 {
			return 10.0
		}
		return 10.0 * float64(sim.ticks) / float64(sim.cfg.WarmupTicks)
	}
	done := sim.ticks - sim.cfg.WarmupTicks
	return 10.0 + 90.0*float64(done)/float64(sim.cfg.MeasureTicks)
}

// beginMeasurement discards everything counted during warm-up
func (sim *Simulator) beginMeasurement() {
	sim.measuring = true
	sim.start = sim.now
	sim.collector.Reset()
	sim.counters.generated = [2]int{}
	sim.counters.allocFailures = 0
	for _, bs := range sim.stations {
		bs.resetStats()
	}
	for _, ent := range sim.ents {
		ent.resetStats(sim.now)
	}
	sim.log.Info(sim.ctx, "measurement phase started", logging.Float64("time", sim.now))
}

// step executes one tick at sim.now: mobility, traffic, scheduling, energy,
// inactivity sweep, and statistics, in that order
func (sim *Simulator) step() {
	now := sim.now
	cfg := &sim.cfg

	if cfg.Mobility != Static {
		for _, ent := range sim.ents {
			ent.updatePosition(now, cfg, sim.mobility)
		}
	}

	for _, ent := range sim.ents {
		sim.generate(ent, now)
	}

	for _, bs := range sim.stations {
		moved := bs.runScheduler(now, sim.ents, cfg)
		sent := [2]int{}
		for _, pckt := range moved {
			sent[pckt.Direction()] += 1
		}
		sim.metrics.PacketsTransmitted(sim.opts.Scenario, Uplink.String(), sent[Uplink])
		sim.metrics.PacketsTransmitted(sim.opts.Scenario, Downlink.String(), sent[Downlink])
	}

	for _, ent := range sim.ents {
		ent.accrueEnergy(now, cfg)
	}

	if sim.timeoutManaged() {
		for _, ent := range sim.ents {
			if ent.idleExpired(now) && !ent.releasing {
				ent.releasing = true
				schedule(sim.evtMgr, sim, ent, releaseHandler, cfg.ReleaseDelay)
			}
		}
	}

	if sim.measuring {
		sim.collector.capture(now, sim.stations, sim.ents)
	}

	connected, usage := 0, 0.0
	for _, bs := range sim.stations {
		connected += bs.ConnectedCount()
		usage += bs.pool.Usage()
	}
	sim.metrics.SetConnected(sim.opts.Scenario, connected)
	sim.metrics.SetIdentifierUsage(sim.opts.Scenario, usage/float64(len(sim.stations)))
	sim.metrics.TickDone(sim.opts.Scenario)
}

// generate enqueues the entity's arrivals for this tick and, for a Disconnected
// entity with queued traffic in timeout-managed mode, requests a connection
func (sim *Simulator) generate(ent *MobileEntity, now float64) {
	bs := sim.station(ent)
	ul, dl := sim.arrivals.Generate(ent, now)

	for _, pckt := range ul {
		sim.counters.generated[Uplink] += 1
		ent.noteArrival(now)
		if !ent.ul.Enqueue(pckt) {
			sim.metrics.PacketDropped(sim.opts.Scenario, Uplink.String())
		}
	}
	for _, pckt := range dl {
		sim.counters.generated[Downlink] += 1
		ent.noteArrival(now)
		if !bs.enqueueDL(pckt) {
			sim.metrics.PacketDropped(sim.opts.Scenario, Downlink.String())
		}
	}

	if !sim.timeoutManaged() || ent.Connected() || ent.attempting || !bs.hasTraffic(ent) {
		return
	}
	ent.noteArrival(now)
	ent.attempting = true

	// downlink-only traffic has to page the entity first
	delay := sim.cfg.SetupDelay
	if ent.ul.IsEmpty() {
		delay += sim.cfg.PagingDelay
	}
	schedule(sim.evtMgr, sim, ent, connectHandler, delay)
}
