package ecmsim

// events.go holds the event handlers scheduled on a run's event manager.
// Every handler returns at once when the run has finished, so events left in the
// queue after the last tick, or after a cancellation, change nothing.

import (
	"fmt"

	"github.com/iti/ecmsim/internal/logging"
	"github.com/iti/evt/evtm"
)

// tickHandler executes one tick and schedules the next
func tickHandler(evtMgr *evtm.EventManager, context any, data any) any {
	sim := context.(*Simulator)
	if sim.finished {
		return nil
	}
	if err := sim.ctx.Err(); err != nil {
		sim.err = fmt.Errorf("run of scenario %q cancelled at time %v: %w", sim.opts.Scenario, sim.now, err)
		sim.finished = true
		return nil
	}

	sim.now = evtMgr.CurrentSeconds()
	sim.step()
	sim.ticks += 1
	sim.report(sim.tickProgress(), nil)

	if sim.ticks == sim.totalTicks() {
		sim.finished = true
		return nil
	}
	if sim.ticks == sim.cfg.WarmupTicks {
		sim.beginMeasurement()
	}
	schedule(evtMgr, sim, nil, tickHandler, sim.stepLength())
	return nil
}

// connectHandler completes a connection setup requested by an earlier tick
func connectHandler(evtMgr *evtm.EventManager, context any, data any) any {
	sim := context.(*Simulator)
	ent := data.(*MobileEntity)
	ent.attempting = false
	if sim.finished || ent.Connected() {
		return nil
	}

	now := evtMgr.CurrentSeconds()
	bs := sim.station(ent)
	if !bs.admit(ent, now, &sim.cfg) {
		sim.counters.allocFailures += 1
		sim.metrics.AllocationFailed(sim.opts.Scenario)
		sim.trace.AddTransition(evtMgr.CurrentTime(), ent.ID, bs.ID, -1, ConnectFailOp)
		sim.log.Debug(sim.ctx, "identifier pool exhausted",
			logging.Int("entity", ent.ID), logging.Int("station", bs.ID), logging.Float64("time", now))
		return nil
	}

	rnti, _ := bs.pool.Lookup(ent.ID)
	sim.trace.AddTransition(evtMgr.CurrentTime(), ent.ID, bs.ID, rnti, ConnectOp)
	sim.metrics.Transition(sim.opts.Scenario, ConnectOp.String())
	if n := len(ent.reconnectLat); n > 0 {
		sim.metrics.ObserveReconnectLatency(sim.opts.Scenario, ent.reconnectLat[n-1])
	}
	return nil
}

// releaseHandler completes a release requested by the inactivity sweep. The release
// is abandoned if traffic pushed the deadline out in the meantime.
func releaseHandler(evtMgr *evtm.EventManager, context any, data any) any {
	sim := context.(*Simulator)
	ent := data.(*MobileEntity)
	ent.releasing = false
	if sim.finished {
		return nil
	}

	now := evtMgr.CurrentSeconds()
	if !ent.idleExpired(now) {
		return nil
	}
	bs := sim.station(ent)
	rnti, _ := bs.pool.Lookup(ent.ID)
	bs.revoke(ent, now)
	sim.trace.AddTransition(evtMgr.CurrentTime(), ent.ID, bs.ID, rnti, ReleaseOp)
	sim.metrics.Transition(sim.opts.Scenario, ReleaseOp.String())
	return nil
}
