package ecmsim

// entity.go holds the mobile entity and its two-state connection machine.
// Only the methods here change an entity's connection state; they are called when
// traffic arrives while Disconnected (through a connect event) and when a base station
// revokes the identifier of an entity whose inactivity deadline has passed.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ConnState is the connection-management state of an entity
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

var stateToStr map[ConnState]string = map[ConnState]string{Disconnected: "Disconnected", Connected: "Connected"}

func (cs ConnState) String() string {
	str, present := stateToStr[cs]
	if !present {
		return fmt.Sprintf("ConnState(%d)", int(cs))
	}
	return str
}

// MobileEntity is a simulated client device. Station is an index into the run's
// station list and never changes during a run.
type MobileEntity struct {
	ID          int
	Pos         r2.Vec
	Station     int
	Profile     int // index into Config.Profiles
	ProfileName string

	ul *Buffer

	state      ConnState
	lastChange float64
	deadline   float64 // inactivity deadline, meaningful while Connected
	hasTimer   bool

	pending      bool    // traffic is waiting for a connection
	pendingSince float64 // arrival of the first traffic while Disconnected
	attempting   bool    // a connect event is scheduled
	releasing    bool    // a release event is scheduled

	awaitFirst   bool    // no packet has moved since the last reconnect
	firstTrigger float64 // traffic arrival that triggered the last reconnect

	unservable bool // oversubscribed in a strict always-connected run

	lastSample float64
	lastMove   float64

	// counters
	energy        float64 // mJ
	timeIdle      float64
	timeConnected float64
	timeTx        float64
	timeRx        float64
	ulSent        int
	dlRecv        int
	ulBits        int
	dlBits        int
	connects      int
	releases      int
	allocFailures int

	reconnectLat   []float64
	queuingLat     []float64
	firstPacketLat []float64
}

// createMobileEntity is a constructor. The entity starts Disconnected.
func createMobileEntity(id int, pos r2.Vec, profile int, profileName string, bufCap int) *MobileEntity {
	ent := new(MobileEntity)
	ent.ID = id
	ent.Pos = pos
	ent.Station = -1
	ent.Profile = profile
	ent.ProfileName = profileName
	ent.ul = CreateBuffer(bufCap)
	ent.state = Disconnected
	ent.reconnectLat = make([]float64, 0)
	ent.queuingLat = make([]float64, 0)
	ent.firstPacketLat = make([]float64, 0)
	return ent
}

func (ent *MobileEntity) State() ConnState  { return ent.state }
func (ent *MobileEntity) Connected() bool   { return ent.state == Connected }
func (ent *MobileEntity) ULBuffer() *Buffer { return ent.ul }
func (ent *MobileEntity) Unservable() bool  { return ent.unservable }

// Deadline returns the inactivity deadline, if one is running
func (ent *MobileEntity) Deadline() (float64, bool) {
	return ent.deadline, ent.hasTimer
}

// Energy is the accumulated energy in mJ
func (ent *MobileEntity) Energy() float64 { return ent.energy }

// ReconnectLatencies, QueuingLatencies and FirstPacketLatencies are the recorded samples
func (ent *MobileEntity) ReconnectLatencies() []float64   { return ent.reconnectLat }
func (ent *MobileEntity) QueuingLatencies() []float64     { return ent.queuingLat }
func (ent *MobileEntity) FirstPacketLatencies() []float64 { return ent.firstPacketLat }

// noteArrival remembers when traffic started waiting for a connection
func (ent *MobileEntity) noteArrival(now float64) {
	if ent.state == Disconnected && !ent.pending {
		ent.pending = true
		ent.pendingSince = now
	}
}

// transitionToConnected asks the pool for an identifier. On failure the entity
// stays Disconnected with its traffic held. On success the time spent Disconnected
// becomes a reconnect latency sample and the inactivity deadline starts.
func (ent *MobileEntity) transitionToConnected(now float64, pool *IdentifierPool, timeout float64) bool {
	if ent.state == Connected {
		return true
	}
	if _, ok := pool.Allocate(ent.ID); !ok {
		ent.allocFailures += 1
		return false
	}
	if ent.pending {
		ent.reconnectLat = append(ent.reconnectLat, now-ent.lastChange)
		ent.awaitFirst = true
		ent.firstTrigger = ent.pendingSince
	}
	ent.pending = false
	ent.state = Connected
	ent.lastChange = now
	ent.deadline = now + timeout
	ent.hasTimer = true
	ent.connects += 1
	return true
}

// connectInitial puts the entity in Connected without a reconnect sample, for
// always-connected runs
func (ent *MobileEntity) connectInitial(now float64, pool *IdentifierPool) bool {
	if _, ok := pool.Allocate(ent.ID); !ok {
		ent.unservable = true
		return false
	}
	ent.state = Connected
	ent.lastChange = now
	ent.hasTimer = false
	return true
}

// transitionToIdle releases the identifier and clears the deadline
func (ent *MobileEntity) transitionToIdle(now float64, pool *IdentifierPool) {
	if ent.state != Connected {
		return
	}
	pool.Release(ent.ID)
	ent.state = Disconnected
	ent.lastChange = now
	ent.hasTimer = false
	ent.awaitFirst = false
	ent.releases += 1
}

// resetIdleTimer pushes the deadline out; it never causes a transition
func (ent *MobileEntity) resetIdleTimer(now, timeout float64) {
	if ent.state == Connected && ent.hasTimer {
		ent.deadline = now + timeout
	}
}

// idleExpired is true when a Connected entity's deadline has passed
func (ent *MobileEntity) idleExpired(now float64) bool {
	return ent.state == Connected && ent.hasTimer && now >= ent.deadline
}

// packetMoved records the latency samples of a transmitted packet
func (ent *MobileEntity) packetMoved(pckt *Packet, now float64) {
	if lat, ok := pckt.Latency(); ok {
		ent.queuingLat = append(ent.queuingLat, lat)
	}
	if ent.awaitFirst {
		ent.firstPacketLat = append(ent.firstPacketLat, now-ent.firstTrigger)
		ent.awaitFirst = false
	}
}

// receive handles a downlink packet delivered by the serving station
func (ent *MobileEntity) receive(pckt *Packet, now float64, cfg *Config) {
	ent.packetMoved(pckt, now)
	ent.dlRecv += 1
	ent.dlBits += pckt.Size
	ent.resetIdleTimer(now, cfg.InactivityTimeout)
	ent.energy += cfg.PowerRx * cfg.TTI
	ent.timeRx += cfg.TTI
}

// transmit drains the UL buffer by the granted capacity (bits). Only a grant that
// moves a packet counts as activity for the idle timer.
func (ent *MobileEntity) transmit(capacity int, now float64, cfg *Config) []*Packet {
	pckts := ent.ul.Drain(capacity)
	for _, pckt := range pckts {
		pckt.markTransmitted(now)
		ent.packetMoved(pckt, now)
		ent.ulBits += pckt.Size
	}
	ent.ulSent += len(pckts)
	if len(pckts) > 0 {
		ent.resetIdleTimer(now, cfg.InactivityTimeout)
		ent.energy += cfg.PowerTx * cfg.TTI
		ent.timeTx += cfg.TTI
	}
	return pckts
}

// accrueEnergy charges the time since the last sample at the power of the current state
func (ent *MobileEntity) accrueEnergy(now float64, cfg *Config) {
	dt := now - ent.lastSample
	ent.lastSample = now
	if dt <= 0 {
		return
	}
	if ent.state == Connected {
		ent.energy += cfg.PowerConnected * dt
		ent.timeConnected += dt
	} else {
		ent.energy += cfg.PowerIdle * dt
		ent.timeIdle += dt
	}
}

// updatePosition moves the entity under the random-waypoint-in-circle model.
// Speeds are in m/s and positions in km; a step leaving the area is reflected
// back through the boundary.
func (ent *MobileEntity) updatePosition(now float64, cfg *Config, rng uniformStream) {
	dt := now - ent.lastMove
	ent.lastMove = now
	if cfg.Mobility != RandomWaypointInCircle || dt <= 0 {
		return
	}
	speed := 1.0 + rng.RandU01()*4.0
	dist := speed * dt / 1000.0
	angle := rng.RandU01() * 2.0 * math.Pi

	step := r2.Vec{X: dist * math.Cos(angle), Y: dist * math.Sin(angle)}
	ent.Pos = reflectInto(r2.Add(ent.Pos, step), cfg.Radius)
}

// reflectInto mirrors a point outside the circle of the given radius back inside
func reflectInto(pos r2.Vec, radius float64) r2.Vec {
	norm := r2.Norm(pos)
	if norm <= radius {
		return pos
	}
	inside := 2.0*radius - norm
	if inside < 0 {
		inside = 0
	}
	return r2.Scale(inside/norm, pos)
}

// resetStats zeros every counter at the start of the measurement phase.
// State, buffer contents and the identifier persist.
func (ent *MobileEntity) resetStats(now float64) {
	ent.energy = 0
	ent.timeIdle = 0
	ent.timeConnected = 0
	ent.timeTx = 0
	ent.timeRx = 0
	ent.ulSent = 0
	ent.dlRecv = 0
	ent.ulBits = 0
	ent.dlBits = 0
	ent.connects = 0
	ent.releases = 0
	ent.allocFailures = 0
	ent.reconnectLat = ent.reconnectLat[:0]
	ent.queuingLat = ent.queuingLat[:0]
	ent.firstPacketLat = ent.firstPacketLat[:0]
	ent.lastSample = now
	ent.ul.resetStats()
}

// IdleRatio is the fraction of the sampled time spent Disconnected
func (ent *MobileEntity) IdleRatio() float64 {
	total := ent.timeIdle + ent.timeConnected
	if total == 0 {
		return 0.0
	}
	return ent.timeIdle / total
}

// Goodput is the bits moved in both directions over the time spent Connected
func (ent *MobileEntity) Goodput() float64 {
	if ent.timeConnected == 0 {
		return 0.0
	}
	return float64(ent.ulBits+ent.dlBits) / ent.timeConnected
}
