package ecmsim

// station.go holds the base station: the owner of an identifier pool, of a scheduler,
// and of one DL buffer per registered entity. Entities are owned by the simulator;
// a station refers to them by id and reaches them through the slice it is handed.

import (
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/spatial/r2"
)

// BaseStation serves the entities registered with it
type BaseStation struct {
	ID  int
	Pos r2.Vec

	pool  *IdentifierPool
	sched *Scheduler

	registered []int           // entity ids, registration order
	connected  []int           // entity ids, connection order
	dl         map[int]*Buffer // entity id -> DL buffer
	bufCap     int

	served      map[int]bool // entities that ever held an identifier in the measurement phase
	transmitted [2]int       // packets moved, by Direction
	dropped     [2]int       // DL packets rejected at this station's buffers
	bits        int          // total bits moved
}

// createBaseStation is a constructor
func createBaseStation(id int, pos r2.Vec, cfg *Config) *BaseStation {
	bs := new(BaseStation)
	bs.ID = id
	bs.Pos = pos
	bs.pool = CreateIdentifierPool(cfg.PoolSize)
	bs.sched = CreateScheduler(cfg.Algorithm, cfg.ResourceBlocks, cfg.BlockRate, cfg.PFWindow)
	bs.registered = make([]int, 0)
	bs.connected = make([]int, 0)
	bs.dl = make(map[int]*Buffer)
	bs.bufCap = cfg.BufferSize
	bs.served = make(map[int]bool)
	return bs
}

func (bs *BaseStation) Pool() *IdentifierPool { return bs.pool }
func (bs *BaseStation) Scheduler() *Scheduler { return bs.sched }
func (bs *BaseStation) Registered() []int     { return bs.registered }
func (bs *BaseStation) ConnectedCount() int   { return len(bs.connected) }
func (bs *BaseStation) UniqueServed() int     { return len(bs.served) }
func (bs *BaseStation) Bits() int             { return bs.bits }

// Transmitted and Dropped report the station's counters for one direction
func (bs *BaseStation) Transmitted(dir Direction) int { return bs.transmitted[dir] }
func (bs *BaseStation) Dropped(dir Direction) int     { return bs.dropped[dir] }

// DLBuffer returns the downlink buffer held for an entity
func (bs *BaseStation) DLBuffer(entityID int) *Buffer {
	return bs.dl[entityID]
}

// register adds the entity, gives it a DL buffer and points it at this station
func (bs *BaseStation) register(ent *MobileEntity, index int) {
	if _, present := bs.dl[ent.ID]; present {
		return
	}
	bs.registered = append(bs.registered, ent.ID)
	bs.dl[ent.ID] = CreateBuffer(bs.bufCap)
	ent.Station = index
}

// admit runs the entity's connect transition against this station's pool
func (bs *BaseStation) admit(ent *MobileEntity, now float64, cfg *Config) bool {
	if ent.Connected() {
		return true
	}
	if !ent.transitionToConnected(now, bs.pool, cfg.InactivityTimeout) {
		return false
	}
	bs.connected = append(bs.connected, ent.ID)
	bs.served[ent.ID] = true
	return true
}

// admitInitial connects the entity at the start of an always-connected run
func (bs *BaseStation) admitInitial(ent *MobileEntity, now float64) bool {
	if !ent.connectInitial(now, bs.pool) {
		return false
	}
	bs.connected = append(bs.connected, ent.ID)
	bs.served[ent.ID] = true
	return true
}

// revoke takes the identifier back from an entity
func (bs *BaseStation) revoke(ent *MobileEntity, now float64) {
	if !ent.Connected() {
		return
	}
	ent.transitionToIdle(now, bs.pool)
	if idx := slices.Index(bs.connected, ent.ID); idx >= 0 {
		bs.connected = slices.Delete(bs.connected, idx, idx+1)
	}
}

// enqueueDL offers a downlink packet to the destination's buffer
func (bs *BaseStation) enqueueDL(pckt *Packet) bool {
	buf, present := bs.dl[pckt.DestID]
	if !present {
		return false
	}
	if !buf.Enqueue(pckt) {
		bs.dropped[Downlink] += 1
		return false
	}
	return true
}

// hasTraffic is true if anything is queued for or at the entity
func (bs *BaseStation) hasTraffic(ent *MobileEntity) bool {
	if !ent.ul.IsEmpty() {
		return true
	}
	buf, present := bs.dl[ent.ID]
	return present && !buf.IsEmpty()
}

// activeDemands lists the connected entities with queued traffic, all DL demands
// first and then all UL demands, each in connection order
func (bs *BaseStation) activeDemands(ents []*MobileEntity) []Demand {
	active := make([]Demand, 0)
	for _, entID := range bs.connected {
		if buf := bs.dl[entID]; buf != nil && !buf.IsEmpty() {
			active = append(active, Demand{EntityID: entID, Dir: Downlink})
		}
	}
	for _, entID := range bs.connected {
		if !ents[entID].ul.IsEmpty() {
			active = append(active, Demand{EntityID: entID, Dir: Uplink})
		}
	}
	return active
}

// runScheduler allocates this tick's resource blocks and moves the granted packets.
// ents is indexed by entity id. The moved packets are returned.
func (bs *BaseStation) runScheduler(now float64, ents []*MobileEntity, cfg *Config) []*Packet {
	active := bs.activeDemands(ents)
	if len(active) == 0 {
		return nil
	}
	allocs := bs.sched.Allocate(active, now)
	checkAllocations(allocs, bs.sched.Blocks())

	moved := make([]*Packet, 0)
	for _, alloc := range allocs {
		ent := ents[alloc.EntityID]
		capacity := alloc.Blocks * cfg.BlockRate

		var pckts []*Packet
		if alloc.Dir == Downlink {
			pckts = bs.dl[ent.ID].Drain(capacity)
			for _, pckt := range pckts {
				pckt.markTransmitted(now)
				ent.receive(pckt, now, cfg)
			}
		} else {
			pckts = ent.transmit(capacity, now, cfg)
		}
		for _, pckt := range pckts {
			bs.transmitted[alloc.Dir] += 1
			bs.bits += pckt.Size
		}
		moved = append(moved, pckts...)
	}
	return moved
}

// queued is the number of packets still waiting in the station's DL buffers
func (bs *BaseStation) queued() int {
	total := 0
	for _, buf := range bs.dl {
		total += buf.Len()
	}
	return total
}

// resetStats zeros the counters and the scheduler-independent history at the start
// of the measurement phase. Connected entities count as served from then on.
func (bs *BaseStation) resetStats() {
	bs.transmitted = [2]int{}
	bs.dropped = [2]int{}
	bs.bits = 0
	bs.served = make(map[int]bool)
	for _, entID := range bs.connected {
		bs.served[entID] = true
	}
	for _, buf := range bs.dl {
		buf.resetStats()
	}
}
