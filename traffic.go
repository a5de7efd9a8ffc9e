package ecmsim

// traffic.go holds the synthetic traffic model. Each entity follows a traffic profile,
// a list of time-of-day activity windows. The activity level at a given hour is
// the largest jittered triangular level of the windows containing the hour, and it
// drives both the chance that the entity generates traffic in a tick and the number
// and size of the packets it generates.

import (
	"math"
)

const (
	activityFloor = 0.1 // activity levels below this generate nothing
	burstProb     = 0.3 // probability that a direction carries packets in an active tick
	burstScale    = 5.0 // packets per direction are floor(level*burstScale)

	ulBaseBytes = 64
	ulSpanBytes = 1000
	dlBaseBytes = 128
	dlSpanBytes = 2000
)

// ArrivalSource produces the packets an entity originates (ul) and the packets
// the network sends toward it (dl) at time now
type ArrivalSource interface {
	Generate(ent *MobileEntity, now float64) (ul []*Packet, dl []*Packet)
}

// hourOfDay maps simulation seconds to [0,24)
func hourOfDay(now float64) float64 {
	return math.Mod(now/3600.0, 24.0)
}

// contains reports whether the hour falls inside the window, and the triangular
// falloff there: 1 at the window center, 0 at its edges
func (win ActivityWindow) contains(hour float64) (bool, float64) {
	start, end := win.StartHour, win.EndHour
	if end < start {
		// the window wraps past midnight
		end += 24.0
		if hour < start {
			hour += 24.0
		}
	}
	if hour < start || hour > end {
		return false, 0.0
	}
	half := (end - start) / 2.0
	center := start + half
	return true, 1.0 - math.Abs(hour-center)/half
}

// ActivityLevel is the profile's level at the given hour, before jitter
func (prf *TrafficProfile) ActivityLevel(hour float64) float64 {
	level := 0.0
	for _, win := range prf.Windows {
		if inside, falloff := win.contains(hour); inside {
			level = math.Max(level, win.PeakLevel*falloff)
		}
	}
	return level
}

// TrafficGenerator is the stochastic ArrivalSource
type TrafficGenerator struct {
	profiles []TrafficProfile
	rng      uniformStream
	nxtID    int
}

// CreateTrafficGenerator is a constructor
func CreateTrafficGenerator(profiles []TrafficProfile, rng uniformStream) *TrafficGenerator {
	tg := new(TrafficGenerator)
	tg.profiles = profiles
	tg.rng = rng
	return tg
}

// level draws the jittered activity level of a profile at time now
func (tg *TrafficGenerator) level(prf *TrafficProfile, now float64) float64 {
	hour := hourOfDay(now)
	level := 0.0
	for _, win := range prf.Windows {
		if inside, falloff := win.contains(hour); inside {
			jitter := 0.8 + tg.rng.RandU01()*0.4
			level = math.Max(level, win.PeakLevel*falloff*jitter)
		}
	}
	return level
}

// Generate draws this tick's arrivals for the entity
func (tg *TrafficGenerator) Generate(ent *MobileEntity, now float64) ([]*Packet, []*Packet) {
	if ent.Profile < 0 || ent.Profile >= len(tg.profiles) {
		return nil, nil
	}
	level := tg.level(&tg.profiles[ent.Profile], now)
	if level < activityFloor || tg.rng.RandU01() >= level {
		return nil, nil
	}

	ul := tg.burst(ent.ID, NetworkSide, level, ulBaseBytes, ulSpanBytes, now)
	dl := tg.burst(NetworkSide, ent.ID, level, dlBaseBytes, dlSpanBytes, now)
	return ul, dl
}

// burst draws the packets of one direction
func (tg *TrafficGenerator) burst(srcID, dstID int, level float64, base, span int, now float64) []*Packet {
	if tg.rng.RandU01() >= burstProb {
		return nil
	}
	count := int(math.Floor(level * burstScale))
	pckts := make([]*Packet, 0, count)
	for idx := 0; idx < count; idx++ {
		bytes := base + int(math.Floor(tg.rng.RandU01()*float64(span)*level))
		pckts = append(pckts, CreatePacket(tg.nextID(), srcID, dstID, bytes*8, now))
	}
	return pckts
}

func (tg *TrafficGenerator) nextID() int {
	tg.nxtID += 1
	return tg.nxtID
}
