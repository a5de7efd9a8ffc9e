package ecmsim

// packet.go holds the unit of traffic carried between mobile entities and base stations

import (
	"fmt"
)

// Direction tells whether traffic flows from an entity to its station (UL)
// or from the station to the entity (DL)
type Direction int

const (
	Uplink Direction = iota
	Downlink
)

var dirToStr map[Direction]string = map[Direction]string{Uplink: "UL", Downlink: "DL"}

func (d Direction) String() string {
	str, present := dirToStr[d]
	if !present {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return str
}

// NetworkSide is the source/destination id used for the network end of a packet
const NetworkSide int = -1

// Packet describes one unit of traffic. Everything but the transmission time is
// fixed when the packet is created; the transmission time is written once, when
// a scheduler drains the packet from its buffer.
type Packet struct {
	ID           int
	SourceID     int
	DestID       int
	Size         int     // bits
	CreationTime float64 // seconds

	txTime float64
	sent   bool
}

// CreatePacket is a constructor
func CreatePacket(id, srcID, dstID, size int, created float64) *Packet {
	pckt := new(Packet)
	pckt.ID = id
	pckt.SourceID = srcID
	pckt.DestID = dstID
	pckt.Size = size
	pckt.CreationTime = created
	return pckt
}

// Direction infers the direction of travel from the endpoints
func (pckt *Packet) Direction() Direction {
	if pckt.SourceID == NetworkSide {
		return Downlink
	}
	return Uplink
}

// markTransmitted records the transmission time. Only the first call has effect.
func (pckt *Packet) markTransmitted(now float64) {
	if pckt.sent {
		return
	}
	pckt.txTime = now
	pckt.sent = true
}

// TransmissionTime returns the time the packet left its buffer, and whether it has
func (pckt *Packet) TransmissionTime() (float64, bool) {
	return pckt.txTime, pckt.sent
}

// Latency is transmission time minus creation time; undefined (false) until transmitted
func (pckt *Packet) Latency() (float64, bool) {
	if !pckt.sent {
		return 0.0, false
	}
	return pckt.txTime - pckt.CreationTime, true
}
