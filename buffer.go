package ecmsim

// buffer.go holds the bounded FIFO packet queue used for the UL buffer of every
// mobile entity and for the per-entity DL buffers held by a base station

// OccupancySample is an instantaneous occupancy ratio of a buffer
type OccupancySample struct {
	Time  float64 `json:"time" yaml:"time"`
	Ratio float64 `json:"ratio" yaml:"ratio"`
}

// Buffer is a bounded FIFO of packets. A packet offered to a full buffer is
// rejected; nothing already queued is ever evicted.
type Buffer struct {
	capacity int
	pckts    []*Packet
	bits     int // total size of the queued packets

	admitted  int
	rejected  int
	occupancy []OccupancySample
}

// CreateBuffer is a constructor. capacity is measured in packets.
func CreateBuffer(capacity int) *Buffer {
	buf := new(Buffer)
	buf.capacity = capacity
	buf.pckts = make([]*Packet, 0)
	buf.occupancy = make([]OccupancySample, 0)
	return buf
}

// Enqueue appends the packet if there is room, and reports whether it was accepted
func (buf *Buffer) Enqueue(pckt *Packet) bool {
	if len(buf.pckts) >= buf.capacity {
		buf.rejected += 1
		return false
	}
	buf.pckts = append(buf.pckts, pckt)
	buf.bits += pckt.Size
	buf.admitted += 1
	return true
}

// IsEmpty is true when no packet is queued
func (buf *Buffer) IsEmpty() bool {
	return len(buf.pckts) == 0
}

// Len is the number of queued packets
func (buf *Buffer) Len() int {
	return len(buf.pckts)
}

// Capacity is the maximum number of queued packets
func (buf *Buffer) Capacity() int {
	return buf.capacity
}

// Bits is the total size of the queued packets
func (buf *Buffer) Bits() int {
	return buf.bits
}

// Admitted and Rejected are the cumulative enqueue outcomes
func (buf *Buffer) Admitted() int { return buf.admitted }
func (buf *Buffer) Rejected() int { return buf.rejected }

// Drain removes and returns leading packets, in FIFO order, while each one fits
// in what is left of budget (bits). It stops at the first packet that does not
// fit, even when a later one would: packets are never split and never reordered.
func (buf *Buffer) Drain(budget int) []*Packet {
	drained := []*Packet{}
	remaining := budget
	n := 0
	for n < len(buf.pckts) && buf.pckts[n].Size <= remaining {
		pckt := buf.pckts[n]
		remaining -= pckt.Size
		buf.bits -= pckt.Size
		drained = append(drained, pckt)
		n += 1
	}
	if n > 0 {
		// release references held by the backing array
		for idx := 0; idx < n; idx++ {
			buf.pckts[idx] = nil
		}
		buf.pckts = buf.pckts[n:]
	}
	return drained
}

// Head returns the oldest queued packet, or nil
func (buf *Buffer) Head() *Packet {
	if len(buf.pckts) == 0 {
		return nil
	}
	return buf.pckts[0]
}

// OccupancyRatio is the fraction of the capacity in use
func (buf *Buffer) OccupancyRatio() float64 {
	if buf.capacity == 0 {
		return 0.0
	}
	return float64(len(buf.pckts)) / float64(buf.capacity)
}

// RecordOccupancy saves the current occupancy ratio for later analysis, and returns it
func (buf *Buffer) RecordOccupancy(time float64) float64 {
	ratio := buf.OccupancyRatio()
	buf.occupancy = append(buf.occupancy, OccupancySample{Time: time, Ratio: ratio})
	return ratio
}

// OccupancyHistory returns the recorded samples
func (buf *Buffer) OccupancyHistory() []OccupancySample {
	return buf.occupancy
}

// resetStats clears the counters and the occupancy history but keeps the queued packets
func (buf *Buffer) resetStats() {
	buf.admitted = 0
	buf.rejected = 0
	buf.occupancy = buf.occupancy[:0]
}
