package ecmsim

import "testing"

func fill(t *testing.T, buf *Buffer, sizes ...int) {
	t.Helper()
	for idx, size := range sizes {
		if !buf.Enqueue(CreatePacket(idx, 0, NetworkSide, size, 0.0)) {
			t.Fatalf("Enqueue(packet %d) rejected with %d of %d queued", idx, buf.Len(), buf.Capacity())
		}
	}
}

func TestBufferRejectsWhenFull(t *testing.T) {
	buf := CreateBuffer(3)
	fill(t, buf, 10, 20, 30)

	if buf.Enqueue(CreatePacket(99, 0, NetworkSide, 5, 0.0)) {
		t.Fatalf("Enqueue on a full buffer accepted the packet")
	}
	if buf.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", buf.Len())
	}
	if buf.Admitted() != 3 || buf.Rejected() != 1 {
		t.Fatalf("admitted/rejected = %d/%d, want 3/1", buf.Admitted(), buf.Rejected())
	}
	if head := buf.Head(); head == nil || head.ID != 0 {
		t.Fatalf("Head() = %+v, want the first packet: nothing is evicted", head)
	}
	if buf.Bits() != 60 {
		t.Fatalf("Bits() = %d, want 60", buf.Bits())
	}
}

func TestBufferDrainStopsAtFirstNonFittingPacket(t *testing.T) {
	buf := CreateBuffer(10)
	fill(t, buf, 100, 500, 50)

	got := buf.Drain(400)
	if len(got) != 1 || got[0].Size != 100 {
		t.Fatalf("Drain(400) returned %d packets, want only the 100-bit head", len(got))
	}
	// the 50-bit packet would fit but sits behind the 500-bit one
	if buf.Len() != 2 || buf.Head().Size != 500 {
		t.Fatalf("after Drain: Len() = %d, head size %d; want 2 and 500", buf.Len(), buf.Head().Size)
	}

	got = buf.Drain(550)
	total := 0
	for idx, pckt := range got {
		total += pckt.Size
		if idx > 0 && pckt.ID < got[idx-1].ID {
			t.Fatalf("Drain reordered packets: %d before %d", got[idx-1].ID, pckt.ID)
		}
	}
	if total > 550 {
		t.Fatalf("Drain(550) returned %d bits", total)
	}
	if !buf.IsEmpty() || buf.Bits() != 0 {
		t.Fatalf("buffer should be empty, Len() = %d Bits() = %d", buf.Len(), buf.Bits())
	}
}

func TestBufferDrainEmpty(t *testing.T) {
	buf := CreateBuffer(2)
	for i := 0; i < 2; i++ {
		if got := buf.Drain(1 << 20); len(got) != 0 {
			t.Fatalf("Drain on empty buffer returned %d packets", len(got))
		}
	}
}

func TestBufferOccupancy(t *testing.T) {
	buf := CreateBuffer(4)
	fill(t, buf, 1)
	if got := buf.RecordOccupancy(1.0); got != 0.25 {
		t.Fatalf("RecordOccupancy = %v, want 0.25", got)
	}
	fill(t, buf, 1, 1, 1)
	buf.RecordOccupancy(2.0)

	hist := buf.OccupancyHistory()
	if len(hist) != 2 || hist[1].Ratio != 1.0 || hist[1].Time != 2.0 {
		t.Fatalf("OccupancyHistory() = %+v", hist)
	}

	buf.resetStats()
	if len(buf.OccupancyHistory()) != 0 || buf.Admitted() != 0 {
		t.Fatalf("resetStats kept history or counters")
	}
	if buf.Len() != 4 {
		t.Fatalf("resetStats dropped queued packets, Len() = %d", buf.Len())
	}
}

func TestPacketTransmissionIsWriteOnce(t *testing.T) {
	pckt := CreatePacket(1, NetworkSide, 3, 800, 2.0)
	if pckt.Direction() != Downlink {
		t.Fatalf("Direction() = %v, want DL", pckt.Direction())
	}
	if _, ok := pckt.Latency(); ok {
		t.Fatalf("Latency defined before transmission")
	}
	pckt.markTransmitted(2.5)
	pckt.markTransmitted(9.0)
	if lat, ok := pckt.Latency(); !ok || lat != 0.5 {
		t.Fatalf("Latency() = %v, %v; want 0.5, true", lat, ok)
	}
}
