package ecmsim

import (
	"testing"
)

func demands(ids ...int) []Demand {
	active := make([]Demand, len(ids))
	for idx, id := range ids {
		active[idx] = Demand{EntityID: id, Dir: Uplink}
	}
	return active
}

func grantedBlocks(allocs []Allocation) int {
	total := 0
	for _, alloc := range allocs {
		total += alloc.Blocks
	}
	return total
}

func TestRoundRobinRotatesStart(t *testing.T) {
	sched := CreateScheduler(RoundRobin, 10, 1500, 100)
	active := demands(0, 1, 2, 3)

	for tick := 0; tick < 8; tick++ {
		allocs := sched.Allocate(active, float64(tick))
		checkAllocations(allocs, sched.Blocks())
		if len(allocs) != 4 {
			t.Fatalf("tick %d: %d grants, want 4", tick, len(allocs))
		}
		if want := tick % 4; allocs[0].EntityID != want {
			t.Fatalf("tick %d: first served entity %d, want %d", tick, allocs[0].EntityID, want)
		}
		// quantum floor(10/4) = 2, the remaining 2 blocks are discarded
		if got := grantedBlocks(allocs); got != 8 {
			t.Fatalf("tick %d: granted %d blocks, want 8", tick, got)
		}
	}
}

func TestRoundRobinMoreDemandsThanBlocks(t *testing.T) {
	sched := CreateScheduler(RoundRobin, 10, 1500, 100)
	ids := make([]int, 15)
	for idx := range ids {
		ids[idx] = idx
	}
	active := demands(ids...)

	seen := make(map[int]int)
	for tick := 0; tick < 3; tick++ {
		allocs := sched.Allocate(active, float64(tick))
		checkAllocations(allocs, sched.Blocks())
		if len(allocs) != 10 {
			t.Fatalf("tick %d: %d grants, want 10 single-block grants", tick, len(allocs))
		}
		for _, alloc := range allocs {
			if alloc.Blocks != 1 {
				t.Fatalf("tick %d: entity %d granted %d blocks, want 1", tick, alloc.EntityID, alloc.Blocks)
			}
			seen[alloc.EntityID] += 1
		}
	}
	// 30 grants over 15 entities, visited in rotation
	for id := 0; id < 15; id++ {
		if seen[id] != 2 {
			t.Fatalf("entity %d served %d times in 3 ticks, want 2", id, seen[id])
		}
	}
}

func TestProportionalFairFavorsUnderserved(t *testing.T) {
	sched := CreateScheduler(ProportionalFair, 10, 1500, 100)
	for tick := 0; tick < 50; tick++ {
		sched.Allocate(demands(7), float64(tick))
	}
	if sched.Metric(3) <= sched.Metric(7) {
		t.Fatalf("Metric(new) = %v, Metric(served) = %v; the new entity should rank higher",
			sched.Metric(3), sched.Metric(7))
	}

	allocs := sched.Allocate(demands(7, 3), 50)
	checkAllocations(allocs, sched.Blocks())
	if len(allocs) != 2 || allocs[0].EntityID != 3 {
		t.Fatalf("allocations %+v, want entity 3 served first", allocs)
	}
	if allocs[0].Blocks != 5 || allocs[1].Blocks != 5 {
		t.Fatalf("allocations %+v, want 5 blocks each", allocs)
	}
}

func TestProportionalFairTiesKeepOrder(t *testing.T) {
	sched := CreateScheduler(ProportionalFair, 3, 1500, 100)
	allocs := sched.Allocate(demands(4, 2, 9, 5), 0)
	checkAllocations(allocs, sched.Blocks())

	want := []int{4, 2, 9}
	if len(allocs) != len(want) {
		t.Fatalf("%d grants, want %d", len(allocs), len(want))
	}
	for idx, id := range want {
		if allocs[idx].EntityID != id {
			t.Fatalf("grant %d went to entity %d, want %d", idx, allocs[idx].EntityID, id)
		}
	}
}

func TestSchedulerEmptyAndReset(t *testing.T) {
	for _, algo := range []Algorithm{RoundRobin, ProportionalFair} {
		sched := CreateScheduler(algo, 10, 1500, 100)
		if allocs := sched.Allocate(nil, 0); len(allocs) != 0 {
			t.Fatalf("%s: %d grants with no demand", algo, len(allocs))
		}
		sched.Allocate(demands(1, 2, 3), 0)
		sched.Reset()
		if allocs := sched.Allocate(demands(1, 2, 3), 1); allocs[0].EntityID != 1 {
			t.Fatalf("%s: after Reset first grant went to %d, want 1", algo, allocs[0].EntityID)
		}
	}
}

func TestCheckAllocationsPanicsOnOverGrant(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("checkAllocations accepted grants above the budget")
		}
	}()
	checkAllocations([]Allocation{{EntityID: 1, Blocks: 6}, {EntityID: 2, Blocks: 6}}, 10)
}
