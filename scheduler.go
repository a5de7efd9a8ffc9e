package ecmsim

// scheduler.go holds the per-tick allocator of resource blocks used by a base station.
// The two policies, round-robin and proportional-fair, are variants of one Scheduler
// selected by its Algorithm; both hand out the same per-pair quantum of
// floor(blocks/active) blocks (at least one) while the budget lasts, and differ only in
// the order in which the active pairs are visited.

import (
	"fmt"
	"sort"
)

// Demand is an (entity, direction) pair with a non-empty matching buffer at the current tick
type Demand struct {
	EntityID int
	Dir      Direction
}

// Allocation is the grant of a number of resource blocks to one demand
type Allocation struct {
	EntityID int
	Dir      Direction
	Blocks   int
}

// Scheduler carries the state of one base station's allocator. The state
// is never shared between stations or runs.
type Scheduler struct {
	algo      Algorithm
	blocks    int     // resource blocks per tick
	blockRate float64 // bits per resource block
	alpha     float64 // proportional-fair smoothing factor

	cursor int             // round-robin start offset into the active list
	avg    map[int]float64 // proportional-fair smoothed throughput, by entity id
}

// CreateScheduler is a constructor
func CreateScheduler(algo Algorithm, blocks, blockRate int, window float64) *Scheduler {
	sched := new(Scheduler)
	sched.algo = algo
	sched.blocks = blocks
	sched.blockRate = float64(blockRate)
	sched.alpha = 1.0 / window
	sched.avg = make(map[int]float64)
	return sched
}

// Algorithm reports the variant
func (sched *Scheduler) Algorithm() Algorithm {
	return sched.algo
}

// Blocks is the per-tick budget
func (sched *Scheduler) Blocks() int {
	return sched.blocks
}

// Reset clears the cursor and the throughput history
func (sched *Scheduler) Reset() {
	sched.cursor = 0
	sched.avg = make(map[int]float64)
}

// quantum is the per-pair grant for n active pairs
func (sched *Scheduler) quantum(n int) int {
	return max(1, sched.blocks/n)
}

// Allocate distributes this tick's budget over the active pairs
func (sched *Scheduler) Allocate(active []Demand, now float64) []Allocation {
	if len(active) == 0 {
		return []Allocation{}
	}
	switch sched.algo {
	case RoundRobin:
		return sched.roundRobin(active)
	case ProportionalFair:
		return sched.proportionalFair(active)
	}
	panic(fmt.Errorf("scheduler with unknown algorithm %q", sched.algo))
}

func (sched *Scheduler) roundRobin(active []Demand) []Allocation {
	n := len(active)
	per := sched.quantum(n)
	remaining := sched.blocks
	start := sched.cursor % n

	allocs := make([]Allocation, 0, n)
	for idx := 0; idx < n && remaining > 0; idx++ {
		dmd := active[(start+idx)%n]
		grant := min(per, remaining)
		allocs = append(allocs, Allocation{EntityID: dmd.EntityID, Dir: dmd.Dir, Blocks: grant})
		remaining -= grant
	}

	// whatever is left of the budget is discarded
	served := len(allocs)
	if served == n {
		served = 1
	}
	sched.cursor = (start + served) % n
	return allocs
}

// Metric is the proportional-fair priority of an entity: the per-block rate over its
// smoothed historical throughput. An entity seen for the first time starts its
// history at one tenth of the per-block rate.
func (sched *Scheduler) Metric(entityID int) float64 {
	return sched.blockRate / sched.average(entityID)
}

// average returns the smoothed throughput, creating it on first appearance
func (sched *Scheduler) average(entityID int) float64 {
	avg, present := sched.avg[entityID]
	if !present {
		avg = sched.blockRate / 10.0
		sched.avg[entityID] = avg
	}
	return avg
}

func (sched *Scheduler) proportionalFair(active []Demand) []Allocation {
	n := len(active)
	per := sched.quantum(n)
	remaining := sched.blocks

	type ranked struct {
		dmd    Demand
		metric float64
	}
	order := make([]ranked, n)
	for idx, dmd := range active {
		order[idx] = ranked{dmd: dmd, metric: sched.Metric(dmd.EntityID)}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].metric > order[j].metric })

	allocs := make([]Allocation, 0, n)
	for _, rnk := range order {
		if remaining <= 0 {
			break
		}
		grant := min(per, remaining)
		allocs = append(allocs, Allocation{EntityID: rnk.dmd.EntityID, Dir: rnk.dmd.Dir, Blocks: grant})
		remaining -= grant

		thrput := float64(grant) * sched.blockRate
		avg := sched.average(rnk.dmd.EntityID)
		sched.avg[rnk.dmd.EntityID] = (1.0-sched.alpha)*avg + sched.alpha*thrput
	}
	return allocs
}

// checkAllocations panics if a grant list breaks the allocation contract: every grant
// at least one block and the total within the budget
func checkAllocations(allocs []Allocation, budget int) {
	remaining := budget
	for _, alloc := range allocs {
		if alloc.Blocks < 1 || alloc.Blocks > remaining {
			panic(fmt.Errorf("scheduler granted %d blocks to entity %d (%s) with %d of %d remaining",
				alloc.Blocks, alloc.EntityID, alloc.Dir, remaining, budget))
		}
		remaining -= alloc.Blocks
	}
}
