package ecmsim

// identifier.go holds the pool of radio identifiers owned by one base station.
// An entity needs an identifier to be Connected; when the free set is empty the
// allocation fails and the entity has to stay Disconnected.

// IdentifierSpace is the size of the identifier address space a station could use.
// Pools simulate a subset of it.
const IdentifierSpace int = 1 << 16

// IdentifierPool is a fixed-capacity set of allocatable identifiers.
// Every identifier in [0, capacity) is either free or assigned to exactly one entity.
type IdentifierPool struct {
	capacity int
	free     []int       // stack of free identifiers
	assigned map[int]int // entity id -> identifier
}

// CreateIdentifierPool is a constructor
func CreateIdentifierPool(capacity int) *IdentifierPool {
	pool := new(IdentifierPool)
	pool.capacity = capacity
	pool.assigned = make(map[int]int)
	pool.free = make([]int, capacity)
	// lowest identifiers on top of the stack
	for idx := 0; idx < capacity; idx++ {
		pool.free[idx] = capacity - 1 - idx
	}
	return pool
}

// Allocate hands a free identifier to the entity. It fails exactly when the free set
// is empty. An entity that already holds an identifier keeps it, and the call succeeds.
func (pool *IdentifierPool) Allocate(entityID int) (int, bool) {
	if rnti, present := pool.assigned[entityID]; present {
		return rnti, true
	}
	if len(pool.free) == 0 {
		return 0, false
	}
	last := len(pool.free) - 1
	rnti := pool.free[last]
	pool.free = pool.free[:last]
	pool.assigned[entityID] = rnti
	return rnti, true
}

// Release returns the entity's identifier to the free set. Releasing an entity
// that holds nothing is a no-op, reported by the false return.
func (pool *IdentifierPool) Release(entityID int) bool {
	rnti, present := pool.assigned[entityID]
	if !present {
		return false
	}
	delete(pool.assigned, entityID)
	pool.free = append(pool.free, rnti)
	return true
}

// Lookup gives the identifier held by the entity, if any
func (pool *IdentifierPool) Lookup(entityID int) (int, bool) {
	rnti, present := pool.assigned[entityID]
	return rnti, present
}

// Grow raises the capacity to n identifiers, adding the new ones to the free set.
// Smaller values are ignored.
func (pool *IdentifierPool) Grow(n int) {
	if n <= pool.capacity {
		return
	}
	for rnti := pool.capacity; rnti < n; rnti++ {
		pool.free = append(pool.free, rnti)
	}
	pool.capacity = n
}

func (pool *IdentifierPool) Capacity() int  { return pool.capacity }
func (pool *IdentifierPool) FreeCount() int { return len(pool.free) }
func (pool *IdentifierPool) Assigned() int  { return len(pool.assigned) }

// Usage is the assigned fraction of the capacity
func (pool *IdentifierPool) Usage() float64 {
	if pool.capacity == 0 {
		return 0.0
	}
	return float64(len(pool.assigned)) / float64(pool.capacity)
}
