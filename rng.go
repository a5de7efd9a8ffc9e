package ecmsim

// rng.go holds the random streams of a run. By default each run draws fresh
// rngstream streams; a non-zero Config.Seed makes a run reproducible by deriving
// every stream from the seed.

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/iti/rngstream"
	"golang.org/x/exp/rand"
)

// uniformStream is the subset of the rngstream interface the simulation draws from
type uniformStream interface {
	RandU01() float64
	RandInt(lo, hi int) int
}

// rngstream advances package-level seed state when a stream is created,
// and runs of parallel scenarios create streams concurrently
var streamMutex sync.Mutex

// seededStream adapts a seeded x/exp/rand generator to uniformStream
type seededStream struct {
	rnd *rand.Rand
}

func (ss *seededStream) RandU01() float64 {
	return ss.rnd.Float64()
}

// RandInt returns an integer uniformly drawn from [lo, hi]
func (ss *seededStream) RandInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + ss.rnd.Intn(hi-lo+1)
}

// createStream returns the named stream of a run. Streams with the same seed and
// name produce the same sequence.
func createStream(seed uint64, name string) uniformStream {
	if seed == 0 {
		streamMutex.Lock()
		defer streamMutex.Unlock()
		return rngstream.New(name)
	}
	return &seededStream{rnd: rand.New(rand.NewSource(seed ^ nameHash(name)))}
}

// sourceFrom builds an x/exp/rand source for gonum distributions, seeded from a stream
func sourceFrom(strm uniformStream) rand.Source {
	return rand.NewSource(uint64(strm.RandU01()*float64(1<<53)) + 1)
}

func nameHash(name string) uint64 {
	hash := fnv.New64a()
	hash.Write([]byte(name))
	return hash.Sum64()
}

func streamName(kind string, run int) string {
	return fmt.Sprintf("%s-%d", kind, run)
}
