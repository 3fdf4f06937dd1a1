package genotype

import (
	"math/rand"
	"sync/atomic"
	"time"
)

// IDFactory hands out sequential identities for genes, genomes, networks and
// populations within one run. The zero value starts at 1.
type IDFactory struct {
	last atomic.Uint64
}

// NewIDFactory returns a factory whose first id is next.
func NewIDFactory(next uint64) *IDFactory {
	f := &IDFactory{}
	if next > 0 {
		f.last.Store(next - 1)
	}
	return f
}

func (f *IDFactory) Next() uint64 {
	return f.last.Add(1)
}

// Peek returns the id the next call to Next will hand out.
func (f *IDFactory) Peek() uint64 {
	return f.last.Load() + 1
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
