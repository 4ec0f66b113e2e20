package testutil

import (
	"fmt"
	"sync"
)

// SequentialParticleIDs generates predictable particle ids for tests.
//
// Particle ids salt every signature, so golden traces are only stable when
// the ids are.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialParticleIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialParticleIDs creates a generator yielding prefix-1, prefix-2, ...
// If prefix is empty, "test-particle" is used.
func NewSequentialParticleIDs(prefix string) *SequentialParticleIDs {
	if prefix == "" {
		prefix = "test-particle"
	}
	return &SequentialParticleIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialParticleIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
