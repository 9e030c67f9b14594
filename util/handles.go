package util

import "fmt"

// ReservedHandles is the number of low handle values that are never issued.
// Zero means "no handle" in getattr and setattr requests; the others are kept
// free for sentinels.
const ReservedHandles uint64 = 3

// HandleGenerator issues small integer handles. A handle is never issued
// again until it has been returned with Forget, and forgotten handles are
// reused before the counter grows.
//
// HandleGenerator is not safe for concurrent use; callers serialize access.
type HandleGenerator struct {
	counter uint64
	free    []uint64
	freed   map[uint64]struct{}
}

func NewHandleGenerator() *HandleGenerator {
	return &HandleGenerator{
		counter: ReservedHandles,
		freed:   make(map[uint64]struct{}),
	}
}

// Next returns a handle that is not currently live.
func (g *HandleGenerator) Next() uint64 {
	if n := len(g.free); n > 0 {
		h := g.free[n-1]
		g.free = g.free[:n-1]
		delete(g.freed, h)
		return h
	}
	g.counter++
	return g.counter
}

// Forget returns h to the free list. It fails if h was never issued or has
// already been forgotten.
func (g *HandleGenerator) Forget(h uint64) error {
	if h <= ReservedHandles || h > g.counter {
		return fmt.Errorf("forget handle %d: %w", h, ErrHandleNotIssued)
	}
	if _, ok := g.freed[h]; ok {
		return fmt.Errorf("forget handle %d: %w", h, ErrHandleFreed)
	}
	g.freed[h] = struct{}{}
	g.free = append(g.free, h)
	return nil
}

// Live reports how many issued handles have not been forgotten.
func (g *HandleGenerator) Live() int {
	return int(g.counter-ReservedHandles) - len(g.free)
}
