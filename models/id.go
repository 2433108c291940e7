package models

import "sync"

// SequentialIDGenerator hands out ids starting at 1. Released ids are handed
// out again, lowest first, before new ones.
type SequentialIDGenerator struct {
	mutex       sync.Mutex
	currentID   uint32
	reusableIDs map[uint32]struct{}
}

// New returns a sequential id.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.reusableIDs) != 0 {
		lowest := g.currentID
		for id := range g.reusableIDs {
			lowest = min(lowest, id)
		}
		delete(g.reusableIDs, lowest)
		return lowest
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Ids that were never returned by New
// are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	if g.reusableIDs == nil {
		g.reusableIDs = make(map[uint32]struct{})
	}
	g.reusableIDs[id] = struct{}{}
}
