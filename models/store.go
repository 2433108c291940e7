package models

import (
	"sort"
	"sync"
)

// DestructibleStore holds the destructibles of a server.
type DestructibleStore struct {
	initOnce      sync.Once
	mutex         sync.RWMutex
	destructibles map[string]*Destructible
}

func (s *DestructibleStore) init() {
	s.destructibles = make(map[string]*Destructible)
}

func (s *DestructibleStore) Add(d *Destructible) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.destructibles[d.ID] = d
	instrumentDestructibleGauge(len(s.destructibles))
}

// Remove removes and closes the destructible with the given id.
func (s *DestructibleStore) Remove(id string) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	d, ok := s.destructibles[id]
	delete(s.destructibles, id)
	n := len(s.destructibles)
	s.mutex.Unlock()

	if !ok {
		return
	}
	d.Close()
	instrumentDestructibleGauge(n)
}

func (s *DestructibleStore) Get(id string) (*Destructible, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	d, ok := s.destructibles[id]
	return d, ok
}

// List returns the destructibles sorted by name.
func (s *DestructibleStore) List() []*Destructible {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	destructibles := make([]*Destructible, 0, len(s.destructibles))
	for _, d := range s.destructibles {
		destructibles = append(destructibles, d)
	}
	sort.Slice(destructibles, func(i, j int) bool {
		if destructibles[i].Name != destructibles[j].Name {
			return destructibles[i].Name < destructibles[j].Name
		}
		return destructibles[i].ID < destructibles[j].ID
	})
	return destructibles
}

// Tick ticks every destructible.
func (s *DestructibleStore) Tick() {
	for _, d := range s.List() {
		d.Tick()
	}
}

func (s *DestructibleStore) Stats() []DestructibleStats {
	destructibles := s.List()

	stats := make([]DestructibleStats, len(destructibles))
	for i, d := range destructibles {
		stats[i] = d.Stats()
	}
	return stats
}

// Close closes and removes every destructible.
func (s *DestructibleStore) Close() {
	for _, d := range s.List() {
		s.Remove(d.ID)
	}
}
