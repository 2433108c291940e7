package scheduler

import "time"

type Stats struct {
	HighQueue   int          `json:"high_queue"`
	NormalQueue int          `json:"normal_queue"`
	BusyChunks  int          `json:"busy_chunks"`
	Slots       []SlotStats  `json:"slots"`
	Chunks      []ChunkStats `json:"chunks"`

	SimplifyIntervalCap int           `json:"simplify_interval_cap"`
	ApplyCost           time.Duration `json:"apply_cost"`
	SubtractCost        time.Duration `json:"subtract_cost"`
}

type SlotStats struct {
	UnionWorkers    int `json:"union_workers"`
	SubtractWorkers int `json:"subtract_workers"`
	QueuedUnions    int `json:"queued_unions"`
	QueuedSubtracts int `json:"queued_subtracts"`
}

type ChunkStats struct {
	Chunk          int    `json:"chunk"`
	Generation     uint64 `json:"generation"`
	HoleCount      int    `json:"hole_count"`
	UnionLimit     int    `json:"union_limit"`
	InFlight       int    `json:"in_flight"`
	PendingUnions  int    `json:"pending_unions"`
	SimplifyCount  int    `json:"simplify_interval"`
	LastSimplified int    `json:"last_simplified_triangles"`
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	var st Stats

	s.queueMutex.Lock()
	st.HighQueue = len(s.high)
	st.NormalQueue = len(s.normal)
	s.queueMutex.Unlock()

	st.BusyChunks = s.busy.BusyCount()

	s.mutex.Lock()
	for _, sl := range s.slots {
		st.Slots = append(st.Slots, SlotStats{
			UnionWorkers:    int(sl.unionActive.Load()),
			SubtractWorkers: int(sl.subtractActive.Load()),
			QueuedUnions:    len(sl.unions),
			QueuedSubtracts: len(sl.subtracts),
		})
	}

	st.Chunks = make([]ChunkStats, s.chunkCount)
	for i := range st.Chunks {
		st.Chunks[i] = ChunkStats{
			Chunk:         i,
			Generation:    s.generations[i],
			HoleCount:     s.holeCounts[i],
			InFlight:      s.inFlight[i],
			PendingUnions: len(s.pending[i]),
		}
	}
	s.mutex.Unlock()

	s.pacingMutex.Lock()
	defer s.pacingMutex.Unlock()

	for i, p := range s.pacing {
		st.Chunks[i].UnionLimit = p.unionLimit
		st.Chunks[i].SimplifyCount = p.interval
		st.Chunks[i].LastSimplified = p.lastSimplifyTriCount
	}
	st.SimplifyIntervalCap = s.cadence.maxInterval
	st.ApplyCost = s.cadence.applyCost
	st.SubtractCost = s.subtractCost.avg
	return st
}
