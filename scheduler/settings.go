package scheduler

import (
	"time"

	"github.com/aukilabs/brotna/boolean"
)

// Settings configures a scheduler.
type Settings struct {
	// The number of dispatch slots. Values <= 0 derive it from the worker
	// pool size.
	Slots int `json:"slots" yaml:"slots"`

	MaxUnionWorkersPerSlot    int `json:"max_union_workers_per_slot"    yaml:"max_union_workers_per_slot"`
	MaxSubtractWorkersPerSlot int `json:"max_subtract_workers_per_slot" yaml:"max_subtract_workers_per_slot"`

	// The number of requests unioned together before a chunk subtract, at
	// start and at most.
	InitialUnionLimit int `json:"initial_union_limit" yaml:"initial_union_limit"`
	MaxUnionLimit     int `json:"max_union_limit"     yaml:"max_union_limit"`

	// The subtract duration the union limit is adapted to.
	FrameBudget time.Duration `json:"frame_budget" yaml:"frame_budget"`

	// Subtracts at least this long count as slow.
	SubtractDurationLimit time.Duration `json:"subtract_duration_limit" yaml:"subtract_duration_limit"`

	// The number of unioned requests between two simplifications at start.
	// The adaptive cap moves between MinSimplifyInterval and twice this
	// value.
	SimplifyInterval    int `json:"simplify_interval"     yaml:"simplify_interval"`
	MinSimplifyInterval int `json:"min_simplify_interval" yaml:"min_simplify_interval"`

	DisableSimplify      bool `json:"disable_simplify"       yaml:"disable_simplify"`
	DisableAdaptiveUnion bool `json:"disable_adaptive_union" yaml:"disable_adaptive_union"`

	// Retry.Rand must be nil since subtracts of different chunks run
	// concurrently.
	Retry boolean.RetryPolicy `json:"retry" yaml:"retry"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxUnionWorkersPerSlot:    2,
		MaxSubtractWorkersPerSlot: 1,
		InitialUnionLimit:         10,
		MaxUnionLimit:             20,
		FrameBudget:               8 * time.Millisecond,
		SubtractDurationLimit:     15 * time.Millisecond,
		SimplifyInterval:          30,
		MinSimplifyInterval:       15,
		Retry:                     boolean.DefaultRetryPolicy(),
	}
}

func (s Settings) withDefaults(poolSize int) Settings {
	d := DefaultSettings()

	if s.Slots <= 0 {
		s.Slots = max(1, poolSize/(d.MaxUnionWorkersPerSlot+d.MaxSubtractWorkersPerSlot))
	}
	if s.MaxUnionWorkersPerSlot <= 0 {
		s.MaxUnionWorkersPerSlot = d.MaxUnionWorkersPerSlot
	}
	if s.MaxSubtractWorkersPerSlot <= 0 {
		s.MaxSubtractWorkersPerSlot = d.MaxSubtractWorkersPerSlot
	}
	if s.MaxUnionLimit <= 0 {
		s.MaxUnionLimit = d.MaxUnionLimit
	}
	if s.InitialUnionLimit <= 0 {
		s.InitialUnionLimit = d.InitialUnionLimit
	}
	s.InitialUnionLimit = min(s.InitialUnionLimit, s.MaxUnionLimit)
	if s.FrameBudget <= 0 {
		s.FrameBudget = d.FrameBudget
	}
	if s.SubtractDurationLimit <= 0 {
		s.SubtractDurationLimit = d.SubtractDurationLimit
	}
	if s.MinSimplifyInterval <= 0 {
		s.MinSimplifyInterval = d.MinSimplifyInterval
	}
	if s.SimplifyInterval <= 0 {
		s.SimplifyInterval = d.SimplifyInterval
	}
	s.SimplifyInterval = max(s.SimplifyInterval, s.MinSimplifyInterval)
	return s
}
