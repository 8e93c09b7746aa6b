package storage

import (
	"time"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// Filters narrows store reads to memories matching all of the given
// (non-empty) fields. Filters are only applied when explicitly provided —
// the coordinator must never silently restrict results to the caller's own
// agent/session (spec §4.5 step 4).
type Filters struct {
	AgentID    string
	SessionID  string
	Source     string
	MemoryType types.MemoryType
}

// IsZero reports whether no filter field is set.
func (f Filters) IsZero() bool {
	return f.AgentID == "" && f.SessionID == "" && f.Source == "" && f.MemoryType == ""
}

// Scored pairs a Memory with a strategy-local relevance score.
type Scored struct {
	Memory *types.Memory
	Score  float64
}

// PutResult reports whether Put inserted a new row or found a duplicate.
type PutResult int

const (
	PutInserted PutResult = iota
	PutDuplicate
)

// TimeWindow bounds a temporal search (spec §4.4 Temporal strategy).
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// PruneStrategy selects how aggressively Prune reclaims space.
type PruneStrategy int

const (
	// PruneSafe removes only physically expired memories and entities with
	// zero remaining mentions.
	PruneSafe PruneStrategy = iota
	// PruneAggressive additionally removes low-importance, long-unused
	// memories that have not expired yet.
	PruneAggressive
)

// PruneReport summarizes what Prune removed.
type PruneReport struct {
	MemoriesRemoved int
	EntitiesRemoved int
}

// Stats summarizes the store's current contents.
type Stats struct {
	MemoryCount int
	SizeBytes   int64
}
