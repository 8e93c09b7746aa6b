package types

import "time"

// NeverExpires is the sentinel valid_to value meaning a memory never expires.
var NeverExpires = time.Time{}

// Memory is one atomic piece of remembered text (see spec §3).
type Memory struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`

	MemoryType MemoryType `json:"memory_type"`
	Importance float64    `json:"importance"`
	Confidence float64    `json:"confidence"`

	CreatedAt time.Time `json:"created_at"`
	ValidFrom time.Time `json:"valid_from"`
	// ValidTo is the expiry timestamp. The zero time.Time (NeverExpires)
	// means the memory never expires.
	ValidTo time.Time `json:"valid_to"`

	Source    string `json:"source,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Quality signals, mirrored from the usage-tracking fields the teacher
	// repo keeps on every memory (access_count/last_accessed_at/decay_score).
	AccessCount    int       `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at,omitempty"`
}

// IsExpired reports whether the memory's valid_to has passed as of now.
func (m *Memory) IsExpired(now time.Time) bool {
	if m.ValidTo.IsZero() {
		return false
	}
	return m.ValidTo.Before(now)
}

// Entity is a normalized noun-phrase or identifier extracted from memories.
type Entity struct {
	ID   string     `json:"id"`
	Name string     `json:"name"` // case-folded canonical form
	Kind EntityKind `json:"kind"`
	// Surface is the name as first passed to the store for this entity. The
	// rule extractor passes names already case-folded, so for its entities
	// Surface equals Name.
	Surface string `json:"surface,omitempty"`
}

// EntityMention is the (Memory)-mentions-(Entity) edge.
type EntityMention struct {
	MemoryID string `json:"memory_id"`
	EntityID string `json:"entity_id"`
}

// MemoryContext is the transient result of prompt enhancement: the original
// prompt, the ranked memories selected for it, the enhanced prompt text, and
// timing/provenance annotations. It is never persisted.
type MemoryContext struct {
	Prompt         string        `json:"prompt"`
	EnhancedPrompt string        `json:"enhanced_prompt"`
	Memories       []RankedMemory `json:"memories"`
	Strategy       string        `json:"strategy"`
	TookMS         int64         `json:"took_ms"`
	// Degraded is set when the coordinator returned partial results because
	// its deadline elapsed before every strategy finished.
	Degraded bool `json:"degraded,omitempty"`
	// Error carries a non-fatal annotation: the error returned by the recall
	// coordinator, when the engine falls back to the bare prompt instead of
	// failing the call.
	Error string `json:"error,omitempty"`
}

// RankedMemory pairs a Memory with its merged recall score and the
// strategies that surfaced it.
type RankedMemory struct {
	Memory     *Memory  `json:"memory"`
	Score      float64  `json:"score"`
	Strategies []string `json:"strategies"`
}
