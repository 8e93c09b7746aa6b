// Package config holds the engine's configuration struct and its
// validation. Loading a populated Config from config.yaml, environment
// variables, or any other external source is explicitly a collaborator's
// concern (spec §1 scope) — this package only defines the struct and the
// range checks a constructed value must pass.
package config

import (
	"fmt"
	"time"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// Config mirrors the field groups in spec §6: one struct per named section.
type Config struct {
	Recall     RecallConfig
	Retention  RetentionConfig
	Storage    StorageConfig
	Async      AsyncConfig
	Extraction ExtractionConfig
	Cache      CacheConfig
}

// RecallConfig tunes the Recall Coordinator (C6).
type RecallConfig struct {
	MaxMemories      int
	DefaultStrategy  string // one of auto, keyword, entity, temporal, hybrid
	DeadlineMS       int
	KeywordWeight    float64
	EntityWeight     float64
	TemporalWeight   float64
	ImportanceWeight float64 // alpha
	FreshnessWeight  float64 // beta
}

// RetentionConfig overrides the per-type default retention windows. A zero
// duration means "use the type's built-in default"; a negative duration
// marks "never expires" for that type.
type RetentionConfig struct {
	SemanticTTL   time.Duration
	ProceduralTTL time.Duration
	PreferenceTTL time.Duration
	EpisodicTTL   time.Duration
	WorkingTTL    time.Duration
	SensoryTTL    time.Duration
}

// For resolves t's configured TTL override, if one was set: a positive
// duration overrides the type's built-in default, a negative one marks
// "never expires," and the zero value (the default for an unset field)
// means "no override, use the type's own default." Implements
// extract.RetentionOverride.
func (r RetentionConfig) For(t types.MemoryType) (time.Duration, bool) {
	var d time.Duration
	switch t {
	case types.MemoryTypeSemantic:
		d = r.SemanticTTL
	case types.MemoryTypeProcedural:
		d = r.ProceduralTTL
	case types.MemoryTypePreference:
		d = r.PreferenceTTL
	case types.MemoryTypeEpisodic:
		d = r.EpisodicTTL
	case types.MemoryTypeWorking:
		d = r.WorkingTTL
	case types.MemoryTypeSensory:
		d = r.SensoryTTL
	default:
		return 0, false
	}
	if d == 0 {
		return 0, false
	}
	return d, true
}

// StorageConfig tunes the Memory Store / Graph Adapter (C1/C2).
type StorageConfig struct {
	MaxSizeMB   int
	AutoCompact bool
}

// AsyncConfig tunes the Async Learning Queue (C8).
type AsyncConfig struct {
	QueueCapacity   int
	Workers         int
	DrainDeadlineMS int
}

// ExtractionConfig tunes the Extractor/Classifier pair (C3/C4).
type ExtractionConfig struct {
	// EnableNLPClassification gates whether the Classifier is an
	// NLPClassifier (backed by a future model-driven implementation) or the
	// plain RuleClassifier. Defaults to false: the core never invokes a
	// model on its own.
	EnableNLPClassification bool
}

// CacheConfig tunes the Cache Layer (C10).
type CacheConfig struct {
	Enabled    bool
	TTLSeconds int
	Capacity   int
}

// Default returns the spec's documented defaults (§4, §6).
func Default() Config {
	return Config{
		Recall: RecallConfig{
			MaxMemories:      10,
			DefaultStrategy:  "auto",
			DeadlineMS:       100,
			KeywordWeight:    0.5,
			EntityWeight:     0.3,
			TemporalWeight:   0.2,
			ImportanceWeight: 0.15,
			FreshnessWeight:  0.10,
		},
		Storage: StorageConfig{
			MaxSizeMB:   0, // 0 means unbounded
			AutoCompact: true,
		},
		Async: AsyncConfig{
			QueueCapacity:   1024,
			Workers:         2,
			DrainDeadlineMS: 30_000,
		},
		Extraction: ExtractionConfig{
			EnableNLPClassification: false,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 60,
			Capacity:   256,
		},
	}
}

// Validate checks that every field is within its documented range, ported
// from the teacher's engine.Config.Validate idiom (range/positivity checks
// returning a wrapped, named error per offending field).
func (c *Config) Validate() error {
	if c.Recall.MaxMemories < 1 {
		return fmt.Errorf("%w: recall.max_memories must be >= 1, got %d", ErrConfig, c.Recall.MaxMemories)
	}
	switch c.Recall.DefaultStrategy {
	case "", "auto", "keyword", "entity", "temporal", "hybrid":
	default:
		return fmt.Errorf("%w: recall.default_strategy %q is not one of auto/keyword/entity/temporal/hybrid", ErrConfig, c.Recall.DefaultStrategy)
	}
	if c.Recall.DeadlineMS < 0 {
		return fmt.Errorf("%w: recall.deadline_ms must be >= 0, got %d", ErrConfig, c.Recall.DeadlineMS)
	}
	for name, w := range map[string]float64{
		"recall.weights.keyword":    c.Recall.KeywordWeight,
		"recall.weights.entity":     c.Recall.EntityWeight,
		"recall.weights.temporal":   c.Recall.TemporalWeight,
		"recall.importance_weight": c.Recall.ImportanceWeight,
		"recall.freshness_weight":  c.Recall.FreshnessWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrConfig, name, w)
		}
	}

	if c.Storage.MaxSizeMB < 0 {
		return fmt.Errorf("%w: storage.max_size_mb must be >= 0, got %d", ErrConfig, c.Storage.MaxSizeMB)
	}

	if c.Async.QueueCapacity < 1 {
		return fmt.Errorf("%w: async.queue_capacity must be >= 1, got %d", ErrConfig, c.Async.QueueCapacity)
	}
	if c.Async.Workers < 1 {
		return fmt.Errorf("%w: async.workers must be >= 1, got %d", ErrConfig, c.Async.Workers)
	}
	if c.Async.DrainDeadlineMS < 0 {
		return fmt.Errorf("%w: async.drain_deadline_ms must be >= 0, got %d", ErrConfig, c.Async.DrainDeadlineMS)
	}

	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("%w: cache.ttl_s must be >= 0, got %d", ErrConfig, c.Cache.TTLSeconds)
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("%w: cache.capacity must be >= 0, got %d", ErrConfig, c.Cache.Capacity)
	}

	return nil
}
