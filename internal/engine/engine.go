// Package engine is the facade (spec §4.8): it owns lifecycle, config, and
// cache, and exposes remember/learn/attach_memories/recent/stats/expire as
// the only entry points the rest of the system calls through.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuzumemory/kuzu-memory/internal/classify"
	"github.com/kuzumemory/kuzu-memory/internal/compose"
	"github.com/kuzumemory/kuzu-memory/internal/config"
	"github.com/kuzumemory/kuzu-memory/internal/extract"
	"github.com/kuzumemory/kuzu-memory/internal/learnqueue"
	"github.com/kuzumemory/kuzu-memory/internal/recall"
	"github.com/kuzumemory/kuzu-memory/internal/recall/cache"
	"github.com/kuzumemory/kuzu-memory/internal/storage"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// Engine is the core orchestrator. It wires a MemoryStore, an Extractor, a
// Recall Coordinator, a Cache, and an Async Learning Queue behind the
// public operations in spec §4.8, mirroring the teacher's MemoryEngine
// lifecycle shape (started/shuttingDown guarded by a RWMutex).
type Engine struct {
	cfg   config.Config
	store storage.MemoryStore

	extractor   extract.Extractor
	coordinator *recall.Coordinator
	queue       *learnqueue.Queue
	cache       *cache.Cache

	// writeLimiter throttles the synchronous write path (Remember) against
	// the store's single-writer connection, smoothing request
	// bursts into the rate the writer can actually sustain rather than
	// letting them queue up behind the writer lock.
	writeLimiter *rate.Limiter

	mu           sync.RWMutex
	started      bool
	shuttingDown bool

	onLearned func(taskID string)

	compactCancel context.CancelFunc
	compactDone   chan struct{}
}

// compactionInterval is how often Start's background loop checks
// storage.max_size_mb against the store's current size when auto_compact is
// enabled. Not spec-mandated; chosen to be frequent enough to bound
// unbounded growth without adding meaningful query load.
const compactionInterval = 5 * time.Minute

// New builds an Engine from a store and config. The config is validated
// immediately; an invalid config is a construction-time error, never a
// runtime one.
func New(store storage.MemoryStore, cfg config.Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var classifier classify.Classifier
	if cfg.Extraction.EnableNLPClassification {
		classifier = classify.NewNLPClassifier(nil)
	} else {
		classifier = classify.NewRuleClassifier()
	}
	extractor := extract.NewRuleExtractor(classifier)

	coordinator := recall.NewCoordinator(store).WithWeights(recall.Weights{
		Keyword:    cfg.Recall.KeywordWeight,
		Entity:     cfg.Recall.EntityWeight,
		Temporal:   cfg.Recall.TemporalWeight,
		Importance: cfg.Recall.ImportanceWeight,
		Freshness:  cfg.Recall.FreshnessWeight,
	})

	e := &Engine{
		cfg:          cfg,
		store:        store,
		extractor:    extractor,
		coordinator:  coordinator,
		queue: learnqueue.New(store, extractor, learnqueue.Config{
			Capacity:   cfg.Async.QueueCapacity,
			NumWorkers: cfg.Async.Workers,
			Retention:  cfg.Retention.For,
		}),
		writeLimiter: rate.NewLimiter(rate.Limit(200), 50),
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Capacity, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("engine: build cache: %w", err)
		}
		e.cache = c
	}

	return e, nil
}

// SetOnLearned registers a callback fired when a background Learn task
// finishes (successfully or not). Generalizes the teacher's
// SetOnEnrichmentComplete hook.
func (e *Engine) SetOnLearned(cb func(taskID string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLearned = cb
}

// Start launches the async learning queue's worker pool. The engine builds
// its queue without a spill path, so no spilled tasks are replayed here.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}
	if err := e.queue.Start(ctx); err != nil {
		return err
	}

	if e.cfg.Storage.AutoCompact && e.cfg.Storage.MaxSizeMB > 0 {
		compactCtx, cancel := context.WithCancel(context.Background())
		e.compactCancel = cancel
		e.compactDone = make(chan struct{})
		go e.runCompactionLoop(compactCtx)
	}

	e.started = true
	log.Println("engine: started")
	return nil
}

// runCompactionLoop periodically compares the store's on-disk size against
// storage.max_size_mb and runs a safe Prune when it's exceeded. Only started
// when storage.auto_compact is set — an operator who wants explicit control
// over compaction timing can leave it off and prune through their own
// scheduled call into the store directly.
func (e *Engine) runCompactionLoop(ctx context.Context) {
	defer close(e.compactDone)

	ticker := time.NewTicker(compactionInterval)
	defer ticker.Stop()

	limit := int64(e.cfg.Storage.MaxSizeMB) * 1024 * 1024
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := e.store.Stats(ctx)
			if err != nil {
				log.Printf("engine: auto-compact: stats: %v", err)
				continue
			}
			if stats.SizeBytes < limit {
				continue
			}
			report, err := e.store.Prune(ctx, storage.PruneSafe)
			if err != nil {
				log.Printf("engine: auto-compact: prune: %v", err)
				continue
			}
			log.Printf("engine: auto-compact: size %d exceeded %d, pruned %d memories, %d entities",
				stats.SizeBytes, limit, report.MemoriesRemoved, report.EntitiesRemoved)
			e.invalidateCache()
		}
	}
}

// Shutdown drains the learning queue and marks the engine stopped. Tasks
// that do not finish within deadline are dropped, not spilled to disk, since
// the engine's queue has no spill path.
func (e *Engine) Shutdown(deadline time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return ErrNotStarted
	}
	e.shuttingDown = true

	if e.compactCancel != nil {
		e.compactCancel()
		<-e.compactDone
		e.compactCancel = nil
		e.compactDone = nil
	}

	err := e.queue.Drain(deadline)
	e.started = false
	e.shuttingDown = false
	return err
}

func validateContent(content, source string, metadata map[string]any) error {
	if err := types.ValidateContent(content); err != nil {
		return err
	}
	if err := types.ValidateSource(source); err != nil {
		return err
	}
	return types.ValidateMetadata(metadata)
}

// Remember runs the Extractor and Memory Store inline and returns within
// the write budget (spec §5). It never enqueues background work.
func (e *Engine) Remember(ctx context.Context, content, source, sessionID, agentID string, metadata map[string]any) ([]string, error) {
	if err := validateContent(content, source, metadata); err != nil {
		return nil, err
	}
	if err := e.writeLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
	}

	drafts, err := e.extractor.Extract(ctx, content, source)
	if err != nil {
		return nil, fmt.Errorf("engine: extract: %w", err)
	}

	ids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		mem := d.ToMemory(source, sessionID, agentID, metadata, e.cfg.Retention.For)
		result, err := e.store.Put(ctx, mem, d.EntityNames)
		if err != nil {
			return ids, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if result == storage.PutInserted {
			e.invalidateCache()
		}
		ids = append(ids, mem.ID)
	}
	return ids, nil
}

// Learn is Remember's non-blocking counterpart: it validates input
// synchronously but defers extraction and storage to the Async Learning
// Queue, returning a task id immediately.
func (e *Engine) Learn(content, source, sessionID, agentID string, metadata map[string]any) (string, error) {
	if err := validateContent(content, source, metadata); err != nil {
		return "", err
	}

	taskID, err := e.queue.Enqueue(content, source, sessionID, agentID, metadata)
	if err != nil {
		return "", fmt.Errorf("%w: %v", learnqueue.ErrQueueFull, err)
	}
	e.invalidateCache()

	go e.notifyWhenDone(taskID)
	return taskID, nil
}

// notifyWhenDone polls the task's terminal status, invalidates the cache
// once the worker may have written to the store (done or failed), and fires
// onLearned. Polling (rather than a completion channel) keeps Queue's public
// surface to Enqueue/Status/Drain, matching the spec's contract.
func (e *Engine) notifyWhenDone(taskID string) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		status, ok := e.queue.Status(taskID)
		if !ok {
			return
		}
		switch status {
		case learnqueue.StatusDone, learnqueue.StatusFailed, learnqueue.StatusDropped:
			if status != learnqueue.StatusDropped {
				e.invalidateCache()
			}
			e.mu.RLock()
			cb := e.onLearned
			e.mu.RUnlock()
			if cb != nil {
				cb(taskID)
			}
			return
		}
	}
}

func (e *Engine) invalidateCache() {
	if e.cache != nil {
		e.cache.Invalidate()
	}
}

// AttachMemories runs the Recall Coordinator and Enhancement Composer for
// prompt, optionally serving (and populating) the cache. It never errors on
// no results: an empty store yields a MemoryContext with the prompt
// unchanged.
func (e *Engine) AttachMemories(ctx context.Context, prompt string, max int, strategyName string, filters storage.Filters, format compose.Format) (*types.MemoryContext, error) {
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt must not be empty", ErrInvalidInput)
	}
	if max <= 0 {
		max = e.cfg.Recall.MaxMemories
	}
	if strategyName == "" {
		strategyName = e.cfg.Recall.DefaultStrategy
	}

	key := cache.Key(prompt, max, strategyName, filterFingerprint(filters))
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached, nil
		}
	}

	start := time.Now()
	deadline := time.Duration(e.cfg.Recall.DeadlineMS) * time.Millisecond
	ranked, degraded, err := e.coordinator.Recall(ctx, recall.Request{
		Query:       prompt,
		MaxMemories: max,
		Strategy:    recall.StrategyName(strategyName),
		Filters:     filters,
		Deadline:    deadline,
	})
	if err != nil {
		// Recall failures degrade to the bare prompt rather than propagating,
		// per the facade's "foreground operations always return something
		// usable" contract.
		return &types.MemoryContext{Prompt: prompt, EnhancedPrompt: prompt, Error: err.Error()}, nil
	}

	result := compose.New(format).Compose(prompt, ranked, time.Since(start).Milliseconds())
	result.Degraded = degraded

	if e.cache != nil {
		e.cache.Put(key, result)
	}
	return result, nil
}

func filterFingerprint(f storage.Filters) string {
	if f.IsZero() {
		return ""
	}
	return fmt.Sprintf("a:%s|s:%s|src:%s|t:%s", f.AgentID, f.SessionID, f.Source, f.MemoryType)
}

// Recent returns the newest limit memories matching filters, newest first.
func (e *Engine) Recent(ctx context.Context, limit int, filters storage.Filters) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = e.cfg.Recall.MaxMemories
	}
	memories, err := e.store.GetRecent(ctx, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return memories, nil
}

// EngineStats bundles store, queue, and cache metrics for the facade's
// read-only Stats() operation.
type EngineStats struct {
	Store      storage.Stats
	QueueLen   int
	CacheLen   int
	CacheReady bool
}

// Stats reports store + queue + cache metrics.
func (e *Engine) Stats(ctx context.Context) (EngineStats, error) {
	storeStats, err := e.store.Stats(ctx)
	if err != nil {
		return EngineStats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := EngineStats{Store: storeStats, QueueLen: e.queue.Len()}
	if e.cache != nil {
		out.CacheReady = true
		out.CacheLen = e.cache.Len()
	}
	return out, nil
}

// Expire drops memories whose valid_to has passed and returns the count
// removed. Idempotent.
func (e *Engine) Expire(ctx context.Context) (int, error) {
	n, err := e.store.Expire(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		e.invalidateCache()
	}
	return n, nil
}
