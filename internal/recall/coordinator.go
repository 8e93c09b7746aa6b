package recall

import (
	"context"
	"log"
	"math"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuzumemory/kuzu-memory/internal/storage"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// StrategyName selects which Strategy set the Coordinator runs.
type StrategyName string

const (
	StrategyAuto     StrategyName = "auto"
	StrategyKeyword  StrategyName = "keyword"
	StrategyEntity   StrategyName = "entity"
	StrategyTemporal StrategyName = "temporal"
	StrategyHybrid   StrategyName = "hybrid"
)

// Weights configures the merged-score formula (spec §4.5 step 3).
type Weights struct {
	Keyword    float64
	Entity     float64
	Temporal   float64
	Importance float64
	Freshness  float64
}

// DefaultWeights matches the spec's defaults.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.5, Entity: 0.3, Temporal: 0.2, Importance: 0.15, Freshness: 0.10}
}

// Request bundles the Coordinator's inputs.
type Request struct {
	Query       string
	MaxMemories int
	Strategy    StrategyName
	Filters     storage.Filters
	Deadline    time.Duration
}

// Coordinator selects strategies, fans them out in parallel under a
// deadline, and merges the results into a single ranked list.
type Coordinator struct {
	strategies map[StrategyName]Strategy
	weights    Weights
	freshness  time.Duration // half-life for the freshness term
}

// NewCoordinator wires the four built-in strategies against store.
func NewCoordinator(store storage.MemoryStore) *Coordinator {
	return &Coordinator{
		strategies: map[StrategyName]Strategy{
			StrategyKeyword:  NewKeywordStrategy(store),
			StrategyEntity:   NewEntityStrategy(store),
			StrategyTemporal: NewTemporalStrategy(store),
			StrategyHybrid:   NewHybridStrategy(store),
		},
		weights:   DefaultWeights(),
		freshness: 72 * time.Hour,
	}
}

// WithWeights overrides the default merge weights.
func (c *Coordinator) WithWeights(w Weights) *Coordinator {
	c.weights = w
	return c
}

var timePhraseRe = regexp.MustCompile(`(?i)\b(?:yesterday|today|last week|last month|this morning)\b`)

// selectStrategies implements spec §4.5 step 1 (auto strategy selection).
func (c *Coordinator) selectStrategies(req Request) []StrategyName {
	if req.Strategy != "" && req.Strategy != StrategyAuto {
		return []StrategyName{req.Strategy}
	}
	if timePhraseRe.MatchString(req.Query) {
		return []StrategyName{StrategyTemporal, StrategyHybrid}
	}
	return []StrategyName{StrategyHybrid}
}

// Recall runs req against the wired strategies and returns a ranked,
// deduplicated list of memories plus whether the deadline forced a partial
// result (spec §4.5).
func (c *Coordinator) Recall(ctx context.Context, req Request) ([]types.RankedMemory, bool, error) {
	if req.MaxMemories <= 0 {
		req.MaxMemories = 10
	}
	deadline := req.Deadline
	if deadline <= 0 {
		deadline = 100 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	names := c.selectStrategies(req)
	fetchMax := req.MaxMemories * 3

	type strategyResult struct {
		name    StrategyName
		results []storage.Scored
	}
	resultsCh := make(chan strategyResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		strat, ok := c.strategies[name]
		if !ok {
			continue
		}
		g.Go(func() error {
			scored, err := strat.Search(gctx, req.Query, fetchMax, req.Filters)
			if err != nil {
				// A single strategy failing never fails the whole recall;
				// it is logged and contributes nothing.
				log.Printf("recall: strategy %s failed: %v", name, err)
				resultsCh <- strategyResult{name: name}
				return nil
			}
			resultsCh <- strategyResult{name: name, results: scored}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	degraded := false
	received := 0
	collected := make(map[StrategyName][]storage.Scored, len(names))

waitLoop:
	for received < len(names) {
		select {
		case r := <-resultsCh:
			collected[r.name] = r.results
			received++
		case <-ctx.Done():
			degraded = true
			break waitLoop
		case <-done:
			// All goroutines finished; drain anything already buffered.
			for received < len(names) {
				select {
				case r := <-resultsCh:
					collected[r.name] = r.results
					received++
				default:
					break waitLoop
				}
			}
			break waitLoop
		}
	}

	merged := c.merge(collected)

	if len(merged) > req.MaxMemories {
		merged = merged[:req.MaxMemories]
	}
	return merged, degraded, nil
}

// merge implements spec §4.5 step 3-5: per-memory weighted score, tiebreak by
// created_at desc, min-max normalization per strategy. The importance and
// freshness terms are memory-level (not strategy-level), so they are added
// exactly once per memory regardless of how many strategies surfaced it.
func (c *Coordinator) merge(collected map[StrategyName][]storage.Scored) []types.RankedMemory {
	type acc struct {
		memory      *types.Memory
		strategySum float64
		strategies  []string
	}
	byID := make(map[string]*acc)

	for name, results := range collected {
		if len(results) == 0 {
			continue
		}
		weight := c.weightFor(name)
		minScore, maxScore := minMax(results)

		for _, r := range results {
			normalized := normalize(r.Score, minScore, maxScore)

			a, ok := byID[r.Memory.ID]
			if !ok {
				byID[r.Memory.ID] = &acc{memory: r.Memory, strategySum: weight * normalized, strategies: []string{string(name)}}
				continue
			}
			a.strategySum += weight * normalized
			a.strategies = append(a.strategies, string(name))
		}
	}

	now := time.Now()
	out := make([]types.RankedMemory, 0, len(byID))
	for _, a := range byID {
		freshness := c.freshnessScore(a.memory.ValidFrom, now)
		score := a.strategySum + c.weights.Importance*a.memory.Importance + c.weights.Freshness*freshness
		out = append(out, types.RankedMemory{
			Memory:     a.memory,
			Score:      score,
			Strategies: a.strategies,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Memory.CreatedAt.After(out[j].Memory.CreatedAt)
	})
	return out
}

func (c *Coordinator) weightFor(name StrategyName) float64 {
	switch name {
	case StrategyKeyword:
		return c.weights.Keyword
	case StrategyEntity:
		return c.weights.Entity
	case StrategyTemporal:
		return c.weights.Temporal
	case StrategyHybrid:
		// Hybrid already blends keyword+entity; weight it as the stronger
		// of the two so it dominates when selected alone.
		return c.weights.Keyword
	default:
		return 0
	}
}

func (c *Coordinator) freshnessScore(validFrom, now time.Time) float64 {
	if validFrom.IsZero() {
		return 0
	}
	age := now.Sub(validFrom)
	if age < 0 {
		age = 0
	}
	lambda := math.Ln2 / c.freshness.Seconds()
	return math.Exp(-lambda * age.Seconds())
}

func minMax(results []storage.Scored) (float64, float64) {
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

func normalize(score, min, max float64) float64 {
	if max == min {
		return 1
	}
	return (score - min) / (max - min)
}
