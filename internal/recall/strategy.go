// Package recall implements the multi-strategy search layer: four Strategy
// implementations over storage.MemoryStore, and a Coordinator that fans them
// out in parallel under a deadline and merges their results into a single
// ranked list.
package recall

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/kuzumemory/kuzu-memory/internal/extract"
	"github.com/kuzumemory/kuzu-memory/internal/storage"
)

// Strategy produces scored candidates for query against the store. A
// Strategy must never error on empty input; it returns zero results
// instead.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string, max int, filters storage.Filters) ([]storage.Scored, error)
}

// stopwords are excluded from keyword tokenization.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "for": true, "with": true, "and": true, "or": true,
	"but": true, "this": true, "that": true, "it": true, "i": true, "me": true,
	"my": true, "do": true, "does": true, "did": true, "what": true, "how": true,
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9']+`)

func tokenize(query string) []string {
	var tokens []string
	for _, w := range wordRe.FindAllString(strings.ToLower(query), -1) {
		if !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// KeywordStrategy tokenizes the query and delegates to SearchByKeywords.
type KeywordStrategy struct {
	store storage.MemoryStore
}

func NewKeywordStrategy(store storage.MemoryStore) *KeywordStrategy {
	return &KeywordStrategy{store: store}
}

func (s *KeywordStrategy) Name() string { return "keyword" }

func (s *KeywordStrategy) Search(ctx context.Context, query string, max int, filters storage.Filters) ([]storage.Scored, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	return s.store.SearchByKeywords(ctx, tokens, max, filters)
}

// EntityStrategy runs the same entity extractor the Extractor uses on the
// query text, then delegates to SearchByEntities.
type EntityStrategy struct {
	store storage.MemoryStore
}

func NewEntityStrategy(store storage.MemoryStore) *EntityStrategy {
	return &EntityStrategy{store: store}
}

func (s *EntityStrategy) Name() string { return "entity" }

func (s *EntityStrategy) Search(ctx context.Context, query string, max int, filters storage.Filters) ([]storage.Scored, error) {
	names := extract.ExtractEntityNames(query)
	if len(names) == 0 {
		return nil, nil
	}
	return s.store.SearchByEntities(ctx, names, max, filters)
}

// TemporalStrategy derives a time window from phrases in the query (falling
// back to the last 7 days) and delegates to SearchByTime.
type TemporalStrategy struct {
	store storage.MemoryStore
	now   func() time.Time
}

func NewTemporalStrategy(store storage.MemoryStore) *TemporalStrategy {
	return &TemporalStrategy{store: store, now: time.Now}
}

func (s *TemporalStrategy) Name() string { return "temporal" }

func (s *TemporalStrategy) Search(ctx context.Context, query string, max int, filters storage.Filters) ([]storage.Scored, error) {
	window := deriveTimeWindow(query, s.now())
	return s.store.SearchByTime(ctx, window, max, filters)
}

var (
	yesterdayRe = regexp.MustCompile(`(?i)\byesterday\b`)
	todayRe     = regexp.MustCompile(`(?i)\btoday\b`)
	lastWeekRe  = regexp.MustCompile(`(?i)\blast week\b`)
	lastMonthRe = regexp.MustCompile(`(?i)\blast month\b`)
)

// deriveTimeWindow implements spec §4.4's Temporal strategy phrase table,
// defaulting to the last 7 days when no phrase matches.
func deriveTimeWindow(query string, now time.Time) storage.TimeWindow {
	switch {
	case yesterdayRe.MatchString(query):
		start := now.AddDate(0, 0, -1)
		return storage.TimeWindow{From: dayStart(start), To: dayStart(now)}
	case todayRe.MatchString(query):
		return storage.TimeWindow{From: dayStart(now), To: now}
	case lastWeekRe.MatchString(query):
		return storage.TimeWindow{From: now.AddDate(0, 0, -14), To: now.AddDate(0, 0, -7)}
	case lastMonthRe.MatchString(query):
		return storage.TimeWindow{From: now.AddDate(0, -2, 0), To: now.AddDate(0, -1, 0)}
	default:
		return storage.TimeWindow{From: now.AddDate(0, 0, -7), To: now}
	}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// HybridStrategy combines Keyword and Entity results, taking the max score
// per memory when both strategies surface it.
type HybridStrategy struct {
	keyword *KeywordStrategy
	entity  *EntityStrategy
}

func NewHybridStrategy(store storage.MemoryStore) *HybridStrategy {
	return &HybridStrategy{
		keyword: NewKeywordStrategy(store),
		entity:  NewEntityStrategy(store),
	}
}

func (s *HybridStrategy) Name() string { return "hybrid" }

func (s *HybridStrategy) Search(ctx context.Context, query string, max int, filters storage.Filters) ([]storage.Scored, error) {
	kw, err := s.keyword.Search(ctx, query, max, filters)
	if err != nil {
		return nil, err
	}
	ent, err := s.entity.Search(ctx, query, max, filters)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]storage.Scored, len(kw)+len(ent))
	for _, r := range kw {
		byID[r.Memory.ID] = r
	}
	for _, r := range ent {
		if existing, ok := byID[r.Memory.ID]; !ok || r.Score > existing.Score {
			byID[r.Memory.ID] = r
		}
	}

	out := make([]storage.Scored, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	if len(out) > max && max > 0 {
		out = out[:max]
	}
	return out, nil
}
