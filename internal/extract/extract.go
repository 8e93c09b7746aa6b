// Package extract turns raw text into candidate memory drafts: sentence-ish
// spans classified into a cognitive type, plus the entity names each span
// mentions. Nothing here invokes a model; classification is pattern-based.
package extract

import (
	"context"
	"time"

	"github.com/kuzumemory/kuzu-memory/internal/classify"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// Draft is a candidate Memory before it has an ID, timestamps, or a
// confirmed home in the store.
type Draft struct {
	Content     string
	MemoryType  types.MemoryType
	Importance  float64
	Confidence  float64
	EntityNames []string
}

// Extractor segments text and classifies each span into a Draft.
type Extractor interface {
	Extract(ctx context.Context, content string, source string) ([]Draft, error)
}

var _ Extractor = (*RuleExtractor)(nil)

// RuleExtractor is the default Extractor: sentence segmentation, a
// priority-ordered pattern catalog per cognitive type, and heuristic entity
// extraction. Its only error is the context's, when ctx is done before
// every span is processed; an input that yields no matching span simply
// produces zero drafts.
type RuleExtractor struct {
	classifier classify.Classifier
}

// NewRuleExtractor builds a RuleExtractor. A nil classifier falls back to
// classify.NewRuleClassifier().
func NewRuleExtractor(classifier classify.Classifier) *RuleExtractor {
	if classifier == nil {
		classifier = classify.NewRuleClassifier()
	}
	return &RuleExtractor{classifier: classifier}
}

// Extract implements Extractor.
func (e *RuleExtractor) Extract(ctx context.Context, content string, source string) ([]Draft, error) {
	spans := segmentSentences(content)

	drafts := make([]Draft, 0, len(spans))
	for _, span := range spans {
		select {
		case <-ctx.Done():
			return drafts, ctx.Err()
		default:
		}

		match, ok := matchPattern(span)
		if !ok {
			continue
		}

		importance, confidence := e.classifier.Classify(ctx, span, match)
		drafts = append(drafts, Draft{
			Content:     span,
			MemoryType:  match.MemoryType,
			Importance:  importance,
			Confidence:  confidence,
			EntityNames: extractEntities(span),
		})
	}
	return drafts, nil
}

// RetentionOverride resolves a configured retention window for t, if the
// caller's configuration customizes it. The second return is false to mean
// "no override, fall back to the type's built-in default."
type RetentionOverride func(t types.MemoryType) (time.Duration, bool)

// ToMemory builds a storable Memory from d, filling created_at/valid_from
// (now) and valid_to the way the Memory Store expects an already-defaulted
// record to arrive. override, if non-nil, is consulted before the type's
// built-in default retention (internal/config's RetentionConfig implements
// this so a configured TTL override actually reaches stored memories); a nil
// override or a miss falls back to types.DefaultRetention, or NeverExpires
// for a type with no default. Both the synchronous remember path and the
// async learning queue's worker share this so a memory gets the same
// retention treatment regardless of which path created it.
func (d Draft) ToMemory(source, sessionID, agentID string, metadata map[string]any, override RetentionOverride) *types.Memory {
	now := time.Now().UTC()

	validTo := types.NeverExpires
	if r, ok := resolveRetention(d.MemoryType, override); ok {
		validTo = now.Add(r)
	}

	return &types.Memory{
		Content:    d.Content,
		MemoryType: d.MemoryType,
		Importance: d.Importance,
		Confidence: d.Confidence,
		CreatedAt:  now,
		ValidFrom:  now,
		ValidTo:    validTo,
		Source:     source,
		SessionID:  sessionID,
		AgentID:    agentID,
		Metadata:   metadata,
	}
}

// resolveRetention applies override ahead of the type's built-in default. A
// negative override duration means "never expires"; ok is false only when
// neither override nor the type has anything to say (ValidTo stays
// NeverExpires).
func resolveRetention(t types.MemoryType, override RetentionOverride) (time.Duration, bool) {
	if override != nil {
		if r, ok := override(t); ok {
			return r, r >= 0
		}
	}
	return types.DefaultRetention(t)
}

// QuickGuessType returns the cognitive type the first matching catalog
// pattern would assign to content, without running a classifier or entity
// extraction. It exists for callers that need a cheap, synchronous priority
// hint (the learning queue's eviction policy) before the full asynchronous
// Extract pass runs. Content with no matching span defaults to SEMANTIC.
func QuickGuessType(content string) types.MemoryType {
	if match, ok := matchPattern(content); ok {
		return match.MemoryType
	}
	return types.MemoryTypeSemantic
}
