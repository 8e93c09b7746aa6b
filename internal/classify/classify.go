// Package classify assigns an importance and confidence score to a span the
// Extractor has already typed. It is pluggable: RuleClassifier is the
// default; NLPClassifier is an optional stub that satisfies the same
// interface without invoking any network model.
package classify

import (
	"context"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// MatchSignal carries what the Extractor's pattern match already knows about
// a span, so the Classifier can adjust importance without re-parsing it.
type MatchSignal struct {
	MemoryType types.MemoryType
	// BaseConfidence is the confidence the matching rule declares for itself.
	BaseConfidence float64
	// StrongOpinion marks spans with emphatic preference/decision language
	// ("always", "never", "must").
	StrongOpinion bool
	// NumericSpecificity marks spans that name a concrete number, version,
	// or quantity.
	NumericSpecificity bool
}

// Classifier assigns importance and confidence for a matched span.
type Classifier interface {
	Classify(ctx context.Context, span string, signal MatchSignal) (importance, confidence float64)
}

var _ Classifier = (*RuleClassifier)(nil)

// RuleClassifier is the default Classifier: importance starts at the type's
// default and is nudged by up to ±0.1 by the signals already observed during
// pattern matching, then clamped to [0,1].
type RuleClassifier struct {
	adjustment float64
}

// NewRuleClassifier returns a RuleClassifier using the standard ±0.1 nudge.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{adjustment: 0.1}
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(_ context.Context, _ string, signal MatchSignal) (float64, float64) {
	importance := types.DefaultImportance(signal.MemoryType)

	var delta float64
	if signal.StrongOpinion {
		delta += c.adjustment / 2
	}
	if signal.NumericSpecificity {
		delta += c.adjustment / 2
	}
	importance = types.Clamp01(importance + delta)

	confidence := signal.BaseConfidence
	if confidence == 0 {
		confidence = 0.6
	}
	return importance, types.Clamp01(confidence)
}

var _ Classifier = (*NLPClassifier)(nil)

// NLPClassifier is a stub satisfying Classifier without invoking any model:
// it defers entirely to an embedded RuleClassifier. It exists so the engine
// can be wired to a future NLP-backed implementation behind the same
// interface (gated by config's Extraction.EnableNLPClassification) without
// the core ever depending on a model provider.
type NLPClassifier struct {
	fallback Classifier
}

// NewNLPClassifier wraps fallback (a RuleClassifier if nil) until a real
// implementation is supplied.
func NewNLPClassifier(fallback Classifier) *NLPClassifier {
	if fallback == nil {
		fallback = NewRuleClassifier()
	}
	return &NLPClassifier{fallback: fallback}
}

// Classify implements Classifier by delegating to the fallback.
func (c *NLPClassifier) Classify(ctx context.Context, span string, signal MatchSignal) (float64, float64) {
	return c.fallback.Classify(ctx, span, signal)
}
