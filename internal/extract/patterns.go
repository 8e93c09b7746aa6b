package extract

import (
	"regexp"
	"strings"

	"github.com/kuzumemory/kuzu-memory/internal/classify"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// sentenceBoundary splits on terminal punctuation followed by whitespace and
// a capital letter, plus newlines — a pragmatic approximation, not a full
// sentence tokenizer.
var sentenceBoundary = regexp.MustCompile(`(?:[.!?]\s+(?:[A-Z])|\n+)`)

func segmentSentences(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var spans []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(content, -1) {
		// Keep the boundary's trailing capital letter (consumed by the
		// pattern) attached to the next span rather than the current one.
		cut := loc[1] - 1
		spans = append(spans, strings.TrimSpace(content[last:cut]))
		last = cut
	}
	spans = append(spans, strings.TrimSpace(content[last:]))

	out := spans[:0]
	for _, s := range spans {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// pattern is one entry in the priority-ordered catalog. memoryType ties it
// to a cognitive type; confidence is the rule's self-declared confidence
// (spec §4.3 step 5).
type pattern struct {
	memoryType types.MemoryType
	confidence float64
	re         *regexp.Regexp
}

// catalog is ordered PREFERENCE > PROCEDURAL > EPISODIC > SEMANTIC > WORKING
// > SENSORY, matching types.MemoryTypePriority: the first pattern (across
// all types, in this order) that matches a span wins.
var catalog = buildCatalog()

func buildCatalog() []pattern {
	var c []pattern
	add := func(t types.MemoryType, confidence float64, exprs ...string) {
		for _, expr := range exprs {
			c = append(c, pattern{memoryType: t, confidence: confidence, re: regexp.MustCompile(expr)})
		}
	}

	add(types.MemoryTypePreference, 0.85,
		`(?i)\bI (?:always |never |usually |really )?(?:prefer|like|love|hate|dislike|want)\b`,
		`(?i)\b(?:please )?always (?:use|do|write|format)\b`,
		`(?i)\bmy favorite\b`,
	)
	add(types.MemoryTypeProcedural, 0.8,
		`(?i)\bto (?:deploy|build|run|release|set up)\b.*\b(?:you|we|first|then)\b`,
		`(?i)^(?:step \d+|first|then|next|finally)[,:]`,
		`(?i)\bthe (?:process|procedure|steps?) (?:is|are|to)\b`,
	)
	add(types.MemoryTypeEpisodic, 0.7,
		`(?i)\b(?:yesterday|today|last (?:week|month|night)|on \w+day)\b`,
		`(?i)\bwe (?:decided|agreed|discussed|met|shipped|launched|chose|selected|picked|went with)\b`,
		`(?i)\bI (?:fixed|found|discovered|noticed)\b`,
	)
	add(types.MemoryTypeSemantic, 0.75,
		`(?i)\bis (?:a|an|the)\b`,
		`(?i)\b(?:defined as|means|refers to)\b`,
		`(?i)\b(?:runs on|written in|built with|uses)\b`,
		`(?i)\bmy name is\b`,
		`(?i)\bI work (?:at|for|as)\b`,
	)
	add(types.MemoryTypeWorking, 0.55,
		`(?i)\bright now\b`,
		`(?i)\bcurrently (?:working on|debugging|looking at)\b`,
		`(?i)\bfor this session\b`,
	)
	add(types.MemoryTypeSensory, 0.5,
		`(?i)\b(?:the (?:screen|log|output|terminal) shows)\b`,
		`(?i)\b(?:saw|heard|noticed) (?:a|an|the)\b`,
	)
	return c
}

var (
	strongOpinionRe      = regexp.MustCompile(`(?i)\b(?:always|never|must|should always|should never)\b`)
	numericSpecificityRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// matchPattern returns the highest-priority catalog entry matching span, or
// false if nothing matches.
func matchPattern(span string) (classify.MatchSignal, bool) {
	for _, p := range catalog {
		if p.re.MatchString(span) {
			return classify.MatchSignal{
				MemoryType:         p.memoryType,
				BaseConfidence:     p.confidence,
				StrongOpinion:      strongOpinionRe.MatchString(span),
				NumericSpecificity: numericSpecificityRe.MatchString(span),
			}, true
		}
	}
	return classify.MatchSignal{}, false
}
