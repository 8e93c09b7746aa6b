package extract

import (
	"regexp"
	"strings"
)

// capitalizedTokenRe catches a run of capitalized words (proper-noun
// candidates) and standalone all-caps acronyms (2-6 letters).
var capitalizedTokenRe = regexp.MustCompile(`\b(?:[A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)*|[A-Z]{2,6})\b`)

// domainVocabulary lists common lowercase technology/framework names that
// would otherwise be missed by the capitalization heuristic.
var domainVocabulary = map[string]bool{
	"golang": true, "python": true, "rust": true, "typescript": true,
	"javascript": true, "kubernetes": true, "docker": true, "postgres": true,
	"sqlite": true, "redis": true, "grpc": true, "graphql": true,
	"react": true, "vue": true, "terraform": true, "linux": true,
}

// sentenceLeadWords are dropped when they appear as the first token of a
// span, since a leading capital is just sentence casing, not a proper noun.
var sentenceLeadWords = map[string]bool{
	"i": true, "the": true, "a": true, "an": true, "this": true, "that": true,
	"we": true, "you": true, "it": true, "my": true, "our": true,
}

// ExtractEntityNames runs the same entity-extraction heuristics used inside
// Extract on an arbitrary string. The Entity recall strategy calls this on
// the caller's query text, per spec's "run the same entity extractor on the
// query" rule.
func ExtractEntityNames(text string) []string {
	return extractEntities(text)
}

// extractEntities returns case-folded, deduplicated entity names mentioned
// in span. Only the folded form is returned, so the original surface form
// is not kept: the store records the folded name as the Entity's surface.
func extractEntities(span string) []string {
	seen := make(map[string]bool)
	var names []string

	words := strings.Fields(span)
	for _, tok := range words {
		lower := strings.ToLower(strings.Trim(tok, ".,!?;:()\"'"))
		if domainVocabulary[lower] && !seen[lower] {
			seen[lower] = true
			names = append(names, lower)
		}
	}

	for _, m := range capitalizedTokenRe.FindAllString(span, -1) {
		folded := strings.ToLower(m)
		if seen[folded] {
			continue
		}
		if len(m) < 2 {
			continue
		}
		if !strings.Contains(m, " ") && sentenceLeadWords[folded] {
			continue
		}
		seen[folded] = true
		names = append(names, folded)
	}

	return names
}
