// Package compose implements the Enhancement Composer (spec §4.6): it turns
// a prompt plus a ranked memory list into an enhanced prompt, respecting a
// character budget and one of three output formats.
package compose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// Format selects the composer's output shape.
type Format string

const (
	FormatPlain   Format = "plain"
	FormatContext Format = "context"
	FormatJSON    Format = "json"
)

// DefaultCharBudget bounds the enhanced prompt's total length; memories are
// truncated at the tail to fit.
const DefaultCharBudget = 4000

// DefaultMaxLines caps how many memories are rendered in plain/context
// format, independent of the character budget.
const DefaultMaxLines = 10

// Composer renders a MemoryContext from a prompt and ranked memories.
type Composer struct {
	Format     Format
	CharBudget int
	MaxLines   int
}

// New returns a Composer with the given format and spec defaults for budget
// and line count.
func New(format Format) *Composer {
	return &Composer{Format: format, CharBudget: DefaultCharBudget, MaxLines: DefaultMaxLines}
}

// jsonMemory is the per-memory shape emitted by format=json (spec §4.6).
type jsonMemory struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Type    string  `json:"memory_type"`
	Score   float64 `json:"score"`
}

type jsonEnhancement struct {
	Prompt         string       `json:"prompt"`
	EnhancedPrompt string       `json:"enhanced_prompt"`
	Memories       []jsonMemory `json:"memories"`
	TookMS         int64        `json:"took_ms"`
}

// Compose builds the MemoryContext for prompt given the ranked memories
// already selected by the Recall Coordinator.
func (c *Composer) Compose(prompt string, memories []types.RankedMemory, tookMS int64) *types.MemoryContext {
	lines := memories
	if c.MaxLines > 0 && len(lines) > c.MaxLines {
		lines = lines[:c.MaxLines]
	}

	var enhanced string
	switch c.Format {
	case FormatContext:
		enhanced = c.composeContext(prompt, lines)
	case FormatJSON:
		enhanced = c.composeJSON(prompt, lines, tookMS)
	default:
		enhanced = c.composePlain(prompt, lines)
	}

	return &types.MemoryContext{
		Prompt:         prompt,
		EnhancedPrompt: enhanced,
		Memories:       lines,
		Strategy:       string(c.Format),
		TookMS:         tookMS,
	}
}

func (c *Composer) composePlain(prompt string, memories []types.RankedMemory) string {
	if len(memories) == 0 {
		return prompt
	}

	var b strings.Builder
	for _, m := range memories {
		b.WriteString(m.Memory.Content)
		b.WriteString("\n")
	}
	b.WriteString(prompt)

	return c.truncateToBudget(b.String(), memories, prompt)
}

func (c *Composer) composeContext(prompt string, memories []types.RankedMemory) string {
	if len(memories) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n--- Relevant context ---\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Memory.MemoryType, m.Memory.Content)
	}
	b.WriteString("--- End context ---")

	return c.truncateToBudget(b.String(), memories, prompt)
}

func (c *Composer) composeJSON(prompt string, memories []types.RankedMemory, tookMS int64) string {
	out := jsonEnhancement{Prompt: prompt, TookMS: tookMS}
	for _, m := range memories {
		out.Memories = append(out.Memories, jsonMemory{
			ID:      m.Memory.ID,
			Content: m.Memory.Content,
			Type:    string(m.Memory.MemoryType),
			Score:   m.Score,
		})
	}
	out.EnhancedPrompt = c.composePlain(prompt, memories)

	encoded, err := json.Marshal(out)
	if err != nil {
		// Marshaling a plain struct of strings/floats cannot fail; fall back
		// to the plain rendering defensively rather than propagating an
		// error from what the contract declares infallible.
		return out.EnhancedPrompt
	}
	return string(encoded)
}

// truncateToBudget drops memories from the tail, one at a time, until the
// rendered text fits CharBudget. The original prompt is never truncated.
func (c *Composer) truncateToBudget(rendered string, memories []types.RankedMemory, prompt string) string {
	if c.CharBudget <= 0 || len(rendered) <= c.CharBudget {
		return rendered
	}

	for n := len(memories) - 1; n >= 0; n-- {
		var candidate string
		switch c.Format {
		case FormatContext:
			candidate = c.composeContext(prompt, memories[:n])
		default:
			candidate = c.composePlain(prompt, memories[:n])
		}
		if len(candidate) <= c.CharBudget {
			return candidate
		}
	}
	return prompt
}
