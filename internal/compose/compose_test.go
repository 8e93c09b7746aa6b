package compose_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzumemory/kuzu-memory/internal/compose"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

func sampleMemories(n int) []types.RankedMemory {
	out := make([]types.RankedMemory, n)
	for i := range out {
		out[i] = types.RankedMemory{
			Memory: &types.Memory{ID: "id", Content: "a fact worth remembering", MemoryType: types.MemoryTypeSemantic},
			Score:  1.0,
		}
	}
	return out
}

func TestComposer_PlainEmptyMemoriesReturnsPromptUnchanged(t *testing.T) {
	c := compose.New(compose.FormatPlain)
	ctx := c.Compose("hello there", nil, 5)
	assert.Equal(t, "hello there", ctx.EnhancedPrompt)
}

func TestComposer_PlainHasNoMarkup(t *testing.T) {
	c := compose.New(compose.FormatPlain)
	ctx := c.Compose("hello there", sampleMemories(2), 5)
	assert.True(t, strings.HasPrefix(ctx.EnhancedPrompt, "a fact worth remembering"))
	assert.NotContains(t, ctx.EnhancedPrompt, "- a fact")
}

func TestComposer_ContextAddsDelimitedSection(t *testing.T) {
	c := compose.New(compose.FormatContext)
	ctx := c.Compose("hello there", sampleMemories(1), 5)
	assert.Contains(t, ctx.EnhancedPrompt, "Relevant context")
	assert.Contains(t, ctx.EnhancedPrompt, "hello there")
}

func TestComposer_JSONFormatIsValidJSON(t *testing.T) {
	c := compose.New(compose.FormatJSON)
	ctx := c.Compose("hello there", sampleMemories(2), 7)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(ctx.EnhancedPrompt), &decoded))
	assert.Equal(t, "hello there", decoded["prompt"])
	assert.Equal(t, float64(7), decoded["took_ms"])
	assert.Len(t, decoded["memories"], 2)
}

func TestComposer_RespectsCharBudget(t *testing.T) {
	c := compose.New(compose.FormatPlain)
	c.CharBudget = 40
	ctx := c.Compose("hello there", sampleMemories(10), 1)
	assert.LessOrEqual(t, len(ctx.EnhancedPrompt), 40)
	assert.Contains(t, ctx.EnhancedPrompt, "hello there")
}

func TestComposer_MaxLinesCapsMemoriesIndependentOfBudget(t *testing.T) {
	c := compose.New(compose.FormatPlain)
	c.MaxLines = 2
	ctx := c.Compose("hello there", sampleMemories(10), 1)
	assert.Len(t, ctx.Memories, 2)
}
