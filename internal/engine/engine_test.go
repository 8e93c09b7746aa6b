package engine_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzumemory/kuzu-memory/internal/compose"
	"github.com/kuzumemory/kuzu-memory/internal/config"
	"github.com/kuzumemory/kuzu-memory/internal/engine"
	"github.com/kuzumemory/kuzu-memory/internal/storage"
	"github.com/kuzumemory/kuzu-memory/internal/storage/sqlitegraph"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	store, err := sqlitegraph.NewMemoryStore(path, sqlitegraph.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e, err := engine.New(store, config.Default())
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(time.Second) })
	return e
}

func TestEngine_RememberThenAttachMemories(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	ids, err := e.Remember(ctx, "My name is Alice and I work at TechCorp.", "cli", "", "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	result, err := e.AttachMemories(ctx, "What is my name?", 5, "auto", storage.Filters{}, compose.FormatPlain)
	require.NoError(t, err)
	assert.Contains(t, result.EnhancedPrompt, "What is my name?")
	require.NotEmpty(t, result.Memories)
	assert.Contains(t, result.Memories[0].Memory.Content, "Alice")
	assert.Equal(t, types.MemoryTypeSemantic, result.Memories[0].Memory.MemoryType)
	assert.True(t, strings.HasPrefix(result.EnhancedPrompt, result.Memories[0].Memory.Content))
}

func TestEngine_RememberDedupesMatchingContent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Remember(ctx, "I prefer dark mode.", "cli", "", "", nil)
	require.NoError(t, err)

	statsBefore, err := e.Stats(ctx)
	require.NoError(t, err)

	_, err = e.Remember(ctx, "  I prefer dark mode.  ", "cli", "", "", nil)
	require.NoError(t, err)

	statsAfter, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, statsBefore.Store.MemoryCount, statsAfter.Store.MemoryCount)
}

func TestEngine_AttachMemoriesOnEmptyStoreReturnsPromptUnchanged(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.AttachMemories(context.Background(), "what happened yesterday?", 5, "", storage.Filters{}, compose.FormatPlain)
	require.NoError(t, err)
	assert.Equal(t, "what happened yesterday?", result.EnhancedPrompt)
	assert.Empty(t, result.Memories)
}

func TestEngine_RememberRejectsEmptyContent(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Remember(context.Background(), "", "cli", "", "", nil)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestEngine_LearnEventuallyPersists(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	taskID, err := e.Learn("We decided to ship the release on Friday.", "cli", "", "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		recent, err := e.Recent(ctx, 10, storage.Filters{})
		return err == nil && len(recent) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_ExpireIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	n1, err := e.Expire(ctx)
	require.NoError(t, err)
	n2, err := e.Expire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n1)
	assert.Equal(t, 0, n2)
}

func TestEngine_AutoCompactLoopStopsOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	store, err := sqlitegraph.NewMemoryStore(path, sqlitegraph.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.Storage.AutoCompact = true
	cfg.Storage.MaxSizeMB = 1

	e, err := engine.New(store, cfg)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	// Shutdown must cancel and join the background compaction loop within
	// the drain deadline, not hang waiting on its 5-minute tick.
	done := make(chan error, 1)
	go func() { done <- e.Shutdown(time.Second) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return, compaction loop likely leaked")
	}
}

func TestNew_RejectsNilStore(t *testing.T) {
	_, err := engine.New(nil, config.Default())
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Recall.MaxMemories = 0
	path := filepath.Join(t.TempDir(), "memory.db")
	store, err := sqlitegraph.NewMemoryStore(path, sqlitegraph.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = engine.New(store, cfg)
	assert.ErrorIs(t, err, config.ErrConfig)
}
