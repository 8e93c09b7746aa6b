package recall_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuzumemory/kuzu-memory/internal/recall"
	"github.com/kuzumemory/kuzu-memory/internal/storage"
	"github.com/kuzumemory/kuzu-memory/internal/storage/sqlitegraph"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

func newTestStore(t *testing.T) *sqlitegraph.MemoryStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	store, err := sqlitegraph.NewMemoryStore(path, sqlitegraph.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKeywordStrategy_EmptyQueryReturnsNoResults(t *testing.T) {
	store := newTestStore(t)
	strat := recall.NewKeywordStrategy(store)
	results, err := strat.Search(context.Background(), "", 10, storage.Filters{})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestKeywordStrategy_FindsMatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Put(ctx, &types.Memory{
		Content: "the deploy pipeline uses docker and kubernetes", MemoryType: types.MemoryTypeSemantic, Importance: 1,
	}, nil)
	require.NoError(t, err)

	strat := recall.NewKeywordStrategy(store)
	results, err := strat.Search(ctx, "kubernetes deploy", 10, storage.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestEntityStrategy_FindsMatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Put(ctx, &types.Memory{
		Content: "alice owns the payments service", MemoryType: types.MemoryTypeSemantic, Importance: 1,
	}, []string{"alice"})
	require.NoError(t, err)

	strat := recall.NewEntityStrategy(store)
	results, err := strat.Search(ctx, "what does Alice own", 10, storage.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestTemporalStrategy_DefaultsToLastSevenDays(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Put(ctx, &types.Memory{
		Content: "standup notes", MemoryType: types.MemoryTypeEpisodic, Importance: 0.7,
	}, nil)
	require.NoError(t, err)

	strat := recall.NewTemporalStrategy(store)
	results, err := strat.Search(ctx, "what happened", 10, storage.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestHybridStrategy_DedupesAcrossKeywordAndEntity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Put(ctx, &types.Memory{
		Content: "alice deployed the kubernetes cluster", MemoryType: types.MemoryTypeEpisodic, Importance: 0.7,
	}, []string{"alice"})
	require.NoError(t, err)

	strat := recall.NewHybridStrategy(store)
	results, err := strat.Search(ctx, "alice kubernetes", 10, storage.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestCoordinator_RecallRanksAndTruncates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Put(ctx, &types.Memory{
		Content: "the release process uses golang tooling", MemoryType: types.MemoryTypeProcedural, Importance: 0.9,
	}, nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, &types.Memory{
		Content: "the release process uses golang tooling and docker", MemoryType: types.MemoryTypeProcedural, Importance: 0.9,
	}, nil)
	require.NoError(t, err)

	coord := recall.NewCoordinator(store)
	ranked, degraded, err := coord.Recall(ctx, recall.Request{
		Query:       "golang release process",
		MaxMemories: 1,
		Strategy:    recall.StrategyKeyword,
	})
	require.NoError(t, err)
	require.False(t, degraded)
	require.Len(t, ranked, 1)
}

func TestCoordinator_EmptyQueryNeverErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	coord := recall.NewCoordinator(store)
	ranked, _, err := coord.Recall(ctx, recall.Request{Query: "", MaxMemories: 5})
	require.NoError(t, err)
	require.Empty(t, ranked)
}
