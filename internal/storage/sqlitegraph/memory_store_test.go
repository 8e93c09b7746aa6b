package sqlitegraph_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestMemoryStore_PutDedup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m1 := &types.Memory{
		Content:    "the user prefers dark mode",
		MemoryType: types.MemoryTypePreference,
		Importance: types.DefaultImportance(types.MemoryTypePreference),
		Confidence: 0.9,
	}
	result, err := store.Put(ctx, m1, []string{"dark mode"})
	require.NoError(t, err)
	require.Equal(t, storage.PutInserted, result)

	m2 := &types.Memory{
		Content:    "The User Prefers Dark Mode",
		MemoryType: types.MemoryTypePreference,
		Importance: types.DefaultImportance(types.MemoryTypePreference),
		Confidence: 0.9,
	}
	result, err = store.Put(ctx, m2, nil)
	require.NoError(t, err)
	require.Equal(t, storage.PutDuplicate, result)
	require.Equal(t, m1.ID, m2.ID)
}

func TestMemoryStore_GetRecentExcludesExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	alive := &types.Memory{Content: "alive memory", MemoryType: types.MemoryTypeSemantic, Importance: 1}
	_, err := store.Put(ctx, alive, nil)
	require.NoError(t, err)

	expired := &types.Memory{
		Content:    "expired memory",
		MemoryType: types.MemoryTypeWorking,
		Importance: 0.5,
		ValidTo:    time.Now().Add(-time.Hour),
	}
	_, err = store.Put(ctx, expired, nil)
	require.NoError(t, err)

	recent, err := store.GetRecent(ctx, 10, storage.Filters{})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "alive memory", recent[0].Content)
}

func TestMemoryStore_SearchByKeywords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, &types.Memory{
		Content: "the project uses golang and sqlite for storage", MemoryType: types.MemoryTypeSemantic, Importance: 1,
	}, nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, &types.Memory{
		Content: "the cafeteria serves pizza on fridays", MemoryType: types.MemoryTypeEpisodic, Importance: 0.7,
	}, nil)
	require.NoError(t, err)

	results, err := store.SearchByKeywords(ctx, []string{"golang", "sqlite"}, 10, storage.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Memory.Content, "golang")
}

func TestMemoryStore_SearchByEntities(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, &types.Memory{
		Content: "alice leads the payments team", MemoryType: types.MemoryTypeSemantic, Importance: 1,
	}, []string{"alice", "payments team"})
	require.NoError(t, err)
	_, err = store.Put(ctx, &types.Memory{
		Content: "bob is on vacation", MemoryType: types.MemoryTypeEpisodic, Importance: 0.7,
	}, []string{"bob"})
	require.NoError(t, err)

	results, err := store.SearchByEntities(ctx, []string{"alice"}, 10, storage.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Memory.Content, "alice")
}

func TestMemoryStore_ExpireAndPrune(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, &types.Memory{
		Content:    "stale working memory",
		MemoryType: types.MemoryTypeWorking,
		Importance: 0.5,
		ValidTo:    time.Now().Add(-time.Minute),
	}, []string{"stale-entity"})
	require.NoError(t, err)

	n, err := store.Expire(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	count, err := store.Count(ctx, storage.Filters{})
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// Expire reconciles entity_mentions (and orphaned entities) in the same
	// transaction as the memory delete, so nothing is left for Prune to find.
	report, err := store.Prune(ctx, storage.PruneSafe)
	require.NoError(t, err)
	require.Equal(t, 0, report.EntitiesRemoved)
}

func TestMemoryStore_ExpireReconcilesEntityMentionsImmediately(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, &types.Memory{
		Content:    "stale working memory",
		MemoryType: types.MemoryTypeWorking,
		Importance: 0.5,
		ValidTo:    time.Now().Add(-time.Minute),
	}, []string{"stale-entity"})
	require.NoError(t, err)

	n, err := store.Expire(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	results, err := store.SearchByEntities(ctx, []string{"stale-entity"}, 10, storage.Filters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_NeverExpiresSurvivesGetRecent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, &types.Memory{
		Content:    "permanent fact",
		MemoryType: types.MemoryTypeSemantic,
		Importance: 1,
		ValidTo:    types.NeverExpires,
	}, nil)
	require.NoError(t, err)

	recent, err := store.GetRecent(ctx, 10, storage.Filters{})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.True(t, recent[0].ValidTo.IsZero())
}
