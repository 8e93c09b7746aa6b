package learnqueue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzumemory/kuzu-memory/internal/extract"
	"github.com/kuzumemory/kuzu-memory/internal/learnqueue"
	"github.com/kuzumemory/kuzu-memory/internal/storage"
	"github.com/kuzumemory/kuzu-memory/internal/storage/sqlitegraph"
)

func newTestQueue(t *testing.T, cfg learnqueue.Config) (*learnqueue.Queue, *sqlitegraph.MemoryStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	store, err := sqlitegraph.NewMemoryStore(path, sqlitegraph.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := learnqueue.New(store, extract.NewRuleExtractor(nil), cfg)
	return q, store
}

func TestQueue_EnqueueAndProcessCompletes(t *testing.T) {
	q, store := newTestQueue(t, learnqueue.DefaultConfig())
	require.NoError(t, q.Start(context.Background()))

	id, err := q.Enqueue("Go is a statically typed programming language.", "cli", "sess-1", "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		status, ok := q.Status(id)
		return ok && status == learnqueue.StatusDone
	}, time.Second, 5*time.Millisecond)

	recent, err := store.GetRecent(context.Background(), 10, storage.Filters{})
	require.NoError(t, err)
	assert.NotEmpty(t, recent)

	require.NoError(t, q.Drain(time.Second))
}

func TestQueue_StatusUnknownReturnsFalse(t *testing.T) {
	q, _ := newTestQueue(t, learnqueue.DefaultConfig())
	_, ok := q.Status("does-not-exist")
	assert.False(t, ok)
}

func TestQueue_EvictsOldestLowPriorityWhenFull(t *testing.T) {
	q, _ := newTestQueue(t, learnqueue.Config{Capacity: 2, NumWorkers: 1})

	firstID, err := q.Enqueue("I am currently working on this right now.", "cli", "", "", nil)
	require.NoError(t, err)
	_, err = q.Enqueue("I am currently working on something else right now.", "cli", "", "", nil)
	require.NoError(t, err)

	thirdID, err := q.Enqueue("I am currently debugging a new thing right now.", "cli", "", "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, thirdID)

	status, ok := q.Status(firstID)
	require.True(t, ok)
	assert.Equal(t, learnqueue.StatusDropped, status)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_RejectsWhenFullAndNothingEvictable(t *testing.T) {
	q, _ := newTestQueue(t, learnqueue.Config{Capacity: 1, NumWorkers: 1})

	_, err := q.Enqueue("Go is a statically typed programming language.", "cli", "", "", nil)
	require.NoError(t, err)

	_, err = q.Enqueue("Python is a dynamically typed programming language.", "cli", "", "", nil)
	assert.ErrorIs(t, err, learnqueue.ErrQueueFull)
}

func TestQueue_DrainWithNoPendingWorkReturnsImmediately(t *testing.T) {
	q, _ := newTestQueue(t, learnqueue.DefaultConfig())
	require.NoError(t, q.Start(context.Background()))

	require.NoError(t, q.Drain(2*time.Second))
}
