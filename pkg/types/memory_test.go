package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

func TestDefaultImportance_PerType(t *testing.T) {
	cases := map[types.MemoryType]float64{
		types.MemoryTypeSemantic:   1.00,
		types.MemoryTypeProcedural: 0.90,
		types.MemoryTypePreference: 0.90,
		types.MemoryTypeEpisodic:   0.70,
		types.MemoryTypeWorking:    0.50,
		types.MemoryTypeSensory:    0.30,
	}
	for typ, want := range cases {
		assert.Equal(t, want, types.DefaultImportance(typ), "type=%s", typ)
	}
}

func TestDefaultRetention_NeverTypesHaveNoWindow(t *testing.T) {
	for _, typ := range []types.MemoryType{types.MemoryTypeSemantic, types.MemoryTypeProcedural, types.MemoryTypePreference} {
		_, ok := types.DefaultRetention(typ)
		assert.False(t, ok, "type=%s should never expire by default", typ)
	}
}

func TestDefaultRetention_BoundedTypes(t *testing.T) {
	d, ok := types.DefaultRetention(types.MemoryTypeWorking)
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)

	d, ok = types.DefaultRetention(types.MemoryTypeSensory)
	assert.True(t, ok)
	assert.Equal(t, 6*time.Hour, d)

	d, ok = types.DefaultRetention(types.MemoryTypeEpisodic)
	assert.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, d)
}

func TestMemoryTypePriority_PreferenceFirst(t *testing.T) {
	assert.Equal(t, types.MemoryTypePreference, types.MemoryTypePriority[0])
	assert.Equal(t, types.MemoryTypeProcedural, types.MemoryTypePriority[1])
}

func TestFoldsCase(t *testing.T) {
	assert.True(t, types.FoldsCase(types.MemoryTypePreference))
	assert.True(t, types.FoldsCase(types.MemoryTypeSensory))
	assert.True(t, types.FoldsCase(types.MemoryTypeWorking))
	assert.False(t, types.FoldsCase(types.MemoryTypeSemantic))
	assert.False(t, types.FoldsCase(types.MemoryTypeProcedural))
	assert.False(t, types.FoldsCase(types.MemoryTypeEpisodic))
}

func TestMemory_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	never := types.Memory{ValidTo: types.NeverExpires}
	assert.False(t, never.IsExpired(now))

	past := types.Memory{ValidTo: now.Add(-time.Hour)}
	assert.True(t, past.IsExpired(now))

	future := types.Memory{ValidTo: now.Add(time.Hour)}
	assert.False(t, future.IsExpired(now))
}
