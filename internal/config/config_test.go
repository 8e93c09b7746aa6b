package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kuzumemory/kuzu-memory/internal/config"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

func TestDefault_ValidatesClean(t *testing.T) {
	cfg := config.Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsZeroMaxMemories(t *testing.T) {
	cfg := config.Default()
	cfg.Recall.MaxMemories = 0
	assert.ErrorIs(t, cfg.Validate(), config.ErrConfig)
}

func TestValidate_RejectsUnknownStrategy(t *testing.T) {
	cfg := config.Default()
	cfg.Recall.DefaultStrategy = "bogus"
	assert.ErrorIs(t, cfg.Validate(), config.ErrConfig)
}

func TestValidate_RejectsNegativeWeight(t *testing.T) {
	cfg := config.Default()
	cfg.Recall.ImportanceWeight = -0.1
	assert.ErrorIs(t, cfg.Validate(), config.ErrConfig)
}

func TestValidate_RejectsZeroQueueCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.Async.QueueCapacity = 0
	assert.ErrorIs(t, cfg.Validate(), config.ErrConfig)
}

func TestValidate_RejectsZeroWorkers(t *testing.T) {
	cfg := config.Default()
	cfg.Async.Workers = 0
	assert.ErrorIs(t, cfg.Validate(), config.ErrConfig)
}

func TestValidate_RejectsNegativeCacheTTL(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.TTLSeconds = -1
	assert.ErrorIs(t, cfg.Validate(), config.ErrConfig)
}

func TestRetentionConfig_ForUnsetFieldReportsNoOverride(t *testing.T) {
	var r config.RetentionConfig
	_, ok := r.For(types.MemoryTypeWorking)
	assert.False(t, ok)
}

func TestRetentionConfig_ForPositiveOverride(t *testing.T) {
	r := config.RetentionConfig{WorkingTTL: 2 * time.Hour}
	d, ok := r.For(types.MemoryTypeWorking)
	require := assert.New(t)
	require.True(ok)
	require.Equal(2*time.Hour, d)
}

func TestRetentionConfig_ForNegativeOverrideMeansNeverExpires(t *testing.T) {
	r := config.RetentionConfig{SensoryTTL: -1 * time.Second}
	d, ok := r.For(types.MemoryTypeSensory)
	assert.True(t, ok)
	assert.Equal(t, -1*time.Second, d)
}
