package cache

import (
	"context"
	"testing"
	"time"

	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestExperiments(t *testing.T, count int) []experiment.Experiment {
	t.Helper()
	experiments := make([]experiment.Experiment, 0, count)
	for i := 0; i < count; i++ {
		control, err := experiment.NewVariant("Control", "", true, nil)
		require.NoError(t, err)
		exp, err := experiment.NewExperiment("Cached test", "", experiment.TypeUIComponent, []*experiment.Variant{control})
		require.NoError(t, err)
		experiments = append(experiments, *exp)
	}
	return experiments
}

func TestInMemoryRunningExperimentCache_GetRunningByType(t *testing.T) {
	cache := NewInMemoryRunningExperimentCache()
	defer cache.Close()

	ctx := context.Background()

	// Test cache miss
	experiments, ok := cache.GetRunningByType(ctx, experiment.TypeUIComponent)
	assert.False(t, ok)
	assert.Nil(t, experiments)

	// Set and hit
	stored := createTestExperiments(t, 2)
	cache.SetRunningByType(ctx, experiment.TypeUIComponent, stored, 5*time.Second)

	experiments, ok = cache.GetRunningByType(ctx, experiment.TypeUIComponent)
	require.True(t, ok)
	assert.Len(t, experiments, 2)

	// Other types are unaffected
	_, ok = cache.GetRunningByType(ctx, experiment.TypePricing)
	assert.False(t, ok)
}

func TestInMemoryRunningExperimentCache_EmptySetIsAHit(t *testing.T) {
	cache := NewInMemoryRunningExperimentCache()
	defer cache.Close()

	ctx := context.Background()

	// An empty running set is a valid cached answer
	cache.SetRunningByType(ctx, experiment.TypePricing, []experiment.Experiment{}, 5*time.Second)

	experiments, ok := cache.GetRunningByType(ctx, experiment.TypePricing)
	assert.True(t, ok)
	assert.Empty(t, experiments)
}

func TestInMemoryRunningExperimentCache_Expiration(t *testing.T) {
	cache := NewInMemoryRunningExperimentCache()
	defer cache.Close()

	ctx := context.Background()

	cache.SetRunningByType(ctx, experiment.TypeUIComponent, createTestExperiments(t, 1), 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	_, ok := cache.GetRunningByType(ctx, experiment.TypeUIComponent)
	assert.False(t, ok)
}

func TestInMemoryRunningExperimentCache_InvalidateType(t *testing.T) {
	cache := NewInMemoryRunningExperimentCache()
	defer cache.Close()

	ctx := context.Background()

	cache.SetRunningByType(ctx, experiment.TypeUIComponent, createTestExperiments(t, 1), 5*time.Second)
	cache.SetRunningByType(ctx, experiment.TypePricing, createTestExperiments(t, 1), 5*time.Second)

	cache.InvalidateType(ctx, experiment.TypeUIComponent)

	_, ok := cache.GetRunningByType(ctx, experiment.TypeUIComponent)
	assert.False(t, ok)
	_, ok = cache.GetRunningByType(ctx, experiment.TypePricing)
	assert.True(t, ok)
}

func TestInMemoryRunningExperimentCache_InvalidateAll(t *testing.T) {
	cache := NewInMemoryRunningExperimentCache()
	defer cache.Close()

	ctx := context.Background()

	cache.SetRunningByType(ctx, experiment.TypeUIComponent, createTestExperiments(t, 1), 5*time.Second)
	cache.SetRunningByType(ctx, experiment.TypePricing, createTestExperiments(t, 1), 5*time.Second)

	cache.InvalidateAll(ctx)

	assert.Equal(t, 0, cache.Count())
}

func TestInMemoryRunningExperimentCache_Stats(t *testing.T) {
	cache := NewInMemoryRunningExperimentCache()
	defer cache.Close()

	ctx := context.Background()

	cache.GetRunningByType(ctx, experiment.TypeUIComponent)
	cache.SetRunningByType(ctx, experiment.TypeUIComponent, createTestExperiments(t, 1), 5*time.Second)
	cache.GetRunningByType(ctx, experiment.TypeUIComponent)

	hits, misses := cache.GetStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestInMemoryRunningExperimentCache_CloseIsIdempotent(t *testing.T) {
	cache := NewInMemoryRunningExperimentCache()

	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())
}
