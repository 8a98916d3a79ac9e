package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

func record(resourceID string, rating float64) models.FeedbackRecord {
	return models.FeedbackRecord{
		ID:         uuid.New(),
		ResourceID: resourceID,
		Rating:     rating,
		Timestamp:  time.Now().UTC(),
	}
}

func ratings(recs []models.FeedbackRecord) []float64 {
	out := make([]float64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Rating)
	}
	return out
}

func TestMemoryLogAppendAndList(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	for i := 1; i <= 3; i++ {
		require.NoError(t, log.Append(ctx, record("a", float64(i))))
		require.NoError(t, log.Append(ctx, record("b", float64(i*10))))
	}

	got, err := log.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, ratings(got))

	ids, err := log.Resources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	empty, err := log.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryLogRejectsMissingResource(t *testing.T) {
	err := NewMemoryLog().Append(context.Background(), record("", 1))
	assert.True(t, errors.Is(err, ErrInvalidRecord))
}

func TestMemoryLogCopiesObservations(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	rec := record("a", 5)
	rec.PerformanceObservations = map[string]interface{}{"latencyMs": 120.0}
	require.NoError(t, log.Append(ctx, rec))
	rec.PerformanceObservations["latencyMs"] = 999.0

	got, err := log.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 120.0, got[0].PerformanceObservations["latencyMs"])
}

func TestMemoryLogTrimReturnsOldestAndCompacts(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	for i := 1; i <= 6; i++ {
		require.NoError(t, log.Append(ctx, record("a", float64(i))))
		require.NoError(t, log.Append(ctx, record("b", float64(-i))))
	}

	removed, err := log.Trim(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, ratings(removed))

	removed, err = log.Trim(ctx, "b", 1)
	require.NoError(t, err)
	assert.Len(t, removed, 5)

	// compaction happened; offsets must still resolve to the right records
	assert.Less(t, len(log.arena), 12)
	a, err := log.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, ratings(a))
	b, err := log.List(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []float64{-6}, ratings(b))

	require.NoError(t, log.Append(ctx, record("a", 7)))
	a, err = log.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 7}, ratings(a))

	none, err := log.Trim(ctx, "a", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryLogTrimToZeroForgetsResource(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	require.NoError(t, log.Append(ctx, record("a", 1)))
	_, err := log.Trim(ctx, "a", 0)
	require.NoError(t, err)
	ids, err := log.Resources(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryLogTrimHeadDropsAtMostN(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	for i := 1; i <= 4; i++ {
		require.NoError(t, log.Append(ctx, record("a", float64(i))))
	}

	removed, err := log.TrimHead(ctx, "a", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, ratings(removed))

	removed, err = log.TrimHead(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, removed)

	removed, err = log.TrimHead(ctx, "a", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, ratings(removed))
	ids, err := log.Resources(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryLogConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, log.Append(ctx, record(fmt.Sprintf("r%d", w%2), float64(i))))
			}
		}(w)
	}
	wg.Wait()
	r0, err := log.List(ctx, "r0")
	require.NoError(t, err)
	r1, err := log.List(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, r0, 200)
	assert.Len(t, r1, 200)
}
