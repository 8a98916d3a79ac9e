package feedback

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisLogIntegration requires a running Redis; it is skipped when none
// answers on REDIS_ADDR (default localhost:6379).
func TestRedisLogIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	log := NewRedisLog(addr, "", 0)
	defer log.Close()
	ctx := context.Background()
	if err := log.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	resource := "it-" + uuid.NewString()
	defer func() {
		log.client.Del(ctx, redisKey(resource))
		log.client.SRem(ctx, redisResourcesKey, resource)
	}()

	for i := 1; i <= 4; i++ {
		require.NoError(t, log.Append(ctx, record(resource, float64(i))))
	}
	recs, err := log.List(ctx, resource)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, ratings(recs))

	ids, err := log.Resources(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, resource)

	removed, err := log.Trim(ctx, resource, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, ratings(removed))

	none, err := log.Trim(ctx, resource, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	recs, err = log.List(ctx, resource)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, ratings(recs))

	require.NoError(t, log.Append(ctx, record(resource, 5)))
	head, err := log.TrimHead(ctx, resource, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, ratings(head))
	head, err = log.TrimHead(ctx, resource, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, ratings(head))
}
