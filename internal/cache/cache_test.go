package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/query"
	"github.com/arxgeo/geodist/internal/shape"
)

func TestLocalOnlyGetSetMiss(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, found := c.Get(ctx, "missing")
	assert.False(t, found)

	c.Set(ctx, "key1", []byte("result-bytes"))
	got, found := c.Get(ctx, "key1")
	require.True(t, found)
	assert.Equal(t, []byte("result-bytes"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate())
}

func TestQueryCacheKeyIgnoresID(t *testing.T) {
	window := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	q1 := query.NewRangeQueryBox("first-id", "R", window)
	q2 := query.NewRangeQueryBox("second-id", "R", window)
	assert.Equal(t, QueryCacheKey(q1), QueryCacheKey(q2))

	other := query.NewRangeQueryBox("first-id", "R", shape.MBR{MinX: 0, MinY: 0, MaxX: 5, MaxY: 5})
	assert.NotEqual(t, QueryCacheKey(q1), QueryCacheKey(other))
}

func TestQueryCacheKeyDistinguishesDataset(t *testing.T) {
	window := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	q1 := query.NewRangeQueryBox("q", "R", window)
	q2 := query.NewRangeQueryBox("q", "S", window)
	assert.NotEqual(t, QueryCacheKey(q1), QueryCacheKey(q2))
}
