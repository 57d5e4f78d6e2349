package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigCacheRoundTrip(t *testing.T) {
	c, err := NewBigCache(time.Minute, 4)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "pst:3:1:8", int64(30), 0))

	var got int64
	require.NoError(t, c.Get(ctx, "pst:3:1:8", &got))
	assert.Equal(t, int64(30), got)

	ok, err := c.Exists(ctx, "pst:3:1:8")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "pst:3:1:8", "never-set"))
	ok, err = c.Exists(ctx, "pst:3:1:8")
	require.NoError(t, err)
	assert.False(t, ok)

	err = c.Get(ctx, "pst:3:1:8", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
