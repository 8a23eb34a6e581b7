package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache(0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetBytes(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := c.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache(2)
	c.now = func() time.Time { now = now.Add(time.Second); return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, c.SetBytes(ctx, fmt.Sprint(i), []byte{byte(i)}, 0))
	}
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.GetBytes(ctx, "0")
	assert.False(t, ok)
	_, ok, _ = c.GetBytes(ctx, "2")
	assert.True(t, ok)
}

func TestForecastKey(t *testing.T) {
	a := ForecastKey([]byte("data"), "gb", 3, "csv")
	assert.Equal(t, a, ForecastKey([]byte("data"), "gb", 3, "csv"))
	assert.NotEqual(t, a, ForecastKey([]byte("data"), "gb", 4, "csv"))
	assert.NotEqual(t, a, ForecastKey([]byte("data"), "sarima", 3, "csv"))
	assert.NotEqual(t, a, ForecastKey([]byte("datb"), "gb", 3, "csv"))
}
