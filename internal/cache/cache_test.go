package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/cache"
)

type payload struct {
	Name string `json:"name"`
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.New(client, time.Minute)
	ctx := context.Background()

	var got payload
	hit, err := c.Get(ctx, cache.KeyServiceCatalog, &got)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, cache.KeyServiceCatalog, payload{Name: "Full Detail"}))
	hit, err = c.Get(ctx, cache.KeyServiceCatalog, &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "Full Detail", got.Name)

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, cache.KeyServiceCatalog, &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestJSONCorruptPayloadIsMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set(cache.KeyInvoiceSettings, "{not json"))
	c := cache.New(client, time.Minute)
	var got payload
	hit, err := c.Get(context.Background(), cache.KeyInvoiceSettings, &got)
	require.NoError(t, err)
	require.False(t, hit)
	require.False(t, mr.Exists(cache.KeyInvoiceSettings))
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *cache.JSON
	hit, err := c.Get(context.Background(), "k", &payload{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Set(context.Background(), "k", payload{}))
	require.NoError(t, c.Invalidate(context.Background(), "k"))
}
