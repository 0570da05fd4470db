package geocache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geomatch-cli/pkg/geocode"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCache_Miss(t *testing.T) {
	cache := openTemp(t)

	_, found, err := cache.Get(context.Background(), "1 Main St, Springfield, IL")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_RoundTrip(t *testing.T) {
	cache := openTemp(t)
	ctx := context.Background()

	entry := Entry{
		Matched: true,
		Result: geocode.Result{
			Latitude:         39.7817,
			Longitude:        -89.6501,
			FormattedAddress: "1 Main St, Springfield, IL 62701, USA",
		},
	}
	require.NoError(t, cache.Put(ctx, "1 Main St, Springfield, IL", entry))

	got, found, err := cache.Get(ctx, "1 Main St, Springfield, IL")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Matched)
	assert.InDelta(t, 39.7817, got.Result.Latitude, 1e-9)
	assert.Equal(t, entry.Result.FormattedAddress, got.Result.FormattedAddress)
}

func TestCache_NormalizesKey(t *testing.T) {
	cache := openTemp(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "1 Main St,  Springfield,  IL", Entry{Matched: true}))

	_, found, err := cache.Get(ctx, "1 MAIN st, Springfield, IL")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCache_ZeroResultEntry(t *testing.T) {
	cache := openTemp(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "nowhere at all", Entry{Matched: false}))

	got, found, err := cache.Get(ctx, "nowhere at all")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, got.Matched)
}

func TestCache_Replace(t *testing.T) {
	cache := openTemp(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "addr", Entry{Matched: false}))
	require.NoError(t, cache.Put(ctx, "addr", Entry{
		Matched: true,
		Result:  geocode.Result{Latitude: 1, Longitude: 2},
	}))

	got, found, err := cache.Get(ctx, "addr")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Matched)
	assert.InDelta(t, 1.0, got.Result.Latitude, 1e-9)
}
