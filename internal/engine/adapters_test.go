package engine

import (
	"context"
	"testing"
	"time"

	"ResQMob/internal/models"
	"ResQMob/internal/store"
	"ResQMob/pkg/cache"
	"ResQMob/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(cache.Config{Type: "local"})
	require.NoError(t, err)
	return c
}

type countingGeocoder struct {
	calls int
	addr  string
}

func (g *countingGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	g.calls++
	return g.addr, nil
}

func TestCachedGeocoderMemoizes(t *testing.T) {
	upstream := &countingGeocoder{addr: "12 Mirpur Road, Dhaka"}
	g := &CachedGeocoder{Cache: localCache(t), Next: upstream}
	ctx := context.Background()

	addr, err := g.ReverseGeocode(ctx, 23.8103, 90.4125)
	require.NoError(t, err)
	assert.Equal(t, "12 Mirpur Road, Dhaka", addr)

	addr, err = g.ReverseGeocode(ctx, 23.8103, 90.4125)
	require.NoError(t, err)
	assert.Equal(t, "12 Mirpur Road, Dhaka", addr)
	assert.Equal(t, 1, upstream.calls)

	// A different cell goes back upstream.
	_, err = g.ReverseGeocode(ctx, 23.9000, 90.4125)
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedGeocoderWithoutUpstream(t *testing.T) {
	g := &CachedGeocoder{Cache: localCache(t)}
	addr, err := g.ReverseGeocode(context.Background(), 23.8103, 90.4125)
	require.NoError(t, err)
	assert.Empty(t, addr)
}

func TestStoreLocationResolver(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	r := &StoreLocationResolver{Locations: s, MaxAge: 15 * time.Minute}

	// No fix on record.
	_, err := r.GetCurrentLocation(ctx, "u1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, s.UpsertLocation(ctx, &models.UserLocation{
		UserID: "u1", Latitude: 23.8, Longitude: 90.4, Accuracy: 10,
	}))
	pt, err := r.GetCurrentLocation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 23.8, pt.Latitude)
	assert.Equal(t, 10.0, pt.Accuracy)
}

func TestCachedDirectory(t *testing.T) {
	c := localCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "user:name:u1", "Rahim", time.Minute))

	d := &CachedDirectory{Cache: c}
	name, err := d.GetName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Rahim", name)

	name, err = d.GetName(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, name)
}
