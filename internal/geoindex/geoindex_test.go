package geoindex

import (
	"context"
	"testing"

	"ResQMob/internal/models"
	"ResQMob/internal/store"
	"ResQMob/pkg/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ~0.009 degrees of latitude is about 1 km.
const latPerKm = 1.0 / 111.195

func seedLocations(t *testing.T, s *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	locs := []models.UserLocation{
		{UserID: "owner", Latitude: 23.8103, Longitude: 90.4125},
		{UserID: "near-500m", Latitude: 23.8103 + 0.5*latPerKm, Longitude: 90.4125},
		{UserID: "mid-2km", Latitude: 23.8103 + 2*latPerKm, Longitude: 90.4125},
		{UserID: "far-8km", Latitude: 23.8103 + 8*latPerKm, Longitude: 90.4125},
	}
	for i := range locs {
		require.NoError(t, s.UpsertLocation(ctx, &locs[i]))
	}
}

func TestStoreIndexFindWithinRadius(t *testing.T) {
	s := store.NewMemoryStore()
	seedLocations(t, s)
	idx := NewStoreIndex(s)
	center := geo.Point{Latitude: 23.8103, Longitude: 90.4125}
	ctx := context.Background()

	t.Run("excludes querying user", func(t *testing.T) {
		refs, err := idx.FindWithinRadius(ctx, center, 10000, 0, "owner")
		require.NoError(t, err)
		for _, r := range refs {
			assert.NotEqual(t, "owner", r.UserID)
		}
		assert.Len(t, refs, 3)
	})

	t.Run("respects outer radius", func(t *testing.T) {
		refs, err := idx.FindWithinRadius(ctx, center, 3000, 0, "owner")
		require.NoError(t, err)
		ids := userIDs(refs)
		assert.ElementsMatch(t, []string{"near-500m", "mid-2km"}, ids)
		for _, r := range refs {
			assert.LessOrEqual(t, r.DistanceMeters, 3000.0)
		}
	})

	t.Run("exclusion ring skips already notified", func(t *testing.T) {
		refs, err := idx.FindWithinRadius(ctx, center, 9000, 3000, "owner")
		require.NoError(t, err)
		assert.Equal(t, []string{"far-8km"}, userIDs(refs))
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		refs, err := idx.FindWithinRadius(ctx, geo.Point{Latitude: -45, Longitude: 7}, 5000, 0, "")
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func userIDs(refs []UserRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.UserID)
	}
	return out
}
