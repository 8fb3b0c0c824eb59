package geoindex

import (
	"context"
	"time"

	"ResQMob/pkg/geo"
	"ResQMob/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const locationKey = "resqmob:user_locations"

// RedisIndex keeps user positions in a redis GEO set and answers radius
// queries with GEOSEARCH. Positions must be mirrored into redis via Track
// whenever a client reports a location update.
type RedisIndex struct {
	client *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

// Track mirrors a user's last known position into the GEO set.
func (g *RedisIndex) Track(ctx context.Context, userID string, lat, lon float64) error {
	return g.client.GeoAdd(ctx, locationKey, &redis.GeoLocation{
		Name:      userID,
		Latitude:  lat,
		Longitude: lon,
	}).Err()
}

// Forget removes a user from the GEO set.
func (g *RedisIndex) Forget(ctx context.Context, userID string) error {
	return g.client.ZRem(ctx, locationKey, userID).Err()
}

func (g *RedisIndex) FindWithinRadius(ctx context.Context, center geo.Point, radiusMeters, excludeRadiusMeters float64, excludeUserID string) ([]UserRef, error) {
	start := time.Now()
	defer func() {
		if m := metrics.Global(); m != nil {
			m.ObserveGeoQuery(time.Since(start))
		}
	}()

	locs, err := g.client.GeoSearchLocation(ctx, locationKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Longitude,
			Latitude:   center.Latitude,
			Radius:     radiusMeters,
			RadiusUnit: "m",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}

	refs := make([]UserRef, 0, len(locs))
	for _, loc := range locs {
		if loc.Name == excludeUserID {
			continue
		}
		// GEOSEARCH has no inner bound; drop the already-notified ring here.
		if loc.Dist < excludeRadiusMeters {
			continue
		}
		refs = append(refs, UserRef{UserID: loc.Name, DistanceMeters: loc.Dist})
	}
	return refs, nil
}
