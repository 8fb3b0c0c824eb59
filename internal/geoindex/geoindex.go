package geoindex

import (
	"context"
	"time"

	"ResQMob/internal/store"
	"ResQMob/pkg/geo"
	"ResQMob/pkg/metrics"
)

// UserRef identifies a user found inside a query ring, with the exact
// great-circle distance from the center.
type UserRef struct {
	UserID         string  `json:"userId"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// GeoIndex answers "who is within radius R of point P". Read-only.
//
// excludeRadiusMeters sets the inner bound of the ring so escalation can
// re-query without re-notifying users already covered by the previous
// radius; it relies on radii growing monotonically. excludeUserID keeps the
// querying user out of their own results.
type GeoIndex interface {
	FindWithinRadius(ctx context.Context, center geo.Point, radiusMeters, excludeRadiusMeters float64, excludeUserID string) ([]UserRef, error)
}

// StoreIndex backs the spatial query with the last-known-location store:
// bounding-box prefilter, exact haversine check.
type StoreIndex struct {
	locations store.LocationStore
}

func NewStoreIndex(locations store.LocationStore) *StoreIndex {
	return &StoreIndex{locations: locations}
}

func (g *StoreIndex) FindWithinRadius(ctx context.Context, center geo.Point, radiusMeters, excludeRadiusMeters float64, excludeUserID string) ([]UserRef, error) {
	start := time.Now()
	defer func() {
		if m := metrics.Global(); m != nil {
			m.ObserveGeoQuery(time.Since(start))
		}
	}()

	minLat, maxLat, minLon, maxLon := geo.BoundingBox(center.Latitude, center.Longitude, radiusMeters)
	candidates, err := g.locations.ListLocationsInBox(ctx, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}

	refs := make([]UserRef, 0, len(candidates))
	for _, loc := range candidates {
		if loc.UserID == excludeUserID {
			continue
		}
		d := geo.Distance(center.Latitude, center.Longitude, loc.Latitude, loc.Longitude)
		if d > radiusMeters || d < excludeRadiusMeters {
			continue
		}
		refs = append(refs, UserRef{UserID: loc.UserID, DistanceMeters: d})
	}
	return refs, nil
}
