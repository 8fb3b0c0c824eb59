package engine

import (
	"context"

	"ResQMob/internal/models"
	"ResQMob/pkg/geo"
)

// LocationResolver resolves a user's current position (device GPS via the
// client, or the last reported fix). Failure aborts alert creation: an
// alert without a location cannot be dispatched.
type LocationResolver interface {
	GetCurrentLocation(ctx context.Context, userID string) (*geo.Point, error)
}

// UserDirectory reads user profile data from the external account system.
type UserDirectory interface {
	GetName(ctx context.Context, userID string) (string, error)
}

// ChatRooms opens and maintains the per-alert coordination channel. Both
// operations are best effort; a chat failure never blocks the alert.
type ChatRooms interface {
	CreateRoom(ctx context.Context, alert *models.Alert) (string, error)
	Join(ctx context.Context, alertID, userID string) error
}

// GeoTracker mirrors reported positions into a secondary spatial index
// (the redis GEO set). Optional.
type GeoTracker interface {
	Track(ctx context.Context, userID string, lat, lon float64) error
}
