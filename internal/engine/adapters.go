package engine

import (
	"context"
	"fmt"
	"time"

	"ResQMob/internal/models"
	"ResQMob/internal/store"
	"ResQMob/pkg/cache"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/geo"
	"ResQMob/pkg/util"

	"github.com/spf13/cast"
)

// Geocoder resolves coordinates to a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// CachedGeocoder memoizes reverse-geocode lookups in the app cache. With no
// upstream geocoder configured it degrades to an empty address; the SMS
// copy then falls back to "Location shared".
type CachedGeocoder struct {
	Cache cache.Cache
	Next  Geocoder // optional external geocoder client
	TTL   time.Duration
}

func (g *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("geocode:%.4f:%.4f", lat, lon)
	if g.Cache != nil {
		if v, ok := g.Cache.Get(ctx, key); ok {
			return cast.ToString(v), nil
		}
	}
	if g.Next == nil {
		return "", nil
	}
	addr, err := g.Next.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	if g.Cache != nil && addr != "" {
		ttl := g.TTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		_ = g.Cache.Set(ctx, key, addr, ttl)
	}
	return addr, nil
}

// StoreLocationResolver resolves a user's position from the last fix the
// client reported. Fixes older than MaxAge are treated as unavailable.
type StoreLocationResolver struct {
	Locations store.LocationStore
	Geocode   Geocoder // optional, fills Point.Address
	MaxAge    time.Duration
}

func (r *StoreLocationResolver) GetCurrentLocation(ctx context.Context, userID string) (*geo.Point, error) {
	loc, err := r.Locations.GetLocation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if r.MaxAge > 0 && time.Since(loc.UpdatedAt) > r.MaxAge {
		return nil, errors.LocationUnavailable("last fix for user %s is older than %s", userID, r.MaxAge)
	}
	pt := &geo.Point{Latitude: loc.Latitude, Longitude: loc.Longitude, Accuracy: loc.Accuracy}
	if r.Geocode != nil {
		if addr, err := r.Geocode.ReverseGeocode(ctx, loc.Latitude, loc.Longitude); err == nil {
			pt.Address = addr
		}
	}
	return pt, nil
}

// CachedDirectory reads display names seeded into the cache by the account
// system under "user:name:<id>". A miss resolves to an empty name, which
// the notification copy degrades gracefully for.
type CachedDirectory struct {
	Cache cache.Cache
}

func (d *CachedDirectory) GetName(ctx context.Context, userID string) (string, error) {
	if d.Cache == nil {
		return "", nil
	}
	v, ok := d.Cache.Get(ctx, "user:name:"+userID)
	if !ok {
		return "", nil
	}
	return cast.ToString(v), nil
}

// StoreChatRooms keeps the per-alert coordination rooms in the alert
// database. The owner is the first participant.
type StoreChatRooms struct {
	Rooms store.RoomStore
}

func (c *StoreChatRooms) CreateRoom(ctx context.Context, alert *models.Alert) (string, error) {
	room := &models.ChatRoom{
		ID:           util.NewID(),
		AlertID:      alert.ID,
		Name:         fmt.Sprintf("Emergency Response - %s", alert.Type),
		Participants: models.StringList{alert.UserID},
	}
	if err := c.Rooms.CreateRoom(ctx, room); err != nil {
		return "", err
	}
	return room.ID, nil
}

func (c *StoreChatRooms) Join(ctx context.Context, alertID, userID string) error {
	return c.Rooms.AddParticipant(ctx, alertID, userID)
}
