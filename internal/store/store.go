package store

import (
	"context"
	"sync"

	"ResQMob/internal/models"
)

// AlertStore owns the canonical Alert and Responder records. Every mutation
// is serialized per alert; concurrent responder updates never drop writes.
type AlertStore interface {
	// Create persists a new alert. Fails with a Conflict error when the
	// owner already has an active alert.
	Create(ctx context.Context, alert *models.Alert) error

	// Get returns the alert or a NotFound error.
	Get(ctx context.Context, alertID string) (*models.Alert, error)

	// ListActive returns every alert with status active.
	ListActive(ctx context.Context) ([]models.Alert, error)

	// ListByOwner returns the owner's alerts, newest first.
	ListByOwner(ctx context.Context, userID string) ([]models.Alert, error)

	// ListResponders returns the alert's responder records.
	ListResponders(ctx context.Context, alertID string) ([]models.Responder, error)

	// UpdateEscalation atomically bumps escalation level and radius. Both
	// must grow monotonically or the call fails with InvalidTransition.
	UpdateEscalation(ctx context.Context, alertID string, newLevel int, newRadius float64) (*models.Alert, error)

	// UpsertResponder inserts or replaces the (alert, user) responder record
	// and recomputes the persisted responder count.
	UpsertResponder(ctx context.Context, alertID string, r *models.Responder) (*models.Responder, error)

	// Confirm increments the alert's confirmation count. The alert must
	// still be active; the check runs under the same per-alert
	// serialization as the other transitions.
	Confirm(ctx context.Context, alertID string) (*models.Alert, error)

	// Resolve terminates an active alert. Only the owner may resolve;
	// resolving a non-active alert fails with InvalidTransition.
	Resolve(ctx context.Context, alertID, ownerID string, status models.AlertStatus) (*models.Alert, error)
}

// LocationStore keeps each user's last known position for the geo index.
type LocationStore interface {
	UpsertLocation(ctx context.Context, loc *models.UserLocation) error
	GetLocation(ctx context.Context, userID string) (*models.UserLocation, error)
	// ListLocationsInBox returns users whose last position falls inside the
	// lat/lon box. Callers apply the exact haversine filter.
	ListLocationsInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]models.UserLocation, error)
}

// ContactStore reads a user's emergency contacts.
type ContactStore interface {
	ListNotifiableContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error)
}

// RoomStore holds the per-alert coordination chat rooms.
type RoomStore interface {
	// CreateRoom persists the alert's chat room. A second room for the same
	// alert fails with a Conflict error.
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	// AddParticipant appends a user to the room's participant list.
	AddParticipant(ctx context.Context, alertID, userID string) error
}

// RecordStore persists notification delivery records, best effort.
type RecordStore interface {
	RecordNotification(ctx context.Context, rec *models.NotificationRecord) error
}

// keyedLocks serializes mutations per alert (or per owner on create)
// without one global lock.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*lockEntry)}
}

func (k *keyedLocks) lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()
	e.mu.Lock()
}

func (k *keyedLocks) unlock(key string) {
	k.mu.Lock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
	e.mu.Unlock()
}
