package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ResQMob/internal/models"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/util"
)

// MemoryStore is an in-process backend satisfying the same interfaces as
// GormStore. It backs tests and demo deployments with no database.
type MemoryStore struct {
	mu         sync.RWMutex
	alerts     map[string]*models.Alert
	responders map[string]map[string]*models.Responder // alertID -> userID -> responder
	locations  map[string]*models.UserLocation
	contacts   map[string][]models.EmergencyContact
	records    []models.NotificationRecord
	rooms      map[string]*models.ChatRoom // alertID -> room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:     make(map[string]*models.Alert),
		responders: make(map[string]map[string]*models.Responder),
		locations:  make(map[string]*models.UserLocation),
		contacts:   make(map[string][]models.EmergencyContact),
		rooms:      make(map[string]*models.ChatRoom),
	}
}

func (s *MemoryStore) Create(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.UserID == alert.UserID && a.Active() {
			return errors.Conflict("user %s already has an active alert", alert.UserID)
		}
	}
	now := time.Now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, alertID string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(alertID)
}

func (s *MemoryStore) getLocked(alertID string) (*models.Alert, error) {
	a, ok := s.alerts[alertID]
	if !ok {
		return nil, errors.NotFound("alert %s not found", alertID)
	}
	cp := *a
	cp.Responders = s.respondersLocked(alertID)
	return &cp, nil
}

func (s *MemoryStore) respondersLocked(alertID string) []models.Responder {
	out := make([]models.Responder, 0, len(s.responders[alertID]))
	for _, r := range s.responders[alertID] {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.Active() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, userID string) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.UserID == userID {
			cp := *a
			cp.Responders = s.respondersLocked(a.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListResponders(ctx context.Context, alertID string) ([]models.Responder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.respondersLocked(alertID), nil
}

func (s *MemoryStore) UpdateEscalation(ctx context.Context, alertID string, newLevel int, newRadius float64) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, errors.NotFound("alert %s not found", alertID)
	}
	if !a.Active() {
		return nil, errors.InvalidTransition("alert %s is not active", alertID)
	}
	if newLevel <= a.EscalationLevel {
		return nil, errors.InvalidTransition("escalation level must grow: %d -> %d", a.EscalationLevel, newLevel)
	}
	if newRadius < a.NotificationRadius {
		return nil, errors.InvalidTransition("notification radius must not shrink: %.0f -> %.0f", a.NotificationRadius, newRadius)
	}
	a.EscalationLevel = newLevel
	a.NotificationRadius = newRadius
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpsertResponder(ctx context.Context, alertID string, r *models.Responder) (*models.Responder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, errors.NotFound("alert %s not found", alertID)
	}

	byUser := s.responders[alertID]
	if byUser == nil {
		byUser = make(map[string]*models.Responder)
		s.responders[alertID] = byUser
	}
	now := time.Now()
	if existing, ok := byUser[r.UserID]; ok {
		existing.Status = r.Status
		existing.DistanceMeters = r.DistanceMeters
		existing.ETAMinutes = r.ETAMinutes
		existing.UpdatedAt = now
		*r = *existing
	} else {
		if r.ID == "" {
			r.ID = util.NewID()
		}
		r.AlertID = alertID
		r.CreatedAt = now
		r.UpdatedAt = now
		cp := *r
		byUser[r.UserID] = &cp
	}

	a.ResponderCount = len(byUser)
	a.UpdatedAt = now
	return r, nil
}

func (s *MemoryStore) Confirm(ctx context.Context, alertID string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, errors.NotFound("alert %s not found", alertID)
	}
	if !a.Active() {
		return nil, errors.InvalidTransition("alert %s is already %s", alertID, a.Status)
	}
	a.Confirmations++
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, alertID, ownerID string, status models.AlertStatus) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, errors.NotFound("alert %s not found", alertID)
	}
	if a.UserID != ownerID {
		return nil, errors.Permission("only the alert owner may resolve it")
	}
	if !a.Active() {
		return nil, errors.InvalidTransition("alert %s is already %s", alertID, a.Status)
	}
	now := time.Now()
	a.Status = status
	a.ResolvedAt = &now
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpsertLocation(ctx context.Context, loc *models.UserLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc.UpdatedAt = time.Now()
	cp := *loc
	s.locations[loc.UserID] = &cp
	return nil
}

func (s *MemoryStore) GetLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[userID]
	if !ok {
		return nil, errors.NotFound("no known location for user %s", userID)
	}
	cp := *loc
	return &cp, nil
}

func (s *MemoryStore) ListLocationsInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]models.UserLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UserLocation
	for _, loc := range s.locations {
		if loc.Latitude >= minLat && loc.Latitude <= maxLat &&
			loc.Longitude >= minLon && loc.Longitude <= maxLon {
			out = append(out, *loc)
		}
	}
	return out, nil
}

// SetContacts seeds a user's emergency contacts.
func (s *MemoryStore) SetContacts(userID string, contacts []models.EmergencyContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[userID] = contacts
}

func (s *MemoryStore) ListNotifiableContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EmergencyContact
	for _, c := range s.contacts[userID] {
		if c.NotifyEnabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordNotification(ctx context.Context, rec *models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.CreatedAt = time.Now()
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.AlertID]; ok {
		return errors.Conflict("alert %s already has a chat room", room.AlertID)
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	cp := *room
	s.rooms[room.AlertID] = &cp
	return nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, alertID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[alertID]
	if !ok {
		return errors.NotFound("chat room for alert %s not found", alertID)
	}
	for _, p := range room.Participants {
		if p == userID {
			return nil
		}
	}
	room.Participants = append(room.Participants, userID)
	room.UpdatedAt = time.Now()
	return nil
}

// Room returns the alert's chat room, or nil.
func (s *MemoryStore) Room(alertID string) *models.ChatRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if room, ok := s.rooms[alertID]; ok {
		cp := *room
		return &cp
	}
	return nil
}

// NotificationRecords returns a snapshot of recorded deliveries.
func (s *MemoryStore) NotificationRecords() []models.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.NotificationRecord, len(s.records))
	copy(out, s.records)
	return out
}
