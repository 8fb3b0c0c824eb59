package store

import (
	"context"
	stderrors "errors"
	"time"

	"ResQMob/internal/models"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/util"

	"gorm.io/gorm"
)

// GormStore backs AlertStore, LocationStore, ContactStore and RecordStore
// with a relational database (sqlite by default, mysql/pg per DB_DRIVER).
type GormStore struct {
	db     *gorm.DB
	alerts *keyedLocks
	owners *keyedLocks
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	db, err := util.CreateDatabaseInstance(&gorm.Config{}, driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.AutoMigrate(
		&models.Alert{},
		&models.Responder{},
		&models.EmergencyContact{},
		&models.UserLocation{},
		&models.NotificationRecord{},
		&models.ChatRoom{},
	); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &GormStore{db: db, alerts: newKeyedLocks(), owners: newKeyedLocks()}, nil
}

func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Create(ctx context.Context, alert *models.Alert) error {
	s.owners.lock(alert.UserID)
	defer s.owners.unlock(alert.UserID)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("user_id = ? AND status = ?", alert.UserID, models.AlertActive).
		Count(&count).Error; err != nil {
		return errors.Wrap(err, "count active alerts")
	}
	if count > 0 {
		return errors.Conflict("user %s already has an active alert", alert.UserID)
	}
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return errors.Wrap(err, "create alert")
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, alertID string) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).Preload("Responders").First(&alert, "id = ?", alertID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("alert %s not found", alertID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get alert")
	}
	return &alert, nil
}

func (s *GormStore) ListActive(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("status = ?", models.AlertActive).
		Order("created_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, errors.Wrap(err, "list active alerts")
	}
	return alerts, nil
}

func (s *GormStore) ListByOwner(ctx context.Context, userID string) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).Preload("Responders").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, errors.Wrap(err, "list alerts by owner")
	}
	return alerts, nil
}

func (s *GormStore) ListResponders(ctx context.Context, alertID string) ([]models.Responder, error) {
	var responders []models.Responder
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at ASC").
		Find(&responders).Error
	if err != nil {
		return nil, errors.Wrap(err, "list responders")
	}
	return responders, nil
}

func (s *GormStore) UpdateEscalation(ctx context.Context, alertID string, newLevel int, newRadius float64) (*models.Alert, error) {
	s.alerts.lock(alertID)
	defer s.alerts.unlock(alertID)

	var alert models.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, "id = ?", alertID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFound("alert %s not found", alertID)
			}
			return errors.Wrap(err, "get alert")
		}
		if !alert.Active() {
			return errors.InvalidTransition("alert %s is not active", alertID)
		}
		if newLevel <= alert.EscalationLevel {
			return errors.InvalidTransition("escalation level must grow: %d -> %d", alert.EscalationLevel, newLevel)
		}
		if newRadius < alert.NotificationRadius {
			return errors.InvalidTransition("notification radius must not shrink: %.0f -> %.0f", alert.NotificationRadius, newRadius)
		}
		alert.EscalationLevel = newLevel
		alert.NotificationRadius = newRadius
		return tx.Model(&alert).Updates(map[string]interface{}{
			"escalation_level":    newLevel,
			"notification_radius": newRadius,
		}).Error
	})
	if err != nil {
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, "update escalation")
	}
	return &alert, nil
}

func (s *GormStore) UpsertResponder(ctx context.Context, alertID string, r *models.Responder) (*models.Responder, error) {
	s.alerts.lock(alertID)
	defer s.alerts.unlock(alertID)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert models.Alert
		if err := tx.First(&alert, "id = ?", alertID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFound("alert %s not found", alertID)
			}
			return errors.Wrap(err, "get alert")
		}

		var existing models.Responder
		err := tx.Where("alert_id = ? AND user_id = ?", alertID, r.UserID).First(&existing).Error
		switch {
		case err == nil:
			// Re-response updates in place, never a second row.
			existing.Status = r.Status
			existing.DistanceMeters = r.DistanceMeters
			existing.ETAMinutes = r.ETAMinutes
			if err := tx.Save(&existing).Error; err != nil {
				return errors.Wrap(err, "update responder")
			}
			*r = existing
		case stderrors.Is(err, gorm.ErrRecordNotFound):
			r.AlertID = alertID
			if r.ID == "" {
				r.ID = util.NewID()
			}
			if err := tx.Create(r).Error; err != nil {
				return errors.Wrap(err, "create responder")
			}
		default:
			return errors.Wrap(err, "lookup responder")
		}

		// Recompute and persist responder count.
		var count int64
		if err := tx.Model(&models.Responder{}).Where("alert_id = ?", alertID).Count(&count).Error; err != nil {
			return errors.Wrap(err, "count responders")
		}
		return tx.Model(&models.Alert{}).Where("id = ?", alertID).
			Update("responder_count", count).Error
	})
	if err != nil {
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, "upsert responder")
	}
	return r, nil
}

func (s *GormStore) Confirm(ctx context.Context, alertID string) (*models.Alert, error) {
	s.alerts.lock(alertID)
	defer s.alerts.unlock(alertID)

	var alert models.Alert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", alertID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("alert %s not found", alertID)
		}
		return nil, errors.Wrap(err, "get alert")
	}
	if !alert.Active() {
		return nil, errors.InvalidTransition("alert %s is already %s", alertID, alert.Status)
	}
	alert.Confirmations++
	if err := s.db.WithContext(ctx).Model(&alert).
		Update("confirmations", alert.Confirmations).Error; err != nil {
		return nil, errors.Wrap(err, "confirm alert")
	}
	return &alert, nil
}

func (s *GormStore) Resolve(ctx context.Context, alertID, ownerID string, status models.AlertStatus) (*models.Alert, error) {
	s.alerts.lock(alertID)
	defer s.alerts.unlock(alertID)

	var alert models.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, "id = ?", alertID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFound("alert %s not found", alertID)
			}
			return errors.Wrap(err, "get alert")
		}
		if alert.UserID != ownerID {
			return errors.Permission("only the alert owner may resolve it")
		}
		if !alert.Active() {
			return errors.InvalidTransition("alert %s is already %s", alertID, alert.Status)
		}
		now := time.Now()
		alert.Status = status
		alert.ResolvedAt = &now
		return tx.Model(&alert).Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": now,
		}).Error
	})
	if err != nil {
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, "resolve alert")
	}
	return &alert, nil
}

func (s *GormStore) UpsertLocation(ctx context.Context, loc *models.UserLocation) error {
	err := s.db.WithContext(ctx).Save(loc).Error
	if err != nil {
		return errors.Wrap(err, "upsert location")
	}
	return nil
}

func (s *GormStore) GetLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	var loc models.UserLocation
	err := s.db.WithContext(ctx).First(&loc, "user_id = ?", userID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("no known location for user %s", userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get location")
	}
	return &loc, nil
}

func (s *GormStore) ListLocationsInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]models.UserLocation, error) {
	var locs []models.UserLocation
	err := s.db.WithContext(ctx).
		Where("latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?", minLat, maxLat, minLon, maxLon).
		Find(&locs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list locations")
	}
	return locs, nil
}

func (s *GormStore) ListNotifiableContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	var contacts []models.EmergencyContact
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND notify_enabled = ?", userID, true).
		Find(&contacts).Error
	if err != nil {
		return nil, errors.Wrap(err, "list contacts")
	}
	return contacts, nil
}

func (s *GormStore) RecordNotification(ctx context.Context, rec *models.NotificationRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.Wrap(err, "record notification")
	}
	return nil
}

func (s *GormStore) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("alert_id = ?", room.AlertID).
		Count(&count).Error; err != nil {
		return errors.Wrap(err, "count rooms")
	}
	if count > 0 {
		return errors.Conflict("alert %s already has a chat room", room.AlertID)
	}
	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		return errors.Wrap(err, "create chat room")
	}
	return nil
}

func (s *GormStore) AddParticipant(ctx context.Context, alertID, userID string) error {
	s.alerts.lock(alertID)
	defer s.alerts.unlock(alertID)

	var room models.ChatRoom
	err := s.db.WithContext(ctx).Where("alert_id = ?", alertID).First(&room).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound("chat room for alert %s not found", alertID)
	}
	if err != nil {
		return errors.Wrap(err, "load chat room")
	}
	for _, p := range room.Participants {
		if p == userID {
			return nil
		}
	}
	room.Participants = append(room.Participants, userID)
	if err := s.db.WithContext(ctx).Model(&room).Update("participants", room.Participants).Error; err != nil {
		return errors.Wrap(err, "update participants")
	}
	return nil
}
