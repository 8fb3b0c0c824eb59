package responder

import (
	"context"

	"ResQMob/internal/models"
	"ResQMob/internal/notify"
	"ResQMob/internal/store"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/geo"
	"ResQMob/pkg/logger"
	"ResQMob/pkg/metrics"

	"go.uber.org/zap"
)

// NameLookup resolves a user id to a display name. Backed by the external
// user directory; failures degrade to an anonymous name.
type NameLookup interface {
	GetName(ctx context.Context, userID string) (string, error)
}

// Tracker records responder state transitions against an alert and keeps
// the alert owner informed.
type Tracker struct {
	alerts     store.AlertStore
	locations  store.LocationStore
	dispatcher *notify.Dispatcher
	names      NameLookup

	// OnResponded, when set, is invoked after each recorded update.
	OnResponded func(alert *models.Alert, r *models.Responder)
}

func NewTracker(alerts store.AlertStore, locations store.LocationStore, dispatcher *notify.Dispatcher, names NameLookup) *Tracker {
	return &Tracker{alerts: alerts, locations: locations, dispatcher: dispatcher, names: names}
}

// Respond records a responder's status for an active alert. Distance and
// ETA are recomputed from the responder's current position on every call;
// a repeat response from the same user updates the existing record.
func (t *Tracker) Respond(ctx context.Context, alertID, userID string, status models.ResponderStatus) (*models.Responder, error) {
	if !status.Valid() {
		return nil, errors.InvalidTransition("unknown responder status %q", status)
	}

	alert, err := t.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.Active() {
		return nil, errors.InvalidTransition("alert %s is already %s", alertID, alert.Status)
	}

	distance := 0.0
	if loc, err := t.locations.GetLocation(ctx, userID); err == nil {
		distance = geo.Distance(loc.Latitude, loc.Longitude, alert.Latitude, alert.Longitude)
	} else {
		logger.Debug("responder has no known location, recording zero distance",
			zap.String("user_id", userID), zap.Error(err))
	}

	r := &models.Responder{
		AlertID:        alertID,
		UserID:         userID,
		Status:         status,
		DistanceMeters: distance,
	}
	if status == models.ResponderResponding {
		r.ETAMinutes = geo.ETAMinutes(distance)
	}

	saved, err := t.alerts.UpsertResponder(ctx, alertID, r)
	if err != nil {
		return nil, err
	}
	if m := metrics.Global(); m != nil {
		m.ResponderUpdate(string(status))
	}

	name := ""
	if t.names != nil {
		if n, err := t.names.GetName(ctx, userID); err == nil {
			name = n
		}
	}
	t.dispatcher.NotifyOwner(ctx, alert, name, status)

	if t.OnResponded != nil {
		updated, err := t.alerts.Get(ctx, alertID)
		if err == nil {
			t.OnResponded(updated, saved)
		}
	}
	return saved, nil
}
