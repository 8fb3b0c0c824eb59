package engine

import (
	"context"
	"strconv"
	"time"

	"ResQMob/internal/escalation"
	"ResQMob/internal/geoindex"
	"ResQMob/internal/models"
	"ResQMob/internal/notify"
	"ResQMob/internal/responder"
	"ResQMob/internal/store"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/geo"
	"ResQMob/pkg/logger"
	"ResQMob/pkg/metrics"
	"ResQMob/pkg/util"

	"go.uber.org/zap"
)

const defaultNearbyRadius = 10000.0

// Options carries the engine tunables.
type Options struct {
	BaseRadiusMeters float64       // initial radius per urgency step
	LocationTimeout  time.Duration // bound on location resolution
}

// Engine is the alert lifecycle controller: create, fan out, escalate,
// track responders, resolve. All alert state flows through the AlertStore;
// notifications never gate a state transition.
type Engine struct {
	alerts    store.AlertStore
	locations store.LocationStore
	geo       geoindex.GeoIndex

	dispatcher *notify.Dispatcher
	escalator  *escalation.Escalator
	tracker    *responder.Tracker

	resolver  LocationResolver
	directory UserDirectory
	rooms     ChatRooms
	geoTrack  GeoTracker

	opts Options

	// OnEvent receives lifecycle events for the live feed. Optional.
	OnEvent func(event string, alert *models.Alert)
}

func New(
	alerts store.AlertStore,
	locations store.LocationStore,
	geoIdx geoindex.GeoIndex,
	dispatcher *notify.Dispatcher,
	escalator *escalation.Escalator,
	tracker *responder.Tracker,
	resolver LocationResolver,
	directory UserDirectory,
	rooms ChatRooms,
	opts Options,
) *Engine {
	if opts.BaseRadiusMeters <= 0 {
		opts.BaseRadiusMeters = 1000
	}
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = 10 * time.Second
	}
	e := &Engine{
		alerts:     alerts,
		locations:  locations,
		geo:        geoIdx,
		dispatcher: dispatcher,
		escalator:  escalator,
		tracker:    tracker,
		resolver:   resolver,
		directory:  directory,
		rooms:      rooms,
		opts:       opts,
	}
	escalator.OnEscalated = func(a *models.Alert) { e.publish("alert_escalated", a) }
	tracker.OnResponded = func(a *models.Alert, _ *models.Responder) { e.publish("alert_responded", a) }
	return e
}

// SetGeoTracker wires the optional secondary spatial index.
func (e *Engine) SetGeoTracker(t GeoTracker) { e.geoTrack = t }

func (e *Engine) publish(event string, alert *models.Alert) {
	if e.OnEvent != nil {
		e.OnEvent(event, alert)
	}
}

// CreateAlert raises a new SOS alert and fans the first notification wave
// out to nearby users and the owner's emergency contacts.
func (e *Engine) CreateAlert(ctx context.Context, userID string, alertType models.AlertType, urgency int, message string, isAnonymous bool) (*models.Alert, error) {
	if !alertType.Valid() {
		return nil, errors.InvalidTransition("unknown alert type %q", alertType)
	}
	if urgency < 1 || urgency > 5 {
		return nil, errors.InvalidTransition("urgency level must be 1-5, got %d", urgency)
	}

	locCtx, cancel := context.WithTimeout(ctx, e.opts.LocationTimeout)
	defer cancel()
	loc, err := e.resolver.GetCurrentLocation(locCtx, userID)
	if err != nil || loc == nil {
		return nil, errors.LocationUnavailable("cannot resolve current location for user %s", userID).
			WithContext("cause", errors.GetMessage(err))
	}

	alert := &models.Alert{
		ID:                 util.NewID(),
		UserID:             userID,
		Type:               alertType,
		UrgencyLevel:       urgency,
		Status:             models.AlertActive,
		Latitude:           loc.Latitude,
		Longitude:          loc.Longitude,
		Accuracy:           loc.Accuracy,
		Address:            loc.Address,
		Message:            message,
		EscalationLevel:    1,
		NotificationRadius: e.opts.BaseRadiusMeters * float64(urgency),
		Confirmations:      1,
		IsAnonymous:        isAnonymous,
	}
	if err := e.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	if m := metrics.Global(); m != nil {
		m.AlertCreated(string(alertType), strconv.Itoa(urgency))
	}
	logger.Info("alert created",
		zap.String("alert_id", alert.ID),
		zap.String("type", string(alertType)),
		zap.Int("urgency", urgency),
		zap.Float64("radius_m", alert.NotificationRadius),
	)

	// Alert state is committed; everything below is best-effort fan-out.
	refs, err := e.geo.FindWithinRadius(ctx, alert.Origin(), alert.NotificationRadius, 0, userID)
	if err != nil {
		logger.Warn("nearby query failed on create", zap.String("alert_id", alert.ID), zap.Error(err))
	} else {
		e.dispatcher.NotifyUsers(ctx, alert, refs, false)
	}

	ownerName := ""
	if !isAnonymous && e.directory != nil {
		if n, err := e.directory.GetName(ctx, userID); err == nil {
			ownerName = n
		}
	}
	e.dispatcher.NotifyContacts(ctx, userID, ownerName, alert)

	if e.rooms != nil {
		if _, err := e.rooms.CreateRoom(ctx, alert); err != nil {
			logger.Warn("emergency chat room creation failed",
				zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}

	e.escalator.Register(alert.ID)
	e.publish("alert_created", alert)
	return alert, nil
}

// RespondToAlert records a responder status change and pulls the responder
// into the alert's chat room.
func (e *Engine) RespondToAlert(ctx context.Context, alertID, userID string, status models.ResponderStatus) (*models.Responder, error) {
	r, err := e.tracker.Respond(ctx, alertID, userID, status)
	if err != nil {
		return nil, err
	}
	if e.rooms != nil && status != models.ResponderUnavailable {
		if err := e.rooms.Join(ctx, alertID, userID); err != nil {
			logger.Debug("chat room join failed",
				zap.String("alert_id", alertID), zap.String("user_id", userID), zap.Error(err))
		}
	}
	return r, nil
}

// ResolveAlert terminates an active alert. Only the owner may resolve.
func (e *Engine) ResolveAlert(ctx context.Context, alertID, userID string, status models.AlertStatus) (*models.Alert, error) {
	if !status.Terminal() {
		return nil, errors.InvalidTransition("resolution status must be resolved or false_alarm, got %q", status)
	}

	alert, err := e.alerts.Resolve(ctx, alertID, userID, status)
	if err != nil {
		return nil, err
	}
	// Hard barrier: after this returns no escalation fires for the alert.
	e.escalator.Deregister(alertID)
	if m := metrics.Global(); m != nil {
		m.AlertResolved(string(status))
	}
	logger.Info("alert resolved",
		zap.String("alert_id", alertID), zap.String("status", string(status)))

	responders, err := e.alerts.ListResponders(ctx, alertID)
	if err != nil {
		logger.Warn("list responders failed on resolve", zap.String("alert_id", alertID), zap.Error(err))
	} else {
		e.dispatcher.NotifyResponders(ctx, alert, responders, status)
	}

	e.publish("alert_resolved", alert)
	return alert, nil
}

// EscalateAlert applies one escalation step immediately.
func (e *Engine) EscalateAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return e.escalator.EscalateNow(ctx, alertID)
}

// ConfirmAlert lets a nearby user corroborate an active alert.
func (e *Engine) ConfirmAlert(ctx context.Context, alertID, userID string) (*models.Alert, error) {
	confirmed, err := e.alerts.Confirm(ctx, alertID)
	if err != nil {
		return nil, err
	}
	logger.Debug("alert confirmed",
		zap.String("alert_id", alertID), zap.String("by", userID))
	return confirmed, nil
}

// GetActiveAlertsNear returns active alerts within radiusMeters of the
// point, nearest first is not guaranteed. Anonymous alerts have the owner
// masked.
func (e *Engine) GetActiveAlertsNear(ctx context.Context, lat, lon, radiusMeters float64) ([]models.Alert, error) {
	if radiusMeters <= 0 {
		radiusMeters = defaultNearbyRadius
	}
	active, err := e.alerts.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Alert, 0, len(active))
	for _, a := range active {
		if geo.Distance(lat, lon, a.Latitude, a.Longitude) > radiusMeters {
			continue
		}
		if a.IsAnonymous {
			a.UserID = ""
		}
		out = append(out, a)
	}
	return out, nil
}

// GetAlert returns one alert with its responders.
func (e *Engine) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return e.alerts.Get(ctx, alertID)
}

// GetUserAlerts returns the owner's alert history, newest first.
func (e *Engine) GetUserAlerts(ctx context.Context, userID string) ([]models.Alert, error) {
	return e.alerts.ListByOwner(ctx, userID)
}

// ReportLocation records a client position update for the geo index.
func (e *Engine) ReportLocation(ctx context.Context, userID string, lat, lon, accuracy float64) error {
	loc := &models.UserLocation{UserID: userID, Latitude: lat, Longitude: lon, Accuracy: accuracy}
	if err := e.locations.UpsertLocation(ctx, loc); err != nil {
		return err
	}
	if e.geoTrack != nil {
		if err := e.geoTrack.Track(ctx, userID, lat, lon); err != nil {
			logger.Warn("geo tracker update failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}
