package escalation

import (
	"context"
	"sync"
	"time"

	"ResQMob/internal/geoindex"
	"ResQMob/internal/models"
	"ResQMob/internal/notify"
	"ResQMob/internal/store"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/logger"
	"ResQMob/pkg/metrics"

	"go.uber.org/zap"
)

// Escalator widens an alert's notification radius on a timer until the
// alert is resolved or the maximum escalation level is reached. One timer
// per active alert. Deregister is a hard barrier: once it returns, no
// further firing for that alert can be observed.
type Escalator struct {
	alerts     store.AlertStore
	geo        geoindex.GeoIndex
	dispatcher *notify.Dispatcher

	interval time.Duration
	maxLevel int

	mu      sync.Mutex
	entries map[string]*entry

	// OnEscalated, when set, is invoked after a successful escalation step
	// (feeds the live event stream).
	OnEscalated func(alert *models.Alert)
}

type entry struct {
	alertID string
	timer   *time.Timer

	// mu serializes a firing against cancellation; stopped is only
	// read/written under it.
	mu      sync.Mutex
	stopped bool
}

func NewEscalator(alerts store.AlertStore, geo geoindex.GeoIndex, dispatcher *notify.Dispatcher, interval time.Duration, maxLevel int) *Escalator {
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	if maxLevel <= 0 {
		maxLevel = 5
	}
	return &Escalator{
		alerts:     alerts,
		geo:        geo,
		dispatcher: dispatcher,
		interval:   interval,
		maxLevel:   maxLevel,
		entries:    make(map[string]*entry),
	}
}

// Register starts the escalation timer for a newly created alert.
func (e *Escalator) Register(alertID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[alertID]; ok {
		return
	}
	ent := &entry{alertID: alertID}
	ent.timer = time.AfterFunc(e.interval, func() { e.fire(ent) })
	e.entries[alertID] = ent
}

// Deregister cancels the alert's timer. A firing already in progress
// completes first; after return nothing more fires for this alert.
func (e *Escalator) Deregister(alertID string) {
	e.mu.Lock()
	ent, ok := e.entries[alertID]
	if ok {
		delete(e.entries, alertID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	ent.mu.Lock()
	ent.stopped = true
	ent.timer.Stop()
	ent.mu.Unlock()
}

// Registered reports whether the alert currently has a live timer.
func (e *Escalator) Registered(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.entries[alertID]
	return ok
}

func (e *Escalator) fire(ent *entry) {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alert, err := e.step(ctx, ent.alertID)
	if err != nil {
		if errors.IsInvalidTransition(err) || errors.IsNotFound(err) {
			// Alert resolved under us; stop quietly.
			e.remove(ent)
			return
		}
		logger.Warn("escalation step failed", zap.String("alert_id", ent.alertID), zap.Error(err))
		// Transient failure: try again next interval.
		ent.timer.Reset(e.interval)
		return
	}

	if alert.EscalationLevel >= e.maxLevel {
		logger.Info("alert reached max escalation level",
			zap.String("alert_id", alert.ID), zap.Int("level", alert.EscalationLevel))
		e.remove(ent)
		return
	}
	ent.timer.Reset(e.interval)
}

func (e *Escalator) remove(ent *entry) {
	ent.stopped = true
	e.mu.Lock()
	delete(e.entries, ent.alertID)
	e.mu.Unlock()
}

// EscalateNow applies one escalation step immediately (the manual trigger).
// Same effect as a timer firing.
func (e *Escalator) EscalateNow(ctx context.Context, alertID string) (*models.Alert, error) {
	e.mu.Lock()
	ent := e.entries[alertID]
	e.mu.Unlock()

	if ent != nil {
		ent.mu.Lock()
		defer ent.mu.Unlock()
		if ent.stopped {
			return nil, errors.InvalidTransition("alert %s is no longer escalating", alertID)
		}
	}
	return e.step(ctx, alertID)
}

// step performs one escalation: bump level, widen radius, notify the users
// newly covered by the wider ring.
func (e *Escalator) step(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := e.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.Active() {
		return nil, errors.InvalidTransition("alert %s is not active", alertID)
	}
	if alert.EscalationLevel >= e.maxLevel {
		return nil, errors.InvalidTransition("alert %s already at max escalation level %d", alertID, e.maxLevel)
	}

	prevRadius := alert.NotificationRadius
	newRadius := prevRadius * (1 + float64(alert.EscalationLevel)*0.5)
	newLevel := alert.EscalationLevel + 1

	updated, err := e.alerts.UpdateEscalation(ctx, alertID, newLevel, newRadius)
	if err != nil {
		return nil, err
	}
	if m := metrics.Global(); m != nil {
		m.Escalated()
	}
	logger.Info("alert escalated",
		zap.String("alert_id", alertID),
		zap.Int("level", newLevel),
		zap.Float64("radius_m", newRadius),
	)

	// The radius update is committed; notification is best effort from here.
	refs, err := e.geo.FindWithinRadius(ctx, updated.Origin(), newRadius, prevRadius, updated.UserID)
	if err != nil {
		logger.Warn("nearby query failed during escalation",
			zap.String("alert_id", alertID), zap.Error(err))
	} else {
		e.dispatcher.NotifyUsers(ctx, updated, refs, true)
	}

	if e.OnEscalated != nil {
		e.OnEscalated(updated)
	}
	return updated, nil
}
