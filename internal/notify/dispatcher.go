package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ResQMob/internal/geoindex"
	"ResQMob/internal/models"
	"ResQMob/internal/store"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/logger"
	"ResQMob/pkg/metrics"
	"ResQMob/pkg/notification"

	"go.uber.org/zap"
)

const (
	titleNearby    = "EMERGENCY ALERT NEARBY"
	titleEscalated = "ESCALATED EMERGENCY ALERT"
	titleResponse  = "Help is Coming!"
	titleResolved  = "Emergency Resolved"
	titleFalse     = "False Alarm"

	bodyResolved = "The emergency has been resolved. Thank you for your help!"
	bodyFalse    = "This was a false alarm. Thank you for your quick response!"
)

// Outcome is the per-recipient delivery result. Failures are collected,
// never surfaced as fatal errors to the alert state machine.
type Outcome struct {
	UserID  string `json:"userId,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Channel string `json:"channel"` // push | sms
	OK      bool   `json:"ok"`
	Err     string `json:"error,omitempty"`
}

// Dispatcher fans notifications out over the push and SMS transports.
// Every method is best effort: alert state never depends on delivery.
type Dispatcher struct {
	push     notification.Pusher
	sms      notification.SMSSender
	contacts store.ContactStore
	records  store.RecordStore
	workers  int
}

func NewDispatcher(push notification.Pusher, sms notification.SMSSender, contacts store.ContactStore, records store.RecordStore, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 8
	}
	return &Dispatcher{push: push, sms: sms, contacts: contacts, records: records, workers: workers}
}

func alertExtras(alert *models.Alert, kind string) map[string]interface{} {
	return map[string]interface{}{
		"alert_id":      alert.ID,
		"alert_type":    string(alert.Type),
		"urgency_level": alert.UrgencyLevel,
		"location": map[string]float64{
			"latitude":  alert.Latitude,
			"longitude": alert.Longitude,
		},
		"type": kind,
	}
}

// NotifyUsers pushes the alert to every recipient in parallel, bounded by
// the worker count. One failed delivery never aborts the rest.
func (d *Dispatcher) NotifyUsers(ctx context.Context, alert *models.Alert, recipients []geoindex.UserRef, isEscalation bool) []Outcome {
	if len(recipients) == 0 {
		return nil
	}

	title := titleNearby
	if isEscalation {
		title = titleEscalated
	}
	body := fmt.Sprintf("%s emergency reported nearby. Tap to help.", strings.ToUpper(string(alert.Type)))
	extras := alertExtras(alert, "sos_alert")

	outcomes := make([]Outcome, len(recipients))
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup

	for i, ref := range recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, userID string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			outcomes[i] = d.pushTo(ctx, alert, userID, title, body, extras)
		}(i, ref.UserID)
	}
	wg.Wait()

	d.logFailures(alert.ID, outcomes)
	return outcomes
}

// NotifyContacts texts the owner's emergency contacts flagged for
// notification.
func (d *Dispatcher) NotifyContacts(ctx context.Context, ownerID string, ownerName string, alert *models.Alert) []Outcome {
	contacts, err := d.contacts.ListNotifiableContacts(ctx, ownerID)
	if err != nil {
		logger.Warn("load emergency contacts failed", zap.String("user_id", ownerID), zap.Error(err))
		return nil
	}
	if len(contacts) == 0 {
		return nil
	}

	address := alert.Address
	if address == "" {
		address = "Location shared"
	}
	if ownerName == "" {
		ownerName = "your contact"
	}

	outcomes := make([]Outcome, 0, len(contacts))
	for _, contact := range contacts {
		msg := fmt.Sprintf(
			"EMERGENCY ALERT: %s has sent an SOS alert. Location: %s. Please check the ResQMob app for details.",
			ownerName, address,
		)
		out := Outcome{Phone: contact.Phone, Channel: "sms", OK: true}
		if err := d.sms.Send(ctx, contact.Phone, msg); err != nil {
			out.OK = false
			out.Err = err.Error()
		}
		d.record(ctx, alert.ID, "", out)
		outcomes = append(outcomes, out)
	}

	d.logFailures(alert.ID, outcomes)
	return outcomes
}

// NotifyOwner tells the alert owner that a responder changed status.
func (d *Dispatcher) NotifyOwner(ctx context.Context, alert *models.Alert, responderName string, status models.ResponderStatus) Outcome {
	if responderName == "" {
		responderName = "Someone"
	}
	body := fmt.Sprintf("%s is %s to your emergency alert.", responderName, status)
	out := d.pushTo(ctx, alert, alert.UserID, titleResponse, body, alertExtras(alert, "sos_response"))
	d.logFailures(alert.ID, []Outcome{out})
	return out
}

// NotifyResponders tells every responder the alert reached a terminal state.
func (d *Dispatcher) NotifyResponders(ctx context.Context, alert *models.Alert, responders []models.Responder, status models.AlertStatus) []Outcome {
	if len(responders) == 0 {
		return nil
	}

	title, body := titleResolved, bodyResolved
	if status == models.AlertFalseAlarm {
		title, body = titleFalse, bodyFalse
	}
	extras := alertExtras(alert, "sos_resolution")

	outcomes := make([]Outcome, len(responders))
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	for i, r := range responders {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, userID string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			outcomes[i] = d.pushTo(ctx, alert, userID, title, body, extras)
		}(i, r.UserID)
	}
	wg.Wait()

	d.logFailures(alert.ID, outcomes)
	return outcomes
}

func (d *Dispatcher) pushTo(ctx context.Context, alert *models.Alert, userID, title, body string, extras map[string]interface{}) Outcome {
	out := Outcome{UserID: userID, Channel: "push", OK: true}
	if err := d.push.Push(ctx, userID, title, body, extras); err != nil {
		out.OK = false
		out.Err = err.Error()
	}
	d.record(ctx, alert.ID, title, out)
	return out
}

func (d *Dispatcher) record(ctx context.Context, alertID, title string, out Outcome) {
	if m := metrics.Global(); m != nil {
		m.NotificationSent(out.Channel, out.OK)
	}
	if d.records == nil {
		return
	}
	rec := &models.NotificationRecord{
		AlertID: alertID,
		UserID:  out.UserID,
		Channel: out.Channel,
		Title:   title,
		Outcome: "sent",
		Error:   out.Err,
	}
	if !out.OK {
		rec.Outcome = "failed"
	}
	if err := d.records.RecordNotification(ctx, rec); err != nil {
		logger.Warn("record notification failed", zap.String("alert_id", alertID), zap.Error(err))
	}
}

func (d *Dispatcher) logFailures(alertID string, outcomes []Outcome) {
	failed := 0
	for _, o := range outcomes {
		if !o.OK {
			failed++
		}
	}
	if failed == 0 {
		return
	}
	err := errors.Dispatch("%d of %d notifications failed", failed, len(outcomes))
	logger.Warn("notification dispatch incomplete",
		zap.String("alert_id", alertID),
		zap.Int("failed", failed),
		zap.Int("total", len(outcomes)),
		zap.Error(err),
	)
}
