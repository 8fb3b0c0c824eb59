package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"ResQMob/internal/geoindex"
	"ResQMob/internal/models"
	"ResQMob/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu      sync.Mutex
	failFor map[string]bool
	pushes  []pushCall
}

type pushCall struct {
	userID string
	title  string
	body   string
}

func (p *fakePusher) Push(ctx context.Context, userID, title, body string, extras map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[userID] {
		return fmt.Errorf("device for %s unreachable", userID)
	}
	p.pushes = append(p.pushes, pushCall{userID: userID, title: title, body: body})
	return nil
}

type fakeSMS struct {
	mu   sync.Mutex
	sent map[string]string // phone -> message
	err  error
}

func (s *fakeSMS) Send(ctx context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.sent == nil {
		s.sent = map[string]string{}
	}
	s.sent[phone] = message
	return nil
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:           "alert-1",
		UserID:       "owner",
		Type:         models.AlertFire,
		UrgencyLevel: 4,
		Status:       models.AlertActive,
		Latitude:     23.8103,
		Longitude:    90.4125,
	}
}

func refs(userIDs ...string) []geoindex.UserRef {
	out := make([]geoindex.UserRef, len(userIDs))
	for i, id := range userIDs {
		out[i] = geoindex.UserRef{UserID: id}
	}
	return out
}

func TestNotifyUsersIsolatesFailures(t *testing.T) {
	pusher := &fakePusher{failFor: map[string]bool{"u2": true}}
	s := store.NewMemoryStore()
	d := NewDispatcher(pusher, nil, s, s, 4)

	outcomes := d.NotifyUsers(context.Background(), testAlert(), refs("u1", "u2", "u3"), false)
	require.Len(t, outcomes, 3)

	byUser := map[string]Outcome{}
	for _, o := range outcomes {
		byUser[o.UserID] = o
	}
	assert.True(t, byUser["u1"].OK)
	assert.False(t, byUser["u2"].OK)
	assert.Contains(t, byUser["u2"].Err, "unreachable")
	assert.True(t, byUser["u3"].OK)

	// Every attempt leaves a delivery record, failed ones included.
	records := s.NotificationRecords()
	require.Len(t, records, 3)
	failed := 0
	for _, rec := range records {
		if rec.Outcome == "failed" {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestNotifyUsersTitles(t *testing.T) {
	pusher := &fakePusher{}
	d := NewDispatcher(pusher, nil, nil, nil, 2)
	ctx := context.Background()

	d.NotifyUsers(ctx, testAlert(), refs("u1"), false)
	d.NotifyUsers(ctx, testAlert(), refs("u1"), true)

	require.Len(t, pusher.pushes, 2)
	assert.Equal(t, "EMERGENCY ALERT NEARBY", pusher.pushes[0].title)
	assert.Equal(t, "ESCALATED EMERGENCY ALERT", pusher.pushes[1].title)
}

func TestNotifyContacts(t *testing.T) {
	s := store.NewMemoryStore()
	s.SetContacts("owner", []models.EmergencyContact{
		{UserID: "owner", Name: "Mom", Phone: "+8801700000001", NotifyEnabled: true},
		{UserID: "owner", Name: "Work", Phone: "+8801700000002", NotifyEnabled: true},
	})
	sms := &fakeSMS{}
	d := NewDispatcher(&fakePusher{}, sms, s, s, 2)

	alert := testAlert()
	alert.Address = "12 Mirpur Road, Dhaka"
	outcomes := d.NotifyContacts(context.Background(), "owner", "Rahim", alert)
	require.Len(t, outcomes, 2)

	msg := sms.sent["+8801700000001"]
	assert.Equal(t, "EMERGENCY ALERT: Rahim has sent an SOS alert. Location: 12 Mirpur Road, Dhaka. Please check the ResQMob app for details.", msg)
}

func TestNotifyContactsFallbackCopy(t *testing.T) {
	s := store.NewMemoryStore()
	s.SetContacts("owner", []models.EmergencyContact{
		{UserID: "owner", Name: "Mom", Phone: "+8801700000001", NotifyEnabled: true},
	})
	sms := &fakeSMS{}
	d := NewDispatcher(&fakePusher{}, sms, s, s, 2)

	// No display name and no resolved address.
	d.NotifyContacts(context.Background(), "owner", "", testAlert())

	msg := sms.sent["+8801700000001"]
	assert.Contains(t, msg, "your contact has sent an SOS alert")
	assert.Contains(t, msg, "Location: Location shared.")
}

func TestNotifyOwner(t *testing.T) {
	pusher := &fakePusher{}
	d := NewDispatcher(pusher, nil, nil, nil, 2)

	d.NotifyOwner(context.Background(), testAlert(), "Karim", models.ResponderResponding)
	require.Len(t, pusher.pushes, 1)
	assert.Equal(t, "owner", pusher.pushes[0].userID)
	assert.Equal(t, "Help is Coming!", pusher.pushes[0].title)
	assert.Equal(t, "Karim is responding to your emergency alert.", pusher.pushes[0].body)

	d.NotifyOwner(context.Background(), testAlert(), "", models.ResponderArrived)
	assert.Equal(t, "Someone is arrived to your emergency alert.", pusher.pushes[1].body)
}

func TestNotifyRespondersCopyByStatus(t *testing.T) {
	pusher := &fakePusher{}
	d := NewDispatcher(pusher, nil, nil, nil, 2)
	responders := []models.Responder{{UserID: "helper"}}

	d.NotifyResponders(context.Background(), testAlert(), responders, models.AlertResolved)
	d.NotifyResponders(context.Background(), testAlert(), responders, models.AlertFalseAlarm)

	require.Len(t, pusher.pushes, 2)
	assert.Equal(t, "Emergency Resolved", pusher.pushes[0].title)
	assert.Equal(t, "False Alarm", pusher.pushes[1].title)
}
