package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"ResQMob/internal/models"
	"ResQMob/pkg/errors"
	"ResQMob/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullStore is everything both backends implement.
type fullStore interface {
	AlertStore
	LocationStore
	ContactStore
	RecordStore
	RoomStore
}

func backends(t *testing.T) map[string]fullStore {
	t.Helper()
	gs, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return map[string]fullStore{
		"memory": NewMemoryStore(),
		"sqlite": gs,
	}
}

func newAlert(userID string) *models.Alert {
	return &models.Alert{
		ID:                 util.NewID(),
		UserID:             userID,
		Type:               models.AlertMedical,
		UrgencyLevel:       3,
		Status:             models.AlertActive,
		Latitude:           23.8103,
		Longitude:          90.4125,
		EscalationLevel:    1,
		NotificationRadius: 3000,
		Confirmations:      1,
	}
}

func TestCreateRejectsSecondActiveAlert(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Create(ctx, newAlert("u1")))

			err := s.Create(ctx, newAlert("u1"))
			require.Error(t, err)
			assert.True(t, errors.IsConflict(err))

			// Another user is unaffected.
			require.NoError(t, s.Create(ctx, newAlert("u2")))
		})
	}
}

func TestCreateAllowsNewAlertAfterResolve(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first := newAlert("u1")
			require.NoError(t, s.Create(ctx, first))
			_, err := s.Resolve(ctx, first.ID, "u1", models.AlertResolved)
			require.NoError(t, err)

			require.NoError(t, s.Create(ctx, newAlert("u1")))
		})
	}
}

func TestGetMissingAlert(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "no-such-alert")
			require.Error(t, err)
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestUpsertResponderDedupes(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alert := newAlert("owner")
			require.NoError(t, s.Create(ctx, alert))

			_, err := s.UpsertResponder(ctx, alert.ID, &models.Responder{
				UserID: "helper", Status: models.ResponderResponding, DistanceMeters: 1200, ETAMinutes: 3,
			})
			require.NoError(t, err)

			// Same user again with a new status replaces, never duplicates.
			_, err = s.UpsertResponder(ctx, alert.ID, &models.Responder{
				UserID: "helper", Status: models.ResponderArrived, DistanceMeters: 0,
			})
			require.NoError(t, err)

			responders, err := s.ListResponders(ctx, alert.ID)
			require.NoError(t, err)
			require.Len(t, responders, 1)
			assert.Equal(t, models.ResponderArrived, responders[0].Status)

			got, err := s.Get(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.ResponderCount)
		})
	}
}

func TestConcurrentRespondersAllRecorded(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alert := newAlert("owner")
			require.NoError(t, s.Create(ctx, alert))

			var wg sync.WaitGroup
			for _, uid := range []string{"helper-a", "helper-b"} {
				wg.Add(1)
				go func(uid string) {
					defer wg.Done()
					_, err := s.UpsertResponder(ctx, alert.ID, &models.Responder{
						UserID: uid, Status: models.ResponderResponding,
					})
					assert.NoError(t, err)
				}(uid)
			}
			wg.Wait()

			got, err := s.Get(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, got.ResponderCount)

			responders, err := s.ListResponders(ctx, alert.ID)
			require.NoError(t, err)
			assert.Len(t, responders, 2)
		})
	}
}

func TestUpdateEscalationMonotonic(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alert := newAlert("owner")
			require.NoError(t, s.Create(ctx, alert))

			updated, err := s.UpdateEscalation(ctx, alert.ID, 2, 4500)
			require.NoError(t, err)
			assert.Equal(t, 2, updated.EscalationLevel)
			assert.InDelta(t, 4500, updated.NotificationRadius, 0.001)

			// Level must grow.
			_, err = s.UpdateEscalation(ctx, alert.ID, 2, 9000)
			assert.True(t, errors.IsInvalidTransition(err))

			// Radius must not shrink.
			_, err = s.UpdateEscalation(ctx, alert.ID, 3, 100)
			assert.True(t, errors.IsInvalidTransition(err))

			_, err = s.Resolve(ctx, alert.ID, "owner", models.AlertResolved)
			require.NoError(t, err)
			_, err = s.UpdateEscalation(ctx, alert.ID, 3, 9000)
			assert.True(t, errors.IsInvalidTransition(err))
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alert := newAlert("owner")
			require.NoError(t, s.Create(ctx, alert))

			_, err := s.Resolve(ctx, alert.ID, "stranger", models.AlertResolved)
			require.Error(t, err)
			assert.True(t, errors.IsPermission(err))

			resolved, err := s.Resolve(ctx, alert.ID, "owner", models.AlertFalseAlarm)
			require.NoError(t, err)
			assert.Equal(t, models.AlertFalseAlarm, resolved.Status)
			require.NotNil(t, resolved.ResolvedAt)

			// A terminal alert cannot be resolved again.
			_, err = s.Resolve(ctx, alert.ID, "owner", models.AlertResolved)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidTransition(err))
		})
	}
}

func TestConfirmIncrements(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alert := newAlert("owner")
			require.NoError(t, s.Create(ctx, alert))

			got, err := s.Confirm(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, got.Confirmations)

			got, err = s.Confirm(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, got.Confirmations)
		})
	}
}

func TestConfirmAfterResolveRejected(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alert := newAlert("owner")
			require.NoError(t, s.Create(ctx, alert))
			_, err := s.Resolve(ctx, alert.ID, "owner", models.AlertResolved)
			require.NoError(t, err)

			_, err = s.Confirm(ctx, alert.ID)
			assert.True(t, errors.IsInvalidTransition(err))

			got, err := s.Get(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.Confirmations)
		})
	}
}

func TestChatRooms(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alert := newAlert("owner")
			require.NoError(t, s.Create(ctx, alert))

			room := &models.ChatRoom{
				ID:           util.NewID(),
				AlertID:      alert.ID,
				Name:         "Emergency Response - medical",
				Participants: models.StringList{"owner"},
			}
			require.NoError(t, s.CreateRoom(ctx, room))

			// One room per alert.
			err := s.CreateRoom(ctx, &models.ChatRoom{ID: util.NewID(), AlertID: alert.ID})
			require.Error(t, err)
			assert.True(t, errors.IsConflict(err))

			require.NoError(t, s.AddParticipant(ctx, alert.ID, "helper"))
			// Joining twice is a no-op.
			require.NoError(t, s.AddParticipant(ctx, alert.ID, "helper"))

			err = s.AddParticipant(ctx, "no-such-alert", "helper")
			assert.True(t, errors.IsNotFound(err))
		})
	}
}
