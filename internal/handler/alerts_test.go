package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ResQMob/internal/engine"
	"ResQMob/internal/escalation"
	"ResQMob/internal/geoindex"
	"ResQMob/internal/notify"
	"ResQMob/internal/responder"
	"ResQMob/internal/store"
	"ResQMob/pkg/config"
	"ResQMob/pkg/geo"
	"ResQMob/pkg/response"
	"ResQMob/pkg/sse"
	"ResQMob/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPusher struct{}

func (nopPusher) Push(ctx context.Context, userID, title, body string, extras map[string]interface{}) error {
	return nil
}

type fixedResolver geo.Point

func (r fixedResolver) GetCurrentLocation(ctx context.Context, userID string) (*geo.Point, error) {
	pt := geo.Point(r)
	return &pt, nil
}

type noNames struct{}

func (noNames) GetName(ctx context.Context, userID string) (string, error) { return "", nil }

func newTestRouter(t *testing.T) (*gin.Engine, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.GlobalConfig = &config.Config{APIPrefix: "/api"}

	s := store.NewMemoryStore()
	dispatcher := notify.NewDispatcher(nopPusher{}, nil, s, s, 2)
	esc := escalation.NewEscalator(s, geoindex.NewStoreIndex(s), dispatcher, time.Hour, 5)
	tracker := responder.NewTracker(s, s, dispatcher, noNames{})
	eng := engine.New(
		s, s, geoindex.NewStoreIndex(s), dispatcher, esc, tracker,
		fixedResolver(geo.Point{Latitude: 23.8103, Longitude: 90.4125}),
		noNames{}, &engine.StoreChatRooms{Rooms: s},
		engine.Options{BaseRadiusMeters: 1000, LocationTimeout: time.Second},
	)

	r := gin.New()
	NewHandlers(eng, nil, sse.NewHub(time.Minute), websocket.NewHub()).Register(r)
	return r, s
}

func doJSON(t *testing.T, r *gin.Engine, method, path, userID, body string) (*httptest.ResponseRecorder, response.Body) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	return w, parsed
}

func createAlert(t *testing.T, r *gin.Engine, userID string) string {
	t.Helper()
	w, body := doJSON(t, r, http.MethodPost, "/api/alerts", userID,
		`{"type":"medical","urgencyLevel":3,"message":"help"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := body.Data.(map[string]interface{})
	return data["id"].(string)
}

func TestCreateAlertEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/alerts", "u1",
		`{"type":"medical","urgencyLevel":3,"message":"help"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, body.Code)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, float64(3000), data["notificationRadius"])

	// A second active alert for the same user is a conflict.
	w, _ = doJSON(t, r, http.MethodPost, "/api/alerts", "u1",
		`{"type":"fire","urgencyLevel":2}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateAlertRequiresIdentity(t *testing.T) {
	r, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodPost, "/api/alerts", "",
		`{"type":"medical","urgencyLevel":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondAndResolveEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createAlert(t, r, "owner")

	w, body := doJSON(t, r, http.MethodPost, "/api/alerts/"+id+"/respond", "helper",
		`{"status":"responding"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, "responding", data["status"])

	// Only the owner may resolve.
	w, _ = doJSON(t, r, http.MethodPost, "/api/alerts/"+id+"/resolve", "helper",
		`{"status":"resolved"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/alerts/"+id+"/resolve", "owner",
		`{"status":"resolved"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// Responding to a terminal alert is rejected.
	w, _ = doJSON(t, r, http.MethodPost, "/api/alerts/"+id+"/respond", "helper",
		`{"status":"arrived"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEscalateEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createAlert(t, r, "owner")

	w, body := doJSON(t, r, http.MethodPost, "/api/alerts/"+id+"/escalate", "owner", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["escalationLevel"])
	assert.Equal(t, float64(4500), data["notificationRadius"])
}

func TestConfirmEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createAlert(t, r, "owner")

	w, body := doJSON(t, r, http.MethodPost, "/api/alerts/"+id+"/confirm", "witness", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["confirmations"])
}

func TestNearbyEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	createAlert(t, r, "owner")

	w, body := doJSON(t, r, http.MethodGet, "/api/alerts/nearby?lat=23.8103&lng=90.4125&radius=5000", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	alerts := body.Data.([]interface{})
	assert.Len(t, alerts, 1)

	// Missing coordinates fail fast.
	w, _ = doJSON(t, r, http.MethodGet, "/api/alerts/nearby", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserAlertsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createAlert(t, r, "owner")

	w, body := doJSON(t, r, http.MethodGet, "/api/alerts/user/owner", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	alerts := body.Data.([]interface{})
	require.Len(t, alerts, 1)
	assert.Equal(t, id, alerts[0].(map[string]interface{})["id"])
}

func TestGetAlertEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createAlert(t, r, "owner")

	w, _ := doJSON(t, r, http.MethodGet, "/api/alerts/"+id, "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/alerts/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportLocationEndpoint(t *testing.T) {
	r, s := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/locations", "u1",
		`{"latitude":23.9,"longitude":90.5,"accuracy":8}`)
	require.Equal(t, http.StatusOK, w.Code)

	loc, err := s.GetLocation(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 23.9, loc.Latitude)
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
