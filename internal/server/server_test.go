package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rally/internal/config"
	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/service"
	"rally/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-characters"

type testServer struct {
	srv    *Server
	app    *fiber.App
	events *notifications.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:                 testSecret,
		Port:                      "0",
		FeatureFlags:              "conversion_prompts=on",
		ConversionSoftThreshold:   5,
		ConversionStrongThreshold: 10,
		ConversionPromptCooldown:  24 * time.Hour,
		ConversionDismissLimit:    3,
		ReactionRateLimit:         60,
		ReactionRateLimitWindow:   time.Minute,
	}
	events := &notifications.Recorder{}
	srv, err := NewServerWithDeps(cfg, testutil.NewSQLiteDB(t), nil, events)
	require.NoError(t, err)
	return &testServer{srv: srv, app: srv.App(), events: events}
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": fmt.Sprintf("%d", userID),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do sends a request as userID (0 for anonymous) and decodes the JSON reply
// into out when out is non-nil.
func (ts *testServer) do(t *testing.T, method, path string, userID uint, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) createPost(t *testing.T, ownerID uint) *models.Post {
	t.Helper()
	var post models.Post
	status := ts.do(t, http.MethodPost, "/api/posts", ownerID, fiber.Map{
		"title":      "Pickup basketball",
		"location":   "Riverside courts",
		"expires_at": time.Now().Add(48 * time.Hour),
		"tags":       []string{"Basketball", "#outdoors"},
	}, &post)
	require.Equal(t, http.StatusCreated, status)
	return &post
}

func convertBody(maxAttendees int) fiber.Map {
	start := time.Now().Add(72 * time.Hour)
	return fiber.Map{
		"start_time":    start,
		"end_time":      start.Add(2 * time.Hour),
		"max_attendees": maxAttendees,
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health/live", 0, nil, nil))

	var ready map[string]interface{}
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health/ready", 0, nil, &ready))
	assert.Equal(t, "degraded", ready["status"])
}

func TestAuthRequiredOnWrites(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/posts", 0, fiber.Map{"title": "x"}, nil))
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/activities/1/rsvps", 0, nil, nil))
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	var errResp models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/posts/abc", 0, nil, &errResp))
	assert.Equal(t, models.CodeValidation, errResp.Code)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/posts/999", 0, nil, &errResp))
	assert.Equal(t, models.CodeNotFound, errResp.Code)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/posts", 1, fiber.Map{
		"title": "  ", "expires_at": time.Now().Add(time.Hour),
	}, &errResp))
}

func TestPostToActivityFlow(t *testing.T) {
	ts := newTestServer(t)
	post := ts.createPost(t, 1)
	assert.Equal(t, []string{"basketball", "outdoors"}, post.TagNames())

	var reaction service.ReactionResult
	for u := uint(2); u <= 6; u++ {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, fmt.Sprintf("/api/posts/%d/reactions", post.ID), u,
			fiber.Map{"type": models.ReactionInterested}, &reaction))
	}
	assert.Equal(t, service.ReactionOn, reaction.Action)
	assert.Equal(t, 5, reaction.ReactionCount)
	require.NotNil(t, reaction.Eligibility)
	assert.True(t, reaction.Eligibility.Prompted)
	assert.Equal(t, service.UrgencySoft, reaction.Eligibility.Urgency)
	assert.Len(t, ts.events.OfType(notifications.EventConversionPrompted), 1)

	convertPath := fmt.Sprintf("/api/posts/%d/convert", post.ID)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, convertPath, 2, convertBody(1), nil))

	var conversion service.ConversionResult
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, convertPath, 1, convertBody(1), &conversion))
	require.NotNil(t, conversion.Activity)
	activityID := conversion.Activity.ID
	assert.Equal(t, models.ActivityStatusPublished, conversion.Activity.Status)
	assert.Equal(t, "Pickup basketball", conversion.Activity.Title)
	assert.Equal(t, 5, conversion.Record.ReactionCount)

	var errResp models.ErrorResponse
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, convertPath, 1, convertBody(1), &errResp))
	assert.Equal(t, models.CodeConflict, errResp.Code)

	var record models.ConversionRecord
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d/conversion", post.ID), 1, nil, &record))
	assert.Equal(t, activityID, record.ActivityID)

	rsvpPath := fmt.Sprintf("/api/activities/%d/rsvps", activityID)
	var first, second models.Rsvp
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, rsvpPath, 2, nil, &first))
	assert.Equal(t, models.RsvpStatusAttending, first.Status)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, rsvpPath, 3, nil, &second))
	assert.Equal(t, models.RsvpStatusWaitlist, second.Status)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, rsvpPath, 3, nil, nil))

	var preview service.ReservationPreview
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, rsvpPath+"/preview", 4, nil, &preview))
	assert.Equal(t, models.RsvpStatusWaitlist, preview.Status)

	var cancelled models.Rsvp
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, fmt.Sprintf("/api/rsvps/%d", first.ID), 2, nil, &cancelled))
	assert.Equal(t, models.RsvpStatusDeclined, cancelled.Status)

	var stats service.AttendanceStats
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, fmt.Sprintf("/api/activities/%d/stats", activityID), 0, nil, &stats))
	assert.Equal(t, 1, stats.Attending)
	assert.Equal(t, 0, stats.Waitlist)
	assert.Equal(t, 1, stats.Declined)
	assert.Equal(t, 1, stats.CurrentAttendees)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, rsvpPath, 5, nil, nil))
	var rows []models.Rsvp
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, rsvpPath, 1, nil, &rows))
	require.Len(t, rows, 2)
	for _, r := range rows {
		if r.ID == second.ID {
			assert.Equal(t, models.RsvpStatusAttending, r.Status)
			assert.NotNil(t, r.PromotedAt)
		}
	}
	assert.Len(t, ts.events.OfType(notifications.EventReservationPromoted), 1)

	var attended models.Rsvp
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, fmt.Sprintf("/api/rsvps/%d/attended", second.ID), 3, nil, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, fmt.Sprintf("/api/rsvps/%d/attended", second.ID), 1, nil, &attended))
	assert.True(t, attended.Attended)
}

func TestActivityManagement(t *testing.T) {
	ts := newTestServer(t)
	start := time.Now().Add(24 * time.Hour)

	var activity models.Activity
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/activities", 1, fiber.Map{
		"title":         "Board game night",
		"start_time":    start,
		"end_time":      start.Add(3 * time.Hour),
		"max_attendees": 1,
		"status":        models.ActivityStatusPublished,
	}, &activity))

	rsvpPath := fmt.Sprintf("/api/activities/%d/rsvps", activity.ID)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, rsvpPath, 2, nil, nil))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, rsvpPath, 3, nil, nil))

	capacityPath := fmt.Sprintf("/api/activities/%d/capacity", activity.ID)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPut, capacityPath, 2, fiber.Map{"max_attendees": 5}, nil))

	var capResp struct {
		Activity models.Activity `json:"activity"`
		Promoted []models.Rsvp   `json:"promoted"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, capacityPath, 1, fiber.Map{"max_attendees": 2}, &capResp))
	assert.Equal(t, 2, capResp.Activity.CurrentAttendees)
	require.Len(t, capResp.Promoted, 1)
	assert.Equal(t, uint(3), capResp.Promoted[0].UserID)

	var reconciled service.ReconcileResult
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, fmt.Sprintf("/api/activities/%d/reconcile", activity.ID), 1, nil, &reconciled))
	assert.Equal(t, 2, reconciled.After)

	statusPath := fmt.Sprintf("/api/activities/%d/status", activity.ID)
	var updated models.Activity
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, statusPath, 1, fiber.Map{"status": models.ActivityStatusCancelled}, &updated))
	assert.Equal(t, models.ActivityStatusCancelled, updated.Status)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, rsvpPath, 4, nil, nil))
}

func TestGetFeatureFlags(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/flags", 7, nil, &body))
	assert.Equal(t, "on", body.Raw["conversion_prompts"])
	assert.True(t, body.Evaluated["conversion_prompts"])
}
