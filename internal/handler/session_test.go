package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/apperr"
	"collab-backend/internal/broadcast"
	"collab-backend/internal/collab"
	"collab-backend/internal/config"
	"collab-backend/internal/model"
	"collab-backend/internal/session"
	"collab-backend/internal/store"
)

type stubRooms struct{}

func (stubRooms) CreateRoom(_ context.Context, sessionID string) (string, error) {
	return model.RoomName(sessionID), nil
}

func (stubRooms) GenerateToken(_ context.Context, sessionID string, p model.Participant) (string, error) {
	return "tok-" + p.ID, nil
}

func (stubRooms) DeleteRoom(context.Context, string) error { return nil }

func (stubRooms) GetRoomParticipants(context.Context, string) ([]string, error) {
	return []string{"h1"}, nil
}

func newTestCoordinator(t *testing.T) (*collab.Coordinator, *broadcast.Hub) {
	t.Helper()
	cfg := config.SessionConfig{MaxAttempts: 4, OpTimeout: time.Second, MaxParticipants: 20, DeleteRoomAttempts: 1}
	mgr := session.NewManager(store.NewMemoryStore(), cfg, session.WithIDGenerator(func() string { return "s1" }))
	hub := broadcast.NewHub(16)
	t.Cleanup(hub.Close)
	return collab.NewCoordinator(mgr, stubRooms{}, hub, hub, cfg), hub
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	coord, _ := newTestCoordinator(t)
	app := fiber.New()
	NewSessionHandler(coord).Register(app.Group("/api/sessions"), nil)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, "POST", "/api/sessions/", `{"hostId":"h1","hostUsername":"Host"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "s1", body["id"])
	assert.Equal(t, true, body["isActive"])

	status, _ = do(t, app, "POST", "/api/sessions/s1/join", `{"userId":"u1","username":"Alice"}`)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = do(t, app, "POST", "/api/sessions/s1/join", `{"userId":"u1","username":"Alice"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])
	assert.Equal(t, "ALREADY_JOINED", body["reason"])

	status, body = do(t, app, "PATCH", "/api/sessions/s1/participants/u1", `{"isAudioEnabled":true}`)
	assert.Equal(t, fiber.StatusOK, status)
	participants := body["participants"].([]any)
	assert.Equal(t, true, participants[1].(map[string]any)["isAudioEnabled"])

	status, body = do(t, app, "POST", "/api/sessions/s1/token", `{"userId":"u1"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "tok-u1", body["token"])
	assert.Equal(t, "collab_s1", body["roomName"])

	status, _ = do(t, app, "POST", "/api/sessions/s1/drawing",
		`{"type":"stroke","userId":"u1","data":{"points":[{"x":1,"y":2}],"tool":{"type":"pen"},"color":"#000","width":2}}`)
	assert.Equal(t, fiber.StatusAccepted, status)

	status, body = do(t, app, "GET", "/api/sessions/s1/room/participants", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []any{"h1"}, body["participants"])

	status, _ = do(t, app, "DELETE", "/api/sessions/s1/participants/u1", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, body = do(t, app, "POST", "/api/sessions/s1/end", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["isActive"])

	status, body = do(t, app, "GET", "/api/sessions/s1", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])

	status, body = do(t, app, "POST", "/api/sessions/s1/join", `{"userId":"u2","username":"Bob"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "SESSION_ENDED", body["reason"])
}

func TestCreateSessionValidation(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, "POST", "/api/sessions/", `{"hostId":"","hostUsername":"Host"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID", body["code"])

	status, _ = do(t, app, "POST", "/api/sessions/", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusServiceUnavailable, statusFor(apperr.KindOf(apperr.Unavailable(errors.New("x"), "y"))))
	assert.Equal(t, fiber.StatusInternalServerError, statusFor(apperr.KindOf(errors.New("boom"))))
}
