package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/model"
)

func next(t *testing.T, cl *wsClient) WSResponse {
	t.Helper()
	select {
	case resp := <-cl.send:
		return resp
	case <-time.After(time.Second):
		t.Fatal("no response")
		return WSResponse{}
	}
}

func TestWSClientRequests(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)
	_, err := coord.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)
	_, err = coord.JoinSession(ctx, "s1", "u1", "Alice")
	require.NoError(t, err)

	cl := newWSClient(coord, "s1", "u1", 16)

	assert.True(t, cl.handle(ctx, []byte(`{"type":"ping","requestId":"r1"}`)))
	resp := next(t, cl)
	assert.Equal(t, "pong", resp.Type)
	assert.Equal(t, "r1", resp.RequestID)

	assert.True(t, cl.handle(ctx, []byte(`{"type":"getLiveKitToken","requestId":"r2"}`)))
	resp = next(t, cl)
	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, TokenResponse{Token: "tok-u1", RoomName: "collab_s1"}, resp.Payload)

	assert.True(t, cl.handle(ctx, []byte(`{"type":"drawingEvent","requestId":"r3","payload":{"type":"undo"}}`)))
	resp = next(t, cl)
	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, "r3", resp.RequestID)

	assert.True(t, cl.handle(ctx, []byte(`{"type":"drawingEvent","requestId":"r4","payload":{"type":"stroke"}}`)))
	resp = next(t, cl)
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "INVALID", resp.Code)

	assert.True(t, cl.handle(ctx, []byte(`{"type":"teleport"}`)))
	assert.Equal(t, "error", next(t, cl).Type)

	assert.True(t, cl.handle(ctx, []byte(`garbage`)))
	assert.Equal(t, "error", next(t, cl).Type)

	assert.False(t, cl.handle(ctx, []byte(`{"type":"leave","requestId":"r5"}`)))
	resp = next(t, cl)
	assert.Equal(t, "result", resp.Type)

	sess, err := coord.GetActiveSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, sess.HasParticipant("u1"))
}

func TestWSClientReceivesBroadcasts(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)
	_, err := coord.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	cl := newWSClient(coord, "s1", "h1", 16)
	sub, err := coord.Subscribe(ctx, "s1", cl.onMessage)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = coord.JoinSession(ctx, "s1", "u1", "Alice")
	require.NoError(t, err)

	resp := next(t, cl)
	assert.Equal(t, "collab", resp.Type)
	msg, ok := resp.Payload.(model.Message)
	require.True(t, ok)
	assert.Equal(t, model.MessageParticipantJoin, msg.Type)
}

func TestWSClientDropsWhenBufferFull(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	cl := newWSClient(coord, "s1", "u1", 1)

	assert.True(t, cl.enqueue(WSResponse{Type: "pong"}))
	assert.False(t, cl.enqueue(WSResponse{Type: "pong"}))

	cl.close()
	<-cl.send
	assert.False(t, cl.enqueue(WSResponse{Type: "pong"}))
}
