package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"collab-backend/internal/apperr"
	"collab-backend/internal/collab"
	"collab-backend/internal/config"
	"collab-backend/internal/model"
)

// WS 클라이언트 요청 타입
const (
	wsPing              = "ping"
	wsDrawingEvent      = "drawingEvent"
	wsUpdateParticipant = "updateParticipant"
	wsGetLiveKitToken   = "getLiveKitToken"
	wsLeave             = "leave"
)

// WSRequest 클라이언트 → 서버
type WSRequest struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WSResponse 서버 → 클라이언트
type WSResponse struct {
	Type      string `json:"type"` // collab, pong, result, error
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

// SessionWSHandler 세션 WebSocket 핸들러
type SessionWSHandler struct {
	coord        *collab.Coordinator
	sendBuffer   int
	writeTimeout time.Duration
	wsConfig     websocket.Config
}

// NewSessionWSHandler SessionWSHandler 생성
func NewSessionWSHandler(coord *collab.Coordinator, cfg config.WebSocketConfig) *SessionWSHandler {
	sendBuffer := cfg.SendBufferSize
	if sendBuffer < 1 {
		sendBuffer = 64
	}
	return &SessionWSHandler{
		coord:        coord,
		sendBuffer:   sendBuffer,
		writeTimeout: cfg.WriteTimeout,
		wsConfig: websocket.Config{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}
}

// Upgrade 업그레이드 요청만 통과, userId 쿼리를 Locals 로 전달
func (h *SessionWSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		return badRequest(c, "userId is required")
	}
	c.Locals("userId", userID)
	c.Locals("sessionId", c.Params("id"))
	return c.Next()
}

// wsClient is one connected participant.
type wsClient struct {
	coord     *collab.Coordinator
	sessionID string
	userID    string

	send      chan WSResponse
	closeOnce sync.Once
	done      chan struct{}
	log       zerolog.Logger
}

func newWSClient(coord *collab.Coordinator, sessionID, userID string, buffer int) *wsClient {
	return &wsClient{
		coord:     coord,
		sessionID: sessionID,
		userID:    userID,
		send:      make(chan WSResponse, buffer),
		done:      make(chan struct{}),
		log: log.With().
			Str("module", "handler.session_ws").
			Str("session_id", sessionID).
			Str("user_id", userID).
			Logger(),
	}
}

func (cl *wsClient) close() {
	cl.closeOnce.Do(func() { close(cl.done) })
}

// enqueue never blocks; a full buffer drops the message for this client only.
func (cl *wsClient) enqueue(resp WSResponse) bool {
	select {
	case <-cl.done:
		return false
	default:
	}
	select {
	case cl.send <- resp:
		return true
	default:
		cl.log.Warn().Str("type", resp.Type).Msg("send buffer full, dropping")
		return false
	}
}

func (cl *wsClient) fail(requestID string, err error) {
	cl.enqueue(WSResponse{
		Type:      "error",
		RequestID: requestID,
		Code:      string(apperr.KindOf(err)),
		Reason:    string(apperr.ReasonOf(err)),
		Message:   apperr.MessageOf(err),
	})
}

func (cl *wsClient) ok(requestID string, payload any) {
	cl.enqueue(WSResponse{Type: "result", RequestID: requestID, Payload: payload})
}

// onMessage is the broadcast subscription handler.
func (cl *wsClient) onMessage(_ context.Context, msg model.Message) error {
	if !cl.enqueue(WSResponse{Type: "collab", Payload: msg}) {
		return errors.New("client not accepting messages")
	}
	return nil
}

// handle processes one client request. Returns false when the connection
// should close.
func (cl *wsClient) handle(ctx context.Context, raw []byte) bool {
	var req WSRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		cl.fail("", apperr.Invalid("malformed message"))
		return true
	}

	switch req.Type {
	case wsPing:
		cl.enqueue(WSResponse{Type: "pong", RequestID: req.RequestID})

	case wsDrawingEvent:
		var ev model.DrawingEvent
		if err := json.Unmarshal(req.Payload, &ev); err != nil {
			cl.fail(req.RequestID, apperr.Invalid("malformed drawing event"))
			return true
		}
		// sender is the connection's user, never the payload's
		ev.UserID = cl.userID
		if err := cl.coord.BroadcastDrawing(ctx, cl.sessionID, &ev); err != nil {
			cl.fail(req.RequestID, err)
			return true
		}
		if req.RequestID != "" {
			cl.ok(req.RequestID, nil)
		}

	case wsUpdateParticipant:
		var upd model.ParticipantUpdate
		if err := json.Unmarshal(req.Payload, &upd); err != nil {
			cl.fail(req.RequestID, apperr.Invalid("malformed participant update"))
			return true
		}
		sess, err := cl.coord.UpdateParticipant(ctx, cl.sessionID, cl.userID, upd)
		if err != nil {
			cl.fail(req.RequestID, err)
			return true
		}
		cl.ok(req.RequestID, sess)

	case wsGetLiveKitToken:
		token, room, err := cl.coord.IssueToken(ctx, cl.sessionID, cl.userID)
		if err != nil {
			cl.fail(req.RequestID, err)
			return true
		}
		cl.ok(req.RequestID, TokenResponse{Token: token, RoomName: room})

	case wsLeave:
		if _, err := cl.coord.RemoveParticipant(ctx, cl.sessionID, cl.userID); err != nil {
			cl.fail(req.RequestID, err)
			return true
		}
		cl.ok(req.RequestID, nil)
		return false

	default:
		cl.fail(req.RequestID, apperr.Invalid("unknown message type %q", req.Type))
	}
	return true
}

// HandleWebSocket WebSocket 연결 처리
func (h *SessionWSHandler) HandleWebSocket(c *websocket.Conn) {
	sessionID, _ := c.Locals("sessionId").(string)
	userID, _ := c.Locals("userId").(string)
	cl := newWSClient(h.coord, sessionID, userID, h.sendBuffer)

	defer func() {
		if r := recover(); r != nil {
			cl.log.Error().Interface("panic", r).Msg("websocket handler panicked")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := h.coord.GetActiveSession(ctx, sessionID)
	if err == nil && !sess.HasParticipant(userID) {
		err = apperr.NotFound("participant %s not in session %s", userID, sessionID)
	}
	if err != nil {
		h.writeNow(c, WSResponse{
			Type:    "error",
			Code:    string(apperr.KindOf(err)),
			Reason:  string(apperr.ReasonOf(err)),
			Message: apperr.MessageOf(err),
		})
		c.Close()
		return
	}

	sub, err := h.coord.Subscribe(ctx, sessionID, cl.onMessage)
	if err != nil {
		h.writeNow(c, WSResponse{Type: "error", Code: string(apperr.KindOf(err)), Message: apperr.MessageOf(err)})
		c.Close()
		return
	}
	cl.log.Info().Msg("websocket connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writePump(c, cl)
	}()

	defer func() {
		sub.Unsubscribe()
		cl.close()
		wg.Wait()
		c.Close()
		cl.log.Info().Msg("websocket disconnected")
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		if !cl.handle(ctx, raw) {
			return
		}
	}
}

func (h *SessionWSHandler) writePump(c *websocket.Conn, cl *wsClient) {
	for {
		select {
		case <-cl.done:
			// flush what is already queued, e.g. the leave result
			for {
				select {
				case resp := <-cl.send:
					if !h.writeNow(c, resp) {
						return
					}
				default:
					return
				}
			}
		case resp := <-cl.send:
			if !h.writeNow(c, resp) {
				cl.close()
				return
			}
		}
	}
}

func (h *SessionWSHandler) writeNow(c *websocket.Conn, resp WSResponse) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("module", "handler.session_ws").Msg("encode response")
		return true
	}
	if h.writeTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}
	return c.WriteMessage(websocket.TextMessage, data) == nil
}

// Register mounts the websocket route.
func (h *SessionWSHandler) Register(app fiber.Router) {
	app.Get("/ws/sessions/:id", h.Upgrade, websocket.New(h.HandleWebSocket, h.wsConfig))
}
