package handler

import (
	"github.com/gofiber/fiber/v2"

	"collab-backend/internal/collab"
	"collab-backend/internal/model"
)

// SessionHandler 협업 세션 REST 핸들러
type SessionHandler struct {
	coord *collab.Coordinator
}

// NewSessionHandler SessionHandler 생성
func NewSessionHandler(coord *collab.Coordinator) *SessionHandler {
	return &SessionHandler{coord: coord}
}

// CreateSessionRequest 세션 생성 요청
type CreateSessionRequest struct {
	HostID       string `json:"hostId"`
	HostUsername string `json:"hostUsername"`
}

// JoinSessionRequest 세션 참가 요청
type JoinSessionRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// TokenRequest LiveKit 토큰 요청
type TokenRequest struct {
	UserID string `json:"userId"`
}

// TokenResponse LiveKit 토큰 응답
type TokenResponse struct {
	Token    string `json:"token"`
	RoomName string `json:"roomName"`
}

// RoomParticipantsResponse 미디어 룸 접속자 목록
type RoomParticipantsResponse struct {
	SessionID    string   `json:"sessionId"`
	Participants []string `json:"participants"`
}

// CreateSession POST /api/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sess, err := h.coord.CreateSession(c.UserContext(), req.HostID, req.HostUsername)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// GetSession GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	sess, err := h.coord.GetActiveSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(sess)
}

// JoinSession POST /api/sessions/:id/join
func (h *SessionHandler) JoinSession(c *fiber.Ctx) error {
	var req JoinSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sess, err := h.coord.JoinSession(c.UserContext(), c.Params("id"), req.UserID, req.Username)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(sess)
}

// EndSession POST /api/sessions/:id/end
func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	sess, err := h.coord.EndSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(sess)
}

// UpdateParticipant PATCH /api/sessions/:id/participants/:userId
func (h *SessionHandler) UpdateParticipant(c *fiber.Ctx) error {
	var upd model.ParticipantUpdate
	if err := c.BodyParser(&upd); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sess, err := h.coord.UpdateParticipant(c.UserContext(), c.Params("id"), c.Params("userId"), upd)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(sess)
}

// RemoveParticipant DELETE /api/sessions/:id/participants/:userId
func (h *SessionHandler) RemoveParticipant(c *fiber.Ctx) error {
	sess, err := h.coord.RemoveParticipant(c.UserContext(), c.Params("id"), c.Params("userId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(sess)
}

// BroadcastDrawing POST /api/sessions/:id/drawing
func (h *SessionHandler) BroadcastDrawing(c *fiber.Ctx) error {
	var ev model.DrawingEvent
	if err := c.BodyParser(&ev); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.coord.BroadcastDrawing(c.UserContext(), c.Params("id"), &ev); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// IssueToken POST /api/sessions/:id/token
func (h *SessionHandler) IssueToken(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "userId is required")
	}

	token, room, err := h.coord.IssueToken(c.UserContext(), c.Params("id"), req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(TokenResponse{Token: token, RoomName: room})
}

// RoomParticipants GET /api/sessions/:id/room/participants
func (h *SessionHandler) RoomParticipants(c *fiber.Ctx) error {
	ids, err := h.coord.RoomParticipants(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomParticipantsResponse{SessionID: c.Params("id"), Participants: ids})
}

// Register mounts the session routes on r.
func (h *SessionHandler) Register(r fiber.Router, createLimiter fiber.Handler) {
	if createLimiter != nil {
		r.Post("/", createLimiter, h.CreateSession)
	} else {
		r.Post("/", h.CreateSession)
	}
	r.Get("/:id", h.GetSession)
	r.Post("/:id/join", h.JoinSession)
	r.Post("/:id/end", h.EndSession)
	r.Patch("/:id/participants/:userId", h.UpdateParticipant)
	r.Delete("/:id/participants/:userId", h.RemoveParticipant)
	r.Post("/:id/drawing", h.BroadcastDrawing)
	r.Post("/:id/token", h.IssueToken)
	r.Get("/:id/room/participants", h.RoomParticipants)
}
