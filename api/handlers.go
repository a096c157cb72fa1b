package api

import (
	"chathub/domain"
	"chathub/errors"
	"chathub/projection"
	"chathub/repositories"
	"chathub/services"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type Handler struct {
	log      *slog.Logger
	auth     services.IAuthService
	chat     services.IChatService
	users    repositories.IUserRepository
	messages projection.MessageSource
}

func NewHandler(
	log *slog.Logger,
	auth services.IAuthService,
	chat services.IChatService,
	users repositories.IUserRepository,
	messages projection.MessageSource,
) *Handler {
	return &Handler{log: log, auth: auth, chat: chat, users: users, messages: messages}
}

type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type SendMessageRequest struct {
	ChatRoomID string `json:"chatRoomId"`
	To         string `json:"to"`
	Message    string `json:"message" binding:"required"`
}

type SendMessageResponse struct {
	RoomID string `json:"roomId"`
	SentAt int64  `json:"sentAt"`
}

type OpenGroupRequest struct {
	Members []string `json:"members" binding:"required"`
}

type RoomResponse struct {
	RoomID string `json:"roomId"`
}

type RoomDetailResponse struct {
	RoomID  string   `json:"roomId"`
	Type    string   `json:"type"`
	Members []string `json:"members"`
}

type MessageResponse struct {
	ChatRoomID string `json:"chatRoomId"`
	Sender     string `json:"sender"`
	Message    string `json:"message"`
	SentAt     int64  `json:"sentAt"`
}

type UserResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

func (h *Handler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.auth.Register(req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: string(token)})
}

func (h *Handler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: string(token)})
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(users, func(u domain.User, _ int) UserResponse {
		return UserResponse{UID: u.UID, Email: u.Email}
	}))
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roomID, msg, err := h.chat.SendMessage(c.GetString(uidContextKey), services.SendMessageInput{
		ChatRoomID: domain.RoomID(req.ChatRoomID),
		To:         req.To,
		Body:       req.Message,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SendMessageResponse{RoomID: string(roomID), SentAt: msg.SentAt})
}

func (h *Handler) OpenGroupChat(c *gin.Context) {
	var req OpenGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roomID, err := h.chat.OpenGroupChat(c.GetString(uidContextKey), req.Members)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RoomResponse{RoomID: string(roomID)})
}

// ListRooms returns the viewer's own room list, resolved to full room
// records so a client can render names and pick a room to stream.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.chat.Rooms(c.GetString(uidContextKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(rooms, func(r domain.ChatRoom, _ int) RoomDetailResponse {
		return RoomDetailResponse{RoomID: string(r.ID), Type: string(r.Type), Members: r.Members}
	}))
}

func (h *Handler) LeaveChatRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	if err := h.chat.LeaveChatRoom(c.GetString(uidContextKey), roomID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) History(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	messages, err := h.chat.History(c.GetString(uidContextKey), roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageResponses(messages))
}

// StreamTimeline serves a room's timeline as server-sent events: one
// historical snapshot followed by live batches, each message exactly once.
// The engine tears down when the client disconnects.
func (h *Handler) StreamTimeline(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	if err := h.chat.Authorize(c.GetString(uidContextKey), roomID); err != nil {
		h.fail(c, err)
		return
	}

	engine := projection.NewEngine(h.log, h.messages)
	ctx := c.Request.Context()
	go func() { _ = engine.Run(ctx) }()
	engine.SelectRoom(roomID)

	c.Header("Content-Type", "text/event-stream")
	c.Stream(func(w io.Writer) bool {
		select {
		case batch, ok := <-engine.Updates():
			if !ok {
				return false
			}
			c.SSEvent("messages", toMessageResponses(batch))
			return true
		case err, ok := <-engine.Alerts():
			if !ok {
				return false
			}
			c.SSEvent("error", gin.H{"error": err.Error()})
			return true
		}
	})
}

// fail maps the error taxonomy onto the transport status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrInvalidInput),
		stderrors.Is(err, errors.ErrInvalidPassword),
		stderrors.Is(err, errors.ErrUserAlreadyExists):
		status = http.StatusBadRequest
	case stderrors.Is(err, errors.ErrUnauthorized),
		stderrors.Is(err, errors.ErrForbidden),
		stderrors.Is(err, errors.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func toMessageResponses(messages []domain.Message) []MessageResponse {
	return lo.Map(messages, func(m domain.Message, _ int) MessageResponse {
		return MessageResponse{
			ChatRoomID: string(m.ChatRoomID),
			Sender:     m.Sender,
			Message:    m.Body,
			SentAt:     m.SentAt,
		}
	})
}
