package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/store"
)

// RoomHandlers provides HTTP handlers for the room management endpoints.
type RoomHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{store: st, log: logger}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is a generic error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room already exists"})
			return
		}
		h.log.Error().Err(err).Str("name", req.Name).Msg("create room failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, roomResponse(room))
}

// ListRooms lists all persisted rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list rooms failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]RoomResponse, len(rooms))
	for i, room := range rooms {
		out[i] = roomResponse(room)
	}
	c.JSON(http.StatusOK, out)
}

// MessageResponse represents a persisted message in API responses.
type MessageResponse struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ListMessages returns the message history for a room, oldest first. A room
// with no persisted messages yields an empty list, not an error.
// GET /api/rooms/:room/messages
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	room := c.Param("room")

	messages, err := h.store.FindMessages(c.Request.Context(), room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("fetch history failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]MessageResponse, len(messages))
	for i, m := range messages {
		out[i] = MessageResponse{
			Username:  m.Username,
			Message:   m.Body,
			Timestamp: m.CreatedAt.Unix(),
		}
	}
	c.JSON(http.StatusOK, out)
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		CreatedAt: room.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
