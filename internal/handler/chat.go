package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ycchuang/chat-server/internal/chat"
	"github.com/ycchuang/chat-server/internal/middleware"
)

// ChatHandler exposes message send/fetch over the chatroom document
// store.  The sender is always the authenticated user; membership is
// enforced by the store.
type ChatHandler struct {
	Store *chat.Store
}

func NewChatHandler(s *chat.Store) *ChatHandler { return &ChatHandler{Store: s} }

type sendMessageReq struct {
	ChatroomID string `json:"chatroom_id"`
	Content    string `json:"content"`
}

// Send appends a message to a chatroom.  POST /chat/messages
func (h *ChatHandler) Send(c echo.Context) error {
	var req sendMessageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.ChatroomID = strings.TrimSpace(req.ChatroomID)
	if req.ChatroomID == "" || strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "chatroom_id/content required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	msg, err := h.Store.AppendMessage(ctx, req.ChatroomID, middleware.UserID(c), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrRoomNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "chatroom not found"})
		case errors.Is(err, chat.ErrNotParticipant):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "sender is not a member of the chatroom"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send message"})
	}
	return c.JSON(http.StatusCreated, msg)
}

// Messages returns a chatroom's messages in send order.
// GET /chat/messages/:chatroom_id
func (h *ChatHandler) Messages(c echo.Context) error {
	chatroomID := strings.TrimSpace(c.Param("chatroom_id"))
	if chatroomID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "chatroom_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	room, err := h.Store.Room(ctx, chatroomID)
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "chatroom not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get messages"})
	}

	// Only participants may read the stream.
	userID := middleware.UserID(c)
	member := false
	for _, p := range room.Participants {
		if p == userID {
			member = true
			break
		}
	}
	if !member {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of the chatroom"})
	}

	messages, err := h.Store.Messages(ctx, chatroomID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get messages"})
	}
	return c.JSON(http.StatusOK, messages)
}
