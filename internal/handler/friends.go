package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ycchuang/chat-server/internal/middleware"
	"github.com/ycchuang/chat-server/internal/repository"
	"github.com/ycchuang/chat-server/internal/service"
)

// FriendsHandler exposes the relationship state machine.  Every route
// requires a valid session; the acting user comes from the context.
type FriendsHandler struct {
	Friends *service.FriendService
}

func NewFriendsHandler(f *service.FriendService) *FriendsHandler {
	return &FriendsHandler{Friends: f}
}

type friendActionReq struct {
	FriendID string `json:"friend_id"`
}

// List returns the caller's accepted friends.  GET /friends
func (h *FriendsHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	friends, err := h.Friends.List(ctx, middleware.UserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get friends list"})
	}
	return c.JSON(http.StatusOK, friends)
}

// Requests returns the caller's incoming pending requests.
// GET /friends/requests
func (h *FriendsHandler) Requests(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	requests, err := h.Friends.Requests(ctx, middleware.UserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get friend requests"})
	}
	return c.JSON(http.StatusOK, requests)
}

// Send creates a friend request addressed by email.
// POST /friends?friend_email=x@x.com
func (h *FriendsHandler) Send(c echo.Context) error {
	friendEmail := strings.TrimSpace(c.QueryParam("friend_email"))
	if friendEmail == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "friend_email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	_, err := h.Friends.SendRequest(ctx, middleware.UserID(c), friendEmail)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTargetNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case errors.Is(err, service.ErrSelfAction):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot add yourself as a friend"})
		case errors.Is(err, service.ErrAlreadyFriends):
			return c.JSON(http.StatusConflict, echo.Map{"error": "already a friend"})
		case errors.Is(err, service.ErrRequestPending):
			return c.JSON(http.StatusConflict, echo.Map{"error": "friend request already sent"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send friend request"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "friend request sent"})
}

// Accept transitions a pending request to accepted and reports the
// provisioned chatroom id (null when provisioning is still pending).
// POST /friends/accept
func (h *FriendsHandler) Accept(c echo.Context) error {
	var req friendActionReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.FriendID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "friend_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	f, err := h.Friends.Accept(ctx, middleware.UserID(c), strings.TrimSpace(req.FriendID))
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "friend request not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to accept friend request"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "friend request accepted", "chatroom_id": f.ChatroomID})
}

// Reject deletes an incoming pending request.  POST /friends/reject
func (h *FriendsHandler) Reject(c echo.Context) error {
	var req friendActionReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.FriendID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "friend_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Friends.Reject(ctx, middleware.UserID(c), strings.TrimSpace(req.FriendID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfAction):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot reject yourself"})
		case errors.Is(err, repository.ErrRequestNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "friend request not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reject friend request"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "friend request rejected"})
}

// Delete removes an existing relationship.  POST /friends/delete
func (h *FriendsHandler) Delete(c echo.Context) error {
	var req friendActionReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.FriendID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "friend_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Friends.Remove(ctx, middleware.UserID(c), strings.TrimSpace(req.FriendID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfAction):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot delete yourself"})
		case errors.Is(err, repository.ErrFriendshipNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "friend relationship not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete friend"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "friend deleted"})
}
