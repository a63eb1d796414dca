package handler

import (
	"context"              // provides context with cancellation for DB calls
	"errors"               // sentinel error matching
	"net/http"             // HTTP status codes and primitives
	"strings"              // string manipulation utilities
	"time"                 // timeouts for DB and provider calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/ycchuang/chat-server/internal/oauth"      // credential exchange types
	"github.com/ycchuang/chat-server/internal/repository" // DB sentinel errors
	"github.com/ycchuang/chat-server/internal/service"    // auth orchestration
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(a *service.AuthService) *AuthHandler { return &AuthHandler{Auth: a} }

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPart struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
type sessionResp struct {
	User         userPart  `json:"user"`
	SessionToken string    `json:"session_token"`
	Expires      time.Time `json:"expires"`
}

// handoffPage is shown in the browser once a CLI-initiated login
// completed; the actual tokens travel through the handoff relay.
const handoffPage = `<html>
  <body style="font-family: monospace; background-color: #000; color: #fff; width: 100dvw; height: 100dvh; display: flex; flex-direction: column; justify-content: center; align-items: center;">
    <h1>Authentication successful.</h1>
    <p>You can now close this window and return to the CLI application!</p>
  </body>
</html>`

// Login initiates the OAuth flow: GET /auth/login returns the
// authorization URL to open in a browser, the CSRF state, and the
// client id a non-browser caller should poll with.
func (h *AuthHandler) Login(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	start, err := h.Auth.BeginLogin(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin login failed"})
	}
	return c.JSON(http.StatusOK, start)
}

// Callback handles the provider redirect: GET /auth/callback?code&state.
// An unknown or reused state yields 400; a failed token exchange 502.
// When a pending handoff exists the browser gets a confirmation page,
// otherwise the raw token bundle is returned as JSON.
func (h *AuthHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code and state required"})
	}

	info := service.RequestInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	bundle, handedOff, err := h.Auth.CompleteLogin(ctx, code, state, info)
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid state parameter"})
		}
		if errors.Is(err, oauth.ErrExchangeFailed) {
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "token exchange failed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	if handedOff {
		return c.HTML(http.StatusOK, handoffPage)
	}
	return c.JSON(http.StatusOK, bundle)
}

// Token is polled by CLI clients: GET /auth/token/:client_id returns
// the bundle once ready and deletes it, or a pending marker.
func (h *AuthHandler) Token(c echo.Context) error {
	clientID := strings.TrimSpace(c.Param("client_id"))
	if clientID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "client_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if bundle, ok := h.Auth.Poll(ctx, clientID); ok {
		return c.JSON(http.StatusOK, bundle)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "pending"})
}

// Register creates a user with a local password credential and opens a
// session immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	info := service.RequestInfo{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
	user, sess, err := h.Auth.Register(ctx, strings.TrimSpace(req.Name), req.Email, req.Password, info)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	return c.JSON(http.StatusCreated, sessionResp{
		User:         userPart{ID: user.ID, Name: user.Name, Email: user.Email},
		SessionToken: sess.Token,
		Expires:      sess.ExpiresAt,
	})
}

// PasswordLogin verifies a local credential and opens a session.
func (h *AuthHandler) PasswordLogin(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	info := service.RequestInfo{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
	user, sess, err := h.Auth.Login(ctx, req.Email, req.Password, info)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	return c.JSON(http.StatusOK, sessionResp{
		User:         userPart{ID: user.ID, Name: user.Name, Email: user.Email},
		SessionToken: sess.Token,
		Expires:      sess.ExpiresAt,
	})
}
