package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SessionValidator resolves a bearer session token to a user id.  It
// must fail closed: any error means no identity.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// SessionAuth returns an Echo middleware that validates the opaque
// session credential and injects the owning user id into the request
// context under "user_id".  The token is accepted either as an
// `Authorization: Bearer <token>` header or as a `session_token`
// cookie; the header wins when both are present.  Missing or invalid
// credentials yield 401 with a WWW-Authenticate challenge.
func SessionAuth(sessions SessionValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := ""
			if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
			if token == "" {
				if cookie, err := c.Cookie("session_token"); err == nil {
					token = cookie.Value
				}
			}
			if token == "" {
				c.Response().Header().Set("WWW-Authenticate", "Bearer")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			userID, err := sessions.Validate(ctx, token)
			if err != nil {
				c.Response().Header().Set("WWW-Authenticate", "Bearer")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired session"})
			}

			c.Set("user_id", userID)
			return next(c)
		}
	}
}

// UserID extracts the authenticated user id stored by SessionAuth.
func UserID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok {
		return v
	}
	return ""
}
