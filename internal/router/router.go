package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/ycchuang/chat-server/internal/handler"    // import the handlers that implement business logic
	"github.com/ycchuang/chat-server/internal/middleware" // import middleware for session authentication
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems use this endpoint to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication routes.  None of them
// require an existing session: /auth/login starts the OAuth flow,
// /auth/callback receives the provider redirect, /auth/token/:client_id
// is polled by non-browser clients, and register/login cover the local
// password credential.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/auth")
	g.GET("/login", a.Login)
	g.GET("/callback", a.Callback)
	g.GET("/token/:client_id", a.Token)
	g.POST("/register", a.Register)
	g.POST("/login", a.PasswordLogin)
}

// RegisterFriends registers the relationship endpoints.  All of them
// run behind the session middleware: the acting user is taken from the
// validated bearer token or session cookie, never from the request
// body.
func RegisterFriends(e *echo.Echo, f *handler.FriendsHandler, sessions middleware.SessionValidator) {
	g := e.Group("/friends")
	g.Use(middleware.SessionAuth(sessions))
	g.GET("", f.List)
	g.POST("", f.Send)
	g.GET("/requests", f.Requests)
	g.POST("/accept", f.Accept)
	g.POST("/reject", f.Reject)
	g.POST("/delete", f.Delete)
}

// RegisterChat registers the message send/fetch endpoints over the
// chatroom document store, also behind the session middleware.  The
// handler may be nil when the document store is unavailable; the
// routes are then simply not exposed.
func RegisterChat(e *echo.Echo, ch *handler.ChatHandler, sessions middleware.SessionValidator) {
	if ch == nil {
		return
	}
	g := e.Group("/chat")
	g.Use(middleware.SessionAuth(sessions))
	g.POST("/messages", ch.Send)
	g.GET("/messages/:chatroom_id", ch.Messages)
}
