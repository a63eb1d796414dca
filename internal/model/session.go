package model

import "time"

// Session is an opaque bearer credential.  The token column stores the
// raw token handed to the client; validation fails closed once
// ExpiresAt is at or before the current time.  There is no revocation
// list: expiry is the only invalidation mechanism.
type Session struct {
	ID        string    // session.id
	Token     string    // session.token (unique, unguessable)
	UserID    string    // session.user_id
	ExpiresAt time.Time // session.expires_at
	IPAddress string    // session.ip_address
	UserAgent string    // session.user_agent
	CreatedAt time.Time // session.created_at
	UpdatedAt time.Time // session.updated_at
}
