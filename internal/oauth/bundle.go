// Package oauth implements the credential exchange with the external
// identity provider together with the two pieces of short-lived flow
// state around it: the CSRF state ledger and the client handoff relay.
package oauth

import "time"

// TokenBundle is the typed result of exchanging an authorization code.
// Every field except AccessToken is optional; provider client secrets
// are deliberately not part of the bundle.  SessionToken and UserID are
// filled in after local persistence succeeds, so a caller may receive a
// bundle that carries provider tokens but no local session.
type TokenBundle struct {
	AccessToken      string    `json:"token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	TokenType        string    `json:"token_type,omitempty"`
	IDToken          string    `json:"id_token,omitempty"`
	Expiry           time.Time `json:"expires_at,omitempty"`
	ExpiresIn        int64     `json:"expires_in,omitempty"`
	RefreshExpiresIn int64     `json:"refresh_token_expires_in,omitempty"`
	Scope            string    `json:"scope,omitempty"`
	Profile          *Profile  `json:"user_info,omitempty"`
	SessionToken     string    `json:"session_token,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
}

// Profile is the provider's view of the authenticated principal, shaped
// after Google's v1 userinfo response.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
