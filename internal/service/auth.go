// Package service holds the orchestration between the credential
// exchange, the relational stores, the document store and the broker.
// Services depend on small store interfaces so the pieces can be
// exercised independently.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"github.com/ycchuang/chat-server/internal/model"
	"github.com/ycchuang/chat-server/internal/oauth"
	"github.com/ycchuang/chat-server/internal/repository"
	"github.com/ycchuang/chat-server/internal/utils"
)

var (
	// ErrInvalidState is returned when the callback carries a state
	// value that is not currently pending (forged, expired, or reused).
	ErrInvalidState = errors.New("invalid state parameter")
	// ErrInvalidCredentials is returned by the local-password login on
	// any mismatch; it never distinguishes unknown email from wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CredentialExchanger is the provider-facing surface of the auth flow.
// *oauth.Provider implements it.
type CredentialExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.TokenBundle, error)
	FetchProfile(ctx context.Context, accessToken string) (*oauth.Profile, error)
}

// UserStore resolves provider profiles to local users.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	FindOrCreate(ctx context.Context, profile *oauth.Profile) (model.User, bool, error)
}

// AccountStore persists provider credentials per (user, provider).
type AccountStore interface {
	Upsert(ctx context.Context, userID, providerID string, b *oauth.TokenBundle) (model.Account, error)
	CreateCredential(ctx context.Context, userID, passwordHash string) (model.Account, error)
	GetByUserAndProvider(ctx context.Context, userID, providerID string) (model.Account, error)
}

// SessionStore issues and validates bearer sessions.
type SessionStore interface {
	Create(ctx context.Context, userID, ip, userAgent string, ttlDays int) (model.Session, error)
	Validate(ctx context.Context, token string) (string, error)
}

// RequestInfo carries client metadata recorded on the session.
type RequestInfo struct {
	IP        string
	UserAgent string
}

// LoginStart is the response of BeginLogin: the URL the browser should
// visit, the CSRF state correlating the attempt, and the client id a
// non-browser caller polls with.
type LoginStart struct {
	AuthURL  string `json:"auth_url"`
	State    string `json:"state"`
	ClientID string `json:"client_id"`
}

// AuthService drives the authentication and session lifecycle.
type AuthService struct {
	Exchanger      CredentialExchanger
	States         oauth.StateLedger
	Handoff        oauth.HandoffRelay
	Users          UserStore
	Accounts       AccountStore
	Sessions       SessionStore
	ProviderID     string
	SessionTTLDays int
	BcryptCost     int
}

// BeginLogin builds the provider authorization URL, registers a fresh
// CSRF state and opens a handoff slot for a polling client.
func (s *AuthService) BeginLogin(ctx context.Context) (LoginStart, error) {
	state, err := oauth.NewState()
	if err != nil {
		return LoginStart{}, err
	}
	if err := s.States.Register(ctx, state); err != nil {
		return LoginStart{}, err
	}
	clientID, err := s.Handoff.Begin(ctx, state)
	if err != nil {
		return LoginStart{}, err
	}
	return LoginStart{
		AuthURL:  s.Exchanger.AuthURL(state),
		State:    state,
		ClientID: clientID,
	}, nil
}

// CompleteLogin handles the provider callback.  The state is consumed
// exactly once; a reused or unknown state fails with ErrInvalidState
// before any provider call.  A token-exchange failure is fatal.  The
// profile fetch is not: on failure the id token is tried as a
// fallback, and with no profile at all the bundle is still returned.
//
// Local persistence (user, account, session, handoff) is deliberately
// best-effort: authentication with the provider succeeded, so a
// storage failure is logged with its kind and message but the caller
// still receives the provider tokens.  The returned bool reports
// whether a pending handoff picked up the bundle.
func (s *AuthService) CompleteLogin(ctx context.Context, code, state string, info RequestInfo) (*oauth.TokenBundle, bool, error) {
	if !s.States.Consume(ctx, state) {
		return nil, false, ErrInvalidState
	}

	bundle, err := s.Exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, false, err
	}

	profile, err := s.Exchanger.FetchProfile(ctx, bundle.AccessToken)
	if err != nil {
		log.Printf("auth: profile fetch failed: %v", err)
		if bundle.IDToken != "" {
			if fallback, fbErr := oauth.ProfileFromIDToken(bundle.IDToken); fbErr == nil {
				profile = fallback
				log.Printf("auth: recovered profile from id token")
			}
		}
	}
	if profile != nil {
		bundle.Profile = profile
	}

	if profile != nil && strings.TrimSpace(profile.Email) != "" {
		s.persistIdentity(ctx, bundle, info)
	}

	handedOff := s.Handoff.Complete(ctx, state, bundle)
	return bundle, handedOff, nil
}

// persistIdentity runs the persistence chain behind a successful
// exchange.  Each step aborts the rest of the chain on failure, but
// never the login itself.
func (s *AuthService) persistIdentity(ctx context.Context, bundle *oauth.TokenBundle, info RequestInfo) {
	user, isNew, err := s.Users.FindOrCreate(ctx, bundle.Profile)
	if err != nil {
		log.Printf("auth: database operation error: %T: %v", err, err)
		return
	}
	if isNew {
		log.Printf("auth: new user registered: %s", user.ID)
	} else {
		log.Printf("auth: user logged in: %s", user.ID)
	}

	if _, err := s.Accounts.Upsert(ctx, user.ID, s.ProviderID, bundle); err != nil {
		log.Printf("auth: database operation error: %T: %v", err, err)
		return
	}

	sess, err := s.Sessions.Create(ctx, user.ID, info.IP, info.UserAgent, s.SessionTTLDays)
	if err != nil {
		log.Printf("auth: database operation error: %T: %v", err, err)
		return
	}
	bundle.SessionToken = sess.Token
	bundle.UserID = user.ID
}

// Poll returns the finished token bundle for a handoff client id, or
// false while it is not ready.  The bundle is deleted on retrieval.
func (s *AuthService) Poll(ctx context.Context, clientID string) (*oauth.TokenBundle, bool) {
	return s.Handoff.Poll(ctx, clientID)
}

// Register creates a user with a local password credential and opens a
// session.  The email is the natural key; an existing user fails with
// repository.ErrEmailExists.
func (s *AuthService) Register(ctx context.Context, name, email, password string, info RequestInfo) (model.User, model.Session, error) {
	hash, err := utils.HashPassword(password, s.BcryptCost)
	if err != nil {
		return model.User{}, model.Session{}, err
	}
	user, isNew, err := s.Users.FindOrCreate(ctx, &oauth.Profile{Name: name, Email: email})
	if err != nil {
		return model.User{}, model.Session{}, err
	}
	if !isNew {
		return model.User{}, model.Session{}, repository.ErrEmailExists
	}
	if _, err := s.Accounts.CreateCredential(ctx, user.ID, hash); err != nil {
		return model.User{}, model.Session{}, err
	}
	sess, err := s.Sessions.Create(ctx, user.ID, info.IP, info.UserAgent, s.SessionTTLDays)
	if err != nil {
		return model.User{}, model.Session{}, err
	}
	return user, sess, nil
}

// Login verifies a local password credential and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string, info RequestInfo) (model.User, model.Session, error) {
	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.Session{}, ErrInvalidCredentials
		}
		return model.User{}, model.Session{}, err
	}
	acct, err := s.Accounts.GetByUserAndProvider(ctx, user.ID, "credential")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.Session{}, ErrInvalidCredentials
		}
		return model.User{}, model.Session{}, err
	}
	if acct.Password == "" || !utils.VerifyPassword(acct.Password, password) {
		return model.User{}, model.Session{}, ErrInvalidCredentials
	}
	sess, err := s.Sessions.Create(ctx, user.ID, info.IP, info.UserAgent, s.SessionTTLDays)
	if err != nil {
		return model.User{}, model.Session{}, err
	}
	return user, sess, nil
}
