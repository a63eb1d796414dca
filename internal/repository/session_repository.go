package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ycchuang/chat-server/internal/model"
	"github.com/ycchuang/chat-server/internal/utils"
)

// SessionRepo issues and validates opaque bearer session tokens.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create generates an unguessable token, persists the session with an
// absolute expiry of now + ttlDays, and returns it.
func (r *SessionRepo) Create(ctx context.Context, userID, ip, userAgent string, ttlDays int) (model.Session, error) {
	token, err := utils.NewSessionToken()
	if err != nil {
		return model.Session{}, err
	}
	s := model.Session{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
		IPAddress: ip,
		UserAgent: userAgent,
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO session (id, token, user_id, expires_at, ip_address, user_agent) VALUES (?,?,?,?,?,?)",
		s.ID, s.Token, s.UserID, s.ExpiresAt, s.IPAddress, s.UserAgent)
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}

// Validate returns the owning user id for a live session token.  It
// fails closed: a missing row or an expiry at or before the current
// time both yield sql.ErrNoRows.  There is no sliding renewal.
func (r *SessionRepo) Validate(ctx context.Context, token string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM session WHERE token=? LIMIT 1",
		token).Scan(&userID, &expiresAt)
	if err != nil {
		return "", err
	}
	if !expiresAt.After(time.Now().UTC()) {
		return "", sql.ErrNoRows
	}
	return userID, nil
}
