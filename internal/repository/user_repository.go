package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ycchuang/chat-server/internal/model"
	"github.com/ycchuang/chat-server/internal/oauth"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrMissingEmail = errors.New("profile carries no email")
)

const userColumns = "id,name,email,email_verified,image,created_at,updated_at"

// Create inserts a user built from a provider profile and returns the
// stored row.
func (r *UserRepo) Create(ctx context.Context, profile *oauth.Profile) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO user (id, name, email, email_verified, image) VALUES (?,?,?,?,?)",
		id, profile.Name, email, profile.VerifiedEmail, profile.Picture)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	// Query back the full row to populate timestamps and defaults
	return r.GetByID(ctx, id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM user WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM user WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// FindOrCreate resolves a provider profile to a local user, creating
// one when the email is unknown.  The boolean reports whether the user
// was newly created.
//
// Two concurrent resolutions for the same new email may both reach the
// insert; the loser hits the unique constraint, re-queries, and returns
// the winner's row as not-newly-created.  If the re-query finds nothing
// either, the storage layer is misbehaving and the original error
// propagates.
func (r *UserRepo) FindOrCreate(ctx context.Context, profile *oauth.Profile) (model.User, bool, error) {
	if profile == nil || strings.TrimSpace(profile.Email) == "" {
		return model.User{}, false, ErrMissingEmail
	}
	u, err := r.GetByEmail(ctx, profile.Email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, err
	}

	u, err = r.Create(ctx, profile)
	if err == nil {
		return u, true, nil
	}
	if errors.Is(err, ErrEmailExists) {
		winner, reqErr := r.GetByEmail(ctx, profile.Email)
		if reqErr == nil {
			return winner, false, nil
		}
	}
	return model.User{}, false, err
}
