package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ycchuang/chat-server/internal/model"
	"github.com/ycchuang/chat-server/internal/oauth"
)

// AccountRepo persists provider credentials, one row per
// (user, provider) pair.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

const accountColumns = "id,account_id,provider_id,user_id,access_token,refresh_token,id_token," +
	"access_token_expires_at,refresh_token_expires_at,scope,password,created_at,updated_at"

// AccessTokenExpiry computes the absolute expiry of an access token
// from a bundle.  An absolute timestamp supplied by the provider wins;
// a relative seconds count is added to now; anything else falls back
// to one hour.  Token-lifetime bookkeeping is best-effort, so this
// never fails.
func AccessTokenExpiry(b *oauth.TokenBundle, now time.Time) time.Time {
	if !b.Expiry.IsZero() {
		return b.Expiry.UTC()
	}
	if b.ExpiresIn > 0 {
		return now.Add(time.Duration(b.ExpiresIn) * time.Second)
	}
	return now.Add(time.Hour)
}

// accountIDFor picks the provider-native account id column value: the
// profile's own id when it carries one, otherwise whatever the row
// already stores, and the synthetic "<providerId>_<userId>" only when
// neither exists.  A profile without an id (e.g. recovered from an id
// token) must never displace a previously stored native id.
func accountIDFor(existing string, profile *oauth.Profile, providerID, userID string) string {
	if profile != nil && profile.ID != "" {
		return profile.ID
	}
	if existing != "" {
		return existing
	}
	return providerID + "_" + userID
}

// Upsert finds the (userID, providerID) account row or creates one,
// then applies the token bundle.  Refresh token, id token and scope
// are only overwritten by non-empty values so a bundle without a
// refresh token never erases the stored one.  The provider account id
// follows accountIDFor: native id first, stored id next, synthetic
// fallback last, so the column is never null and never regresses.
func (r *AccountRepo) Upsert(ctx context.Context, userID, providerID string, b *oauth.TokenBundle) (model.Account, error) {
	now := time.Now().UTC()

	accessExp := AccessTokenExpiry(b, now)
	var refreshExp *time.Time
	if b.RefreshExpiresIn > 0 {
		t := now.Add(time.Duration(b.RefreshExpiresIn) * time.Second)
		refreshExp = &t
	}

	existing, err := r.GetByUserAndProvider(ctx, userID, providerID)
	if err != nil {
		if err != sql.ErrNoRows {
			return model.Account{}, err
		}
		id := uuid.NewString()
		_, err = r.DB.ExecContext(ctx,
			`INSERT INTO account (id, account_id, provider_id, user_id, access_token, refresh_token,
			                      id_token, access_token_expires_at, refresh_token_expires_at, scope)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			id, accountIDFor("", b.Profile, providerID, userID), providerID, userID, b.AccessToken, nullable(b.RefreshToken),
			nullable(b.IDToken), accessExp, refreshExp, nullable(b.Scope))
		if err != nil {
			return model.Account{}, err
		}
		return r.getByID(ctx, id)
	}

	_, err = r.DB.ExecContext(ctx,
		`UPDATE account
		 SET account_id=?,
		     access_token=?,
		     refresh_token=COALESCE(?, refresh_token),
		     id_token=COALESCE(?, id_token),
		     access_token_expires_at=?,
		     refresh_token_expires_at=?,
		     scope=COALESCE(?, scope),
		     updated_at=NOW()
		 WHERE id=?`,
		accountIDFor(existing.AccountID, b.Profile, providerID, userID), b.AccessToken, nullable(b.RefreshToken), nullable(b.IDToken),
		accessExp, refreshExp, nullable(b.Scope), existing.ID)
	if err != nil {
		return model.Account{}, err
	}
	return r.getByID(ctx, existing.ID)
}

// CreateCredential inserts an account row for the local password
// provider.  The token columns stay empty; only the bcrypt hash is
// stored.
func (r *AccountRepo) CreateCredential(ctx context.Context, userID, passwordHash string) (model.Account, error) {
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO account (id, account_id, provider_id, user_id, password) VALUES (?,?,?,?,?)",
		id, "credential_"+userID, "credential", userID, passwordHash)
	if err != nil {
		return model.Account{}, err
	}
	return r.getByID(ctx, id)
}

// GetByUserAndProvider fetches the account row for a (user, provider)
// pair.
func (r *AccountRepo) GetByUserAndProvider(ctx context.Context, userID, providerID string) (model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM account WHERE user_id=? AND provider_id=? LIMIT 1",
		userID, providerID))
}

func (r *AccountRepo) getByID(ctx context.Context, id string) (model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM account WHERE id=? LIMIT 1", id))
}

func (r *AccountRepo) scanOne(row *sql.Row) (model.Account, error) {
	var (
		a          model.Account
		accountID  sql.NullString
		access     sql.NullString
		refresh    sql.NullString
		idToken    sql.NullString
		accessExp  sql.NullTime
		refreshExp sql.NullTime
		scope      sql.NullString
		password   sql.NullString
	)
	err := row.Scan(&a.ID, &accountID, &a.ProviderID, &a.UserID, &access, &refresh, &idToken,
		&accessExp, &refreshExp, &scope, &password, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Account{}, err
	}
	a.AccountID = accountID.String
	a.AccessToken = access.String
	a.RefreshToken = refresh.String
	a.IDToken = idToken.String
	if accessExp.Valid {
		t := accessExp.Time
		a.AccessTokenExpiresAt = &t
	}
	if refreshExp.Valid {
		t := refreshExp.Time
		a.RefreshTokenExpiresAt = &t
	}
	a.Scope = scope.String
	a.Password = password.String
	return a, nil
}

// nullable maps an empty string to NULL so COALESCE keeps the stored
// value instead of overwriting it with absence.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
