package model

import "time"

// Account links a user to one identity provider.  There is at most one
// row per (user, provider) pair and the row is upserted on every
// successful token exchange with that provider.  For the local
// "credential" provider the Password field carries a bcrypt hash and
// the token columns stay empty.
//
// Fields:
//  ID                    – primary key, UUID string.
//  AccountID             – provider-native account identifier; falls back to
//                          "<providerId>_<userId>" when the provider profile
//                          carries no id, so the column is never null.
//  ProviderID            – provider name, e.g. "google" or "credential".
//  UserID                – owning user id.
//  AccessToken           – latest access token issued by the provider.
//  RefreshToken          – refresh token; only overwritten by non-empty values.
//  IDToken               – OpenID Connect id token; only overwritten by non-empty values.
//  AccessTokenExpiresAt  – absolute expiry of the access token.
//  RefreshTokenExpiresAt – absolute expiry of the refresh token, when reported.
//  Scope                 – space-joined granted scopes; only overwritten by non-empty values.
//  Password              – bcrypt hash for the credential provider, empty otherwise.
type Account struct {
	ID                    string     // account.id
	AccountID             string     // account.account_id
	ProviderID            string     // account.provider_id
	UserID                string     // account.user_id
	AccessToken           string     // account.access_token
	RefreshToken          string     // account.refresh_token
	IDToken               string     // account.id_token
	AccessTokenExpiresAt  *time.Time // account.access_token_expires_at
	RefreshTokenExpiresAt *time.Time // account.refresh_token_expires_at
	Scope                 string     // account.scope
	Password              string     // account.password
	CreatedAt             time.Time  // account.created_at
	UpdatedAt             time.Time  // account.updated_at
}
