package model

import "time"

// User represents an application user record as stored in the `user`
// table.  Ids are UUID strings generated on first sign in; a user row
// is never deleted by this service.
//
// Fields:
//  ID            – primary key, UUID string.
//  Name          – display name reported by the identity provider.  May be empty.
//  Email         – unique email address, the natural key for identity resolution.
//  EmailVerified – whether the provider asserted the email as verified.
//  Image         – avatar URL reported by the provider.  May be empty.
//  CreatedAt     – timestamp of creation.
//  UpdatedAt     – timestamp of last update.
type User struct {
	ID            string    // user.id
	Name          string    // user.name
	Email         string    // user.email
	EmailVerified bool      // user.email_verified
	Image         string    // user.image
	CreatedAt     time.Time // user.created_at
	UpdatedAt     time.Time // user.updated_at
}
