package model

import "time"

// Friendship status values.  A rejected or removed relationship has its
// row deleted, so "none" is represented by the absence of a row.
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
)

// Friendship mirrors the `user_friends` table.  UserID is the requester
// and FriendID the target while the row is pending; once accepted the
// relationship is symmetric and queries must treat (A,B) and (B,A) as
// the same pair.  At most one live row exists per unordered pair.
//
// ChatroomID references the conversation space provisioned on
// acceptance.  A nil value on an accepted row means provisioning is
// still outstanding and the background reconciler will fill it in.
type Friendship struct {
	ID         string     // user_friends.id
	UserID     string     // user_friends.user_id (requester)
	FriendID   string     // user_friends.friend_id (target)
	Status     string     // user_friends.status
	ChatroomID *string    // user_friends.chatroom_id
	CreatedAt  time.Time  // user_friends.created_at
	UpdatedAt  time.Time  // user_friends.updated_at
}

// Friend is the projection returned by the friends list: the other
// user of an accepted pair plus the shared chatroom reference.
type Friend struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	ChatroomID *string `json:"chatroom_id"`
}

// FriendRequest is the projection returned by the incoming-requests
// list: the requesting user plus the id of the pending row.
type FriendRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	RequestID string `json:"request_id"`
}
