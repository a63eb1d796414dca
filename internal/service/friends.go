package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/ycchuang/chat-server/internal/model"
	q "github.com/ycchuang/chat-server/internal/queue"
	"github.com/ycchuang/chat-server/internal/repository"
)

var (
	// ErrSelfAction is returned when a user targets themselves with a
	// friend operation.
	ErrSelfAction = errors.New("cannot perform friend actions on yourself")
	// ErrTargetNotFound is returned when the friend email resolves to
	// no user.
	ErrTargetNotFound = errors.New("user not found")
	// ErrAlreadyFriends is returned when the unordered pair already
	// has an accepted relationship.
	ErrAlreadyFriends = errors.New("already a friend")
	// ErrRequestPending is returned when a pending request already
	// exists in either direction.
	ErrRequestPending = errors.New("friend request already sent")
)

// FriendStore is the relational side of the relationship state machine.
type FriendStore interface {
	GetPair(ctx context.Context, a, b string) (model.Friendship, error)
	CreateRequest(ctx context.Context, requesterID, targetID string) (model.Friendship, error)
	Accept(ctx context.Context, requesterID, accepterID string, chatroomID *string) (model.Friendship, error)
	DeletePair(ctx context.Context, a, b string) error
	DeletePending(ctx context.Context, requesterID, accepterID string) error
	ListFriends(ctx context.Context, userID string) ([]model.Friend, error)
	ListIncoming(ctx context.Context, userID string) ([]model.FriendRequest, error)
}

// RoomCreator provisions conversation spaces.  It may be nil when the
// document store is unavailable; acceptance then always defers to the
// reconciler.
type RoomCreator interface {
	CreateRoom(ctx context.Context, creatorID, friendID string) (string, error)
}

// ProvisionPublisher hands provisioning retries to the broker.
type ProvisionPublisher interface {
	PublishChatroomProvision(ctx context.Context, ev q.ChatroomProvisionEvent) error
}

// FriendService drives the pairwise friend state machine: none ->
// pending -> accepted, with reject/remove returning the pair to none.
type FriendService struct {
	Users     UserStore
	Friends   FriendStore
	Rooms     RoomCreator
	Publisher ProvisionPublisher
}

// SendRequest creates a pending request from requesterID to the user
// owning friendEmail.  The duplicate checks treat (A,B) and (B,A) as
// the same pair.
func (s *FriendService) SendRequest(ctx context.Context, requesterID, friendEmail string) (model.Friendship, error) {
	target, err := s.Users.GetByEmail(ctx, friendEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Friendship{}, ErrTargetNotFound
		}
		return model.Friendship{}, err
	}
	if target.ID == requesterID {
		return model.Friendship{}, ErrSelfAction
	}

	pair, err := s.Friends.GetPair(ctx, requesterID, target.ID)
	if err == nil {
		if pair.Status == model.FriendStatusAccepted {
			return model.Friendship{}, ErrAlreadyFriends
		}
		return model.Friendship{}, ErrRequestPending
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Friendship{}, err
	}

	f, err := s.Friends.CreateRequest(ctx, requesterID, target.ID)
	if err != nil {
		// Two first requests racing in opposite directions both pass
		// the pair check; the insert loser collides on the pair key.
		if errors.Is(err, repository.ErrPairExists) {
			return model.Friendship{}, ErrRequestPending
		}
		return model.Friendship{}, err
	}
	return f, nil
}

// Accept transitions the pending request requesterID -> accepterID to
// accepted.  The pending row is checked before anything else so a
// forged, repeated or wrong-direction accept provisions nothing; two
// concurrent accepts are still arbitrated by the locked transaction in
// the store.  Chatroom provisioning runs outside the relational
// transaction; when it fails the row is accepted with a null reference
// and a retry event is published for the reconciler.
func (s *FriendService) Accept(ctx context.Context, accepterID, requesterID string) (model.Friendship, error) {
	pair, err := s.Friends.GetPair(ctx, requesterID, accepterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Friendship{}, repository.ErrRequestNotFound
		}
		return model.Friendship{}, err
	}
	if pair.Status != model.FriendStatusPending || pair.UserID != requesterID || pair.FriendID != accepterID {
		return model.Friendship{}, repository.ErrRequestNotFound
	}

	var chatroomID *string
	if s.Rooms != nil {
		if id, err := s.Rooms.CreateRoom(ctx, accepterID, requesterID); err != nil {
			log.Printf("friends: chatroom provisioning failed: %v", err)
		} else {
			chatroomID = &id
		}
	}

	f, err := s.Friends.Accept(ctx, requesterID, accepterID, chatroomID)
	if err != nil {
		return model.Friendship{}, err
	}

	if chatroomID == nil && s.Publisher != nil {
		ev := q.ChatroomProvisionEvent{
			FriendshipID: f.ID,
			UserID:       accepterID,
			FriendID:     requesterID,
			RequestedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		// Best-effort; the null reference stays visible either way.
		_ = s.Publisher.PublishChatroomProvision(ctx, ev)
	}
	return f, nil
}

// Reject deletes the pending request requesterID -> rejecterID.  An
// accepted relationship cannot be torn down through reject.
func (s *FriendService) Reject(ctx context.Context, rejecterID, requesterID string) error {
	if rejecterID == requesterID {
		return ErrSelfAction
	}
	return s.Friends.DeletePending(ctx, requesterID, rejecterID)
}

// Remove deletes the relationship row for the unordered pair,
// returning it to none; a later request between the two succeeds
// again.
func (s *FriendService) Remove(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return ErrSelfAction
	}
	return s.Friends.DeletePair(ctx, userID, friendID)
}

// List returns the accepted friends of userID.
func (s *FriendService) List(ctx context.Context, userID string) ([]model.Friend, error) {
	return s.Friends.ListFriends(ctx, userID)
}

// Requests returns the pending requests addressed to userID.
func (s *FriendService) Requests(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	return s.Friends.ListIncoming(ctx, userID)
}
