// Package chat implements the conversation-space document store.
// Chatrooms and their message streams live in Redis as JSON documents,
// referenced from friendship rows by the chatroom id.  The store is
// deliberately outside the relational transaction: provisioning on
// accept is best-effort and repaired by the queue reconciler.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ycchuang/chat-server/internal/model"
)

var (
	// ErrRoomNotFound is returned when no chatroom document exists for
	// the given id.
	ErrRoomNotFound = errors.New("chatroom not found")
	// ErrNotParticipant is returned when the sender is not listed in
	// the chatroom's participants.
	ErrNotParticipant = errors.New("sender is not a member of the chatroom")
)

// Store reads and writes chatroom documents.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func roomKey(id string) string     { return "chatroom:" + id }
func messagesKey(id string) string { return "chatroom:" + id + ":messages" }

// CreateRoom provisions a conversation space for the two participants
// and returns its id.
func (s *Store) CreateRoom(ctx context.Context, creatorID, friendID string) (string, error) {
	now := time.Now().UTC()
	room := model.Chatroom{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("%s, %s", creatorID, friendID),
		CreatorID:    creatorID,
		Participants: []string{creatorID, friendID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	payload, err := json.Marshal(room)
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, roomKey(room.ID), payload, 0).Err(); err != nil {
		return "", err
	}
	return room.ID, nil
}

// Room loads a chatroom document by id.
func (s *Store) Room(ctx context.Context, id string) (model.Chatroom, error) {
	payload, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Chatroom{}, ErrRoomNotFound
		}
		return model.Chatroom{}, err
	}
	var room model.Chatroom
	if err := json.Unmarshal(payload, &room); err != nil {
		return model.Chatroom{}, err
	}
	return room, nil
}

// AppendMessage stores a message on the chatroom's stream after
// checking that the sender participates in the room, and bumps the
// room's updated_at.
func (s *Store) AppendMessage(ctx context.Context, chatroomID, senderID, content string) (model.Message, error) {
	room, err := s.Room(ctx, chatroomID)
	if err != nil {
		return model.Message{}, err
	}
	participant := false
	for _, p := range room.Participants {
		if p == senderID {
			participant = true
			break
		}
	}
	if !participant {
		return model.Message{}, ErrNotParticipant
	}

	msg := model.Message{
		ID:         uuid.NewString(),
		ChatroomID: chatroomID,
		SenderID:   senderID,
		Content:    content,
		SentAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return model.Message{}, err
	}
	if err := s.rdb.RPush(ctx, messagesKey(chatroomID), payload).Err(); err != nil {
		return model.Message{}, err
	}

	room.UpdatedAt = msg.SentAt
	if updated, err := json.Marshal(room); err == nil {
		_ = s.rdb.Set(ctx, roomKey(chatroomID), updated, 0).Err()
	}
	return msg, nil
}

// Messages returns the chatroom's messages in send order.
func (s *Store) Messages(ctx context.Context, chatroomID string) ([]model.Message, error) {
	if _, err := s.Room(ctx, chatroomID); err != nil {
		return nil, err
	}
	raw, err := s.rdb.LRange(ctx, messagesKey(chatroomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var msg model.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue // skip malformed entries rather than failing the fetch
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
