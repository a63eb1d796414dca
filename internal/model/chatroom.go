package model

import "time"

// Chatroom is a conversation-space document held in the document store,
// referenced from friendship rows by its opaque id.  It is provisioned
// when a friend request is accepted.
type Chatroom struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatorID    string    `json:"creator_id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single chat message document appended to a chatroom's
// message stream.
type Message struct {
	ID         string    `json:"id"`
	ChatroomID string    `json:"chatroom_id"`
	SenderID   string    `json:"sender_id"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sent_at"`
}
