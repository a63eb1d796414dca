// Package queue defines message payloads exchanged over the message
// broker and the background reconciler that consumes them.
package queue

// ProvisionQueueName is the durable queue carrying chatroom
// provisioning retries.
const ProvisionQueueName = "friend.provision"

// ChatroomProvisionEvent is published when a friend request was
// accepted but the conversation space could not be provisioned.  The
// relationship row is already accepted with a null chatroom reference;
// the consumer retries the provisioning and fills the reference in.
type ChatroomProvisionEvent struct {
	FriendshipID string `json:"friendship_id"`
	UserID       string `json:"user_id"`   // accepter, becomes the chatroom creator
	FriendID     string `json:"friend_id"` // original requester
	RequestedAt  string `json:"requested_at"`
}
