package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// FriendStore is the slice of the relational store the reconciler
// needs: filling in a chatroom reference on an accepted row that is
// still missing one.
type FriendStore interface {
	SetChatroom(ctx context.Context, friendshipID, chatroomID string) (bool, error)
}

// RoomCreator provisions conversation spaces in the document store.
type RoomCreator interface {
	CreateRoom(ctx context.Context, creatorID, friendID string) (string, error)
}

// StartProvisionConsumer connects to RabbitMQ, declares the durable
// friend.provision queue and consumes provisioning retries.  It runs a
// reconnect loop with capped backoff and keeps the server operating
// regardless of broker hiccups: transient handling errors requeue the
// message, malformed payloads are rejected without requeue.
func StartProvisionConsumer(url string, friends FriendStore, rooms RoomCreator) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("provision-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, friends, rooms); err != nil {
			log.Printf("provision-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, friends FriendStore, rooms RoomCreator) error {
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Printf("provision-consumer: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(ProvisionQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(ProvisionQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		var ev ChatroomProvisionEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			log.Printf("provision-consumer: unmarshal failed: %v", err)
			_ = d.Nack(false, false) // malformed, do not requeue
			continue
		}
		if err := provision(ev, friends, rooms); err != nil {
			log.Printf("provision-consumer: provisioning friendship %s failed: %v", ev.FriendshipID, err)
			time.Sleep(time.Second) // avoid a hot retry loop
			_ = d.Nack(false, true)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func provision(ev ChatroomProvisionEvent, friends FriendStore, rooms RoomCreator) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chatroomID, err := rooms.CreateRoom(ctx, ev.UserID, ev.FriendID)
	if err != nil {
		return fmt.Errorf("create chatroom: %w", err)
	}
	applied, err := friends.SetChatroom(ctx, ev.FriendshipID, chatroomID)
	if err != nil {
		return fmt.Errorf("record chatroom: %w", err)
	}
	if !applied {
		// Row already carries a reference (or was removed); the fresh
		// room is orphaned but harmless.
		log.Printf("provision-consumer: friendship %s already provisioned, chatroom %s unused", ev.FriendshipID, chatroomID)
		return nil
	}
	log.Printf("provision-consumer: friendship %s provisioned with chatroom %s", ev.FriendshipID, chatroomID)
	return nil
}
