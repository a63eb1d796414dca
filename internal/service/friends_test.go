package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ycchuang/chat-server/internal/model"
	"github.com/ycchuang/chat-server/internal/repository"
)

func newFriendService() (*FriendService, *FakeUserStore, *FakeFriendStore, *FakeRooms, *FakePublisher) {
	users := NewFakeUserStore()
	friends := NewFakeFriendStore()
	rooms := &FakeRooms{}
	pub := &FakePublisher{}
	svc := &FriendService{Users: users, Friends: friends, Rooms: rooms, Publisher: pub}
	return svc, users, friends, rooms, pub
}

func TestSendRequest(t *testing.T) {
	svc, users, _, _, _ := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")

	f, err := svc.SendRequest(ctx, alice.ID, "bob@example.com")
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if f.UserID != alice.ID || f.FriendID != bob.ID || f.Status != model.FriendStatusPending {
		t.Fatalf("SendRequest() = %+v, want pending alice->bob", f)
	}

	// The pending pair blocks a duplicate in either direction.
	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); !errors.Is(err, ErrRequestPending) {
		t.Errorf("repeat SendRequest() error = %v, want ErrRequestPending", err)
	}
	if _, err := svc.SendRequest(ctx, bob.ID, "alice@example.com"); !errors.Is(err, ErrRequestPending) {
		t.Errorf("reverse SendRequest() error = %v, want ErrRequestPending", err)
	}
}

func TestSendRequest_Errors(t *testing.T) {
	svc, users, _, _, _ := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")

	if _, err := svc.SendRequest(ctx, alice.ID, "ghost@example.com"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("unknown target error = %v, want ErrTargetNotFound", err)
	}
	if _, err := svc.SendRequest(ctx, alice.ID, "alice@example.com"); !errors.Is(err, ErrSelfAction) {
		t.Errorf("self target error = %v, want ErrSelfAction", err)
	}
}

// Two first requests racing in opposite directions both pass the pair
// check; the insert loser hits the normalized-pair unique key and the
// collision surfaces as the same conflict a sequential duplicate gets.
func TestSendRequest_InsertCollisionMapsToPending(t *testing.T) {
	svc, users, friends, _, _ := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	users.Add("Bob", "bob@example.com")

	friends.CreateErr = repository.ErrPairExists
	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("SendRequest() on insert collision error = %v, want ErrRequestPending", err)
	}
}

func TestAccept_ProvisionsChatroom(t *testing.T) {
	svc, users, _, rooms, pub := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")

	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	f, err := svc.Accept(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if f.Status != model.FriendStatusAccepted {
		t.Errorf("Status = %q, want accepted", f.Status)
	}
	if f.ChatroomID == nil || *f.ChatroomID != "room-1" {
		t.Errorf("ChatroomID = %v, want room-1", f.ChatroomID)
	}
	if len(rooms.Created) != 1 {
		t.Errorf("rooms created = %d, want 1", len(rooms.Created))
	}
	if len(pub.Events) != 0 {
		t.Errorf("events published = %d, want 0 when provisioning succeeded inline", len(pub.Events))
	}

	// Accepted friendship now blocks a new request in either direction.
	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); !errors.Is(err, ErrAlreadyFriends) {
		t.Errorf("SendRequest() after accept error = %v, want ErrAlreadyFriends", err)
	}
	// Accepting a second time finds no pending row and must not
	// provision another room.
	if _, err := svc.Accept(ctx, bob.ID, alice.ID); !errors.Is(err, repository.ErrRequestNotFound) {
		t.Errorf("repeat Accept() error = %v, want ErrRequestNotFound", err)
	}
	if len(rooms.Created) != 1 {
		t.Errorf("rooms created after repeat accept = %d, want still 1", len(rooms.Created))
	}
}

// A failed accept must leave no trace in the document store: rooms
// carry no TTL, so one provisioned on a dead-end path would be
// orphaned forever.
func TestAccept_NoRequestProvisionsNothing(t *testing.T) {
	svc, users, _, rooms, pub := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")

	if _, err := svc.Accept(ctx, bob.ID, alice.ID); !errors.Is(err, repository.ErrRequestNotFound) {
		t.Fatalf("Accept() without a request error = %v, want ErrRequestNotFound", err)
	}
	if len(rooms.Created) != 0 {
		t.Fatalf("rooms created on failed accept = %d (%v), want 0", len(rooms.Created), rooms.Created)
	}
	if len(pub.Events) != 0 {
		t.Fatalf("events published on failed accept = %d, want 0", len(pub.Events))
	}
}

func TestAccept_WrongDirection(t *testing.T) {
	svc, users, _, rooms, _ := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")

	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	// Only the addressee can accept; the requester accepting their own
	// request matches no pending row and provisions nothing.
	if _, err := svc.Accept(ctx, alice.ID, bob.ID); !errors.Is(err, repository.ErrRequestNotFound) {
		t.Fatalf("requester Accept() error = %v, want ErrRequestNotFound", err)
	}
	if len(rooms.Created) != 0 {
		t.Fatalf("rooms created on wrong-direction accept = %d, want 0", len(rooms.Created))
	}
}

func TestAccept_ProvisioningFailureDefersToReconciler(t *testing.T) {
	svc, users, friends, rooms, pub := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")
	rooms.Fail = true

	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	f, err := svc.Accept(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v, want nil (provisioning failure must not block acceptance)", err)
	}
	if f.Status != model.FriendStatusAccepted {
		t.Errorf("Status = %q, want accepted", f.Status)
	}
	if f.ChatroomID != nil {
		t.Errorf("ChatroomID = %v, want nil while provisioning is outstanding", f.ChatroomID)
	}
	if len(pub.Events) != 1 {
		t.Fatalf("events published = %d, want 1 retry event", len(pub.Events))
	}
	ev := pub.Events[0]
	if ev.FriendshipID != f.ID || ev.UserID != bob.ID || ev.FriendID != alice.ID {
		t.Errorf("event = %+v, want it to reference the accepted row and pair", ev)
	}

	// The reconciler fills the reference once, and only once.
	applied, err := friends.SetChatroom(ctx, f.ID, "room-late")
	if err != nil || !applied {
		t.Fatalf("SetChatroom() = (%v, %v), want applied", applied, err)
	}
	applied, _ = friends.SetChatroom(ctx, f.ID, "room-duplicate")
	if applied {
		t.Error("second SetChatroom() applied, want it skipped on a filled row")
	}
}

func TestReject_IsDirectional(t *testing.T) {
	svc, users, _, _, _ := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")

	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	// Alice cannot reject her own outgoing request.
	if err := svc.Reject(ctx, alice.ID, bob.ID); !errors.Is(err, repository.ErrRequestNotFound) {
		t.Errorf("requester Reject() error = %v, want ErrRequestNotFound", err)
	}
	if err := svc.Reject(ctx, bob.ID, bob.ID); !errors.Is(err, ErrSelfAction) {
		t.Errorf("self Reject() error = %v, want ErrSelfAction", err)
	}
	if err := svc.Reject(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	// Rejection returns the pair to none: a new request goes through.
	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() after reject error = %v", err)
	}
}

func TestRemove_ThenResend(t *testing.T) {
	svc, users, _, _, _ := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")

	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if _, err := svc.Accept(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	// Either side of the pair may remove it.
	if err := svc.Remove(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := svc.Remove(ctx, alice.ID, bob.ID); !errors.Is(err, repository.ErrFriendshipNotFound) {
		t.Errorf("repeat Remove() error = %v, want ErrFriendshipNotFound", err)
	}
	if err := svc.Remove(ctx, alice.ID, alice.ID); !errors.Is(err, ErrSelfAction) {
		t.Errorf("self Remove() error = %v, want ErrSelfAction", err)
	}

	// The pair is back to none; a fresh request succeeds.
	if _, err := svc.SendRequest(ctx, bob.ID, "alice@example.com"); err != nil {
		t.Fatalf("SendRequest() after remove error = %v", err)
	}
}

func TestListAndRequests(t *testing.T) {
	svc, users, _, _, _ := newFriendService()
	ctx := context.Background()
	alice := users.Add("Alice", "alice@example.com")
	bob := users.Add("Bob", "bob@example.com")
	carol := users.Add("Carol", "carol@example.com")

	if _, err := svc.SendRequest(ctx, alice.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if _, err := svc.SendRequest(ctx, carol.ID, "bob@example.com"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	reqs, err := svc.Requests(ctx, bob.ID)
	if err != nil {
		t.Fatalf("Requests() error = %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("incoming requests = %d, want 2", len(reqs))
	}

	if _, err := svc.Accept(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	// Accepted pairs appear in both users' friend lists; the still
	// pending request does not.
	bobFriends, err := svc.List(ctx, bob.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(bobFriends) != 1 || bobFriends[0].ID != alice.ID {
		t.Fatalf("bob's friends = %+v, want just alice", bobFriends)
	}
	aliceFriends, _ := svc.List(ctx, alice.ID)
	if len(aliceFriends) != 1 || aliceFriends[0].ID != bob.ID {
		t.Fatalf("alice's friends = %+v, want just bob", aliceFriends)
	}

	reqs, _ = svc.Requests(ctx, bob.ID)
	if len(reqs) != 1 || reqs[0].ID != carol.ID {
		t.Fatalf("remaining requests = %+v, want just carol's", reqs)
	}
}
