package service

// In-memory fakes for the store and provider interfaces.  They live in
// a non-test file so the handler tests can reuse them; none of them
// touch MySQL, Redis or the broker.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ycchuang/chat-server/internal/model"
	"github.com/ycchuang/chat-server/internal/oauth"
	q "github.com/ycchuang/chat-server/internal/queue"
	"github.com/ycchuang/chat-server/internal/repository"
)

// FakeUserStore keeps users in a map keyed by email.  FindOrCreate is
// atomic under the mutex, matching the unique-constraint guarantee of
// the relational store.
type FakeUserStore struct {
	mu        sync.Mutex
	byEmail   map[string]model.User
	Created   int // number of FindOrCreate calls that created a row
	GetErr    error
	CreateErr error
}

func NewFakeUserStore() *FakeUserStore {
	return &FakeUserStore{byEmail: make(map[string]model.User)}
}

// Add seeds a user and returns it with a generated id.
func (f *FakeUserStore) Add(name, email string) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := model.User{ID: uuid.NewString(), Name: name, Email: email, CreatedAt: time.Now()}
	f.byEmail[email] = u
	return u
}

func (f *FakeUserStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return model.User{}, f.GetErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *FakeUserStore) FindOrCreate(_ context.Context, profile *oauth.Profile) (model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if profile == nil || strings.TrimSpace(profile.Email) == "" {
		return model.User{}, false, repository.ErrMissingEmail
	}
	if u, ok := f.byEmail[profile.Email]; ok {
		return u, false, nil
	}
	if f.CreateErr != nil {
		return model.User{}, false, f.CreateErr
	}
	u := model.User{
		ID:            uuid.NewString(),
		Name:          profile.Name,
		Email:         profile.Email,
		EmailVerified: profile.VerifiedEmail,
		Image:         profile.Picture,
		CreatedAt:     time.Now(),
	}
	f.byEmail[profile.Email] = u
	f.Created++
	return u, true, nil
}

// FakeAccountStore keys accounts by (user, provider).
type FakeAccountStore struct {
	mu        sync.Mutex
	accounts  map[string]model.Account
	UpsertErr error
}

func NewFakeAccountStore() *FakeAccountStore {
	return &FakeAccountStore{accounts: make(map[string]model.Account)}
}

func accountKey(userID, providerID string) string { return userID + "|" + providerID }

func (f *FakeAccountStore) Upsert(_ context.Context, userID, providerID string, b *oauth.TokenBundle) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpsertErr != nil {
		return model.Account{}, f.UpsertErr
	}
	key := accountKey(userID, providerID)
	acct, ok := f.accounts[key]
	if !ok {
		acct = model.Account{ID: uuid.NewString(), UserID: userID, ProviderID: providerID}
	}
	acct.AccessToken = b.AccessToken
	if b.RefreshToken != "" {
		acct.RefreshToken = b.RefreshToken
	}
	if b.IDToken != "" {
		acct.IDToken = b.IDToken
	}
	if b.Scope != "" {
		acct.Scope = b.Scope
	}
	f.accounts[key] = acct
	return acct, nil
}

func (f *FakeAccountStore) CreateCredential(_ context.Context, userID, passwordHash string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := model.Account{
		ID:         uuid.NewString(),
		AccountID:  "credential_" + userID,
		ProviderID: "credential",
		UserID:     userID,
		Password:   passwordHash,
	}
	f.accounts[accountKey(userID, "credential")] = acct
	return acct, nil
}

func (f *FakeAccountStore) GetByUserAndProvider(_ context.Context, userID, providerID string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[accountKey(userID, providerID)]
	if !ok {
		return model.Account{}, sql.ErrNoRows
	}
	return acct, nil
}

// FakeSessionStore issues sequential tokens and validates against its
// own map with the same fail-closed expiry rule as the SQL store.
type FakeSessionStore struct {
	mu        sync.Mutex
	sessions  map[string]model.Session
	seq       int
	CreateErr error
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{sessions: make(map[string]model.Session)}
}

func (f *FakeSessionStore) Create(_ context.Context, userID, ip, userAgent string, ttlDays int) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return model.Session{}, f.CreateErr
	}
	f.seq++
	s := model.Session{
		ID:        uuid.NewString(),
		Token:     fmt.Sprintf("sess-%d", f.seq),
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(ttlDays) * 24 * time.Hour),
		IPAddress: ip,
		UserAgent: userAgent,
	}
	f.sessions[s.Token] = s
	return s, nil
}

func (f *FakeSessionStore) Validate(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return "", sql.ErrNoRows
	}
	return s.UserID, nil
}

// Expire backdates a session so Validate fails closed.
func (f *FakeSessionStore) Expire(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[token]
	s.ExpiresAt = time.Now().Add(-time.Minute)
	f.sessions[token] = s
}

// FakeFriendStore reimplements the unordered-pair semantics of the
// relational store over a slice.
type FakeFriendStore struct {
	mu        sync.Mutex
	rows      []model.Friendship
	seq       int
	CreateErr error
}

func NewFakeFriendStore() *FakeFriendStore { return &FakeFriendStore{} }

func (f *FakeFriendStore) pairIndex(a, b string) int {
	for i, r := range f.rows {
		if (r.UserID == a && r.FriendID == b) || (r.UserID == b && r.FriendID == a) {
			return i
		}
	}
	return -1
}

func (f *FakeFriendStore) GetPair(_ context.Context, a, b string) (model.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.pairIndex(a, b); i >= 0 {
		return f.rows[i], nil
	}
	return model.Friendship{}, sql.ErrNoRows
}

func (f *FakeFriendStore) CreateRequest(_ context.Context, requesterID, targetID string) (model.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return model.Friendship{}, f.CreateErr
	}
	f.seq++
	row := model.Friendship{
		ID:        fmt.Sprintf("fr-%d", f.seq),
		UserID:    requesterID,
		FriendID:  targetID,
		Status:    model.FriendStatusPending,
		CreatedAt: time.Now(),
	}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *FakeFriendStore) Accept(_ context.Context, requesterID, accepterID string, chatroomID *string) (model.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.UserID == requesterID && r.FriendID == accepterID && r.Status == model.FriendStatusPending {
			f.rows[i].Status = model.FriendStatusAccepted
			f.rows[i].ChatroomID = chatroomID
			f.rows[i].UpdatedAt = time.Now()
			return f.rows[i], nil
		}
	}
	return model.Friendship{}, repository.ErrRequestNotFound
}

func (f *FakeFriendStore) DeletePair(_ context.Context, a, b string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.pairIndex(a, b); i >= 0 {
		f.rows = append(f.rows[:i], f.rows[i+1:]...)
		return nil
	}
	return repository.ErrFriendshipNotFound
}

func (f *FakeFriendStore) DeletePending(_ context.Context, requesterID, accepterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.UserID == requesterID && r.FriendID == accepterID && r.Status == model.FriendStatusPending {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrRequestNotFound
}

func (f *FakeFriendStore) ListFriends(_ context.Context, userID string) ([]model.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	friends := []model.Friend{}
	for _, r := range f.rows {
		if r.Status != model.FriendStatusAccepted {
			continue
		}
		switch userID {
		case r.UserID:
			friends = append(friends, model.Friend{ID: r.FriendID, ChatroomID: r.ChatroomID})
		case r.FriendID:
			friends = append(friends, model.Friend{ID: r.UserID, ChatroomID: r.ChatroomID})
		}
	}
	return friends, nil
}

func (f *FakeFriendStore) ListIncoming(_ context.Context, userID string) ([]model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := []model.FriendRequest{}
	for _, r := range f.rows {
		if r.Status == model.FriendStatusPending && r.FriendID == userID {
			reqs = append(reqs, model.FriendRequest{ID: r.UserID, RequestID: r.ID})
		}
	}
	return reqs, nil
}

// SetChatroom mirrors the reconciler-side update: fill the reference
// only while the accepted row still lacks one.
func (f *FakeFriendStore) SetChatroom(_ context.Context, friendshipID, chatroomID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.ID == friendshipID && r.Status == model.FriendStatusAccepted && r.ChatroomID == nil {
			f.rows[i].ChatroomID = &chatroomID
			return true, nil
		}
	}
	return false, nil
}

// FakeExchanger plays the identity provider.  Exchange hands out a
// copy of Bundle so callers mutating the result do not leak state
// between tests.
type FakeExchanger struct {
	mu          sync.Mutex
	Bundle      oauth.TokenBundle
	UserProfile *oauth.Profile
	ExchangeErr error
	FetchErr    error
	Exchanged   []string // codes seen
}

func (f *FakeExchanger) AuthURL(state string) string {
	return "https://provider.example/auth?state=" + state
}

func (f *FakeExchanger) Exchange(_ context.Context, code string) (*oauth.TokenBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	f.Exchanged = append(f.Exchanged, code)
	b := f.Bundle
	return &b, nil
}

func (f *FakeExchanger) FetchProfile(_ context.Context, _ string) (*oauth.Profile, error) {
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	if f.UserProfile == nil {
		return nil, oauth.ErrProfileFetch
	}
	p := *f.UserProfile
	return &p, nil
}

// FakeRooms counts provisioned rooms and can be forced to fail.
type FakeRooms struct {
	mu      sync.Mutex
	seq     int
	Fail    bool
	Created []string
}

func (f *FakeRooms) CreateRoom(_ context.Context, creatorID, friendID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail {
		return "", fmt.Errorf("document store unavailable")
	}
	f.seq++
	id := fmt.Sprintf("room-%d", f.seq)
	f.Created = append(f.Created, id)
	return id, nil
}

// FakePublisher records provisioning events instead of dialing a
// broker.
type FakePublisher struct {
	mu     sync.Mutex
	Err    error
	Events []q.ChatroomProvisionEvent
}

func (f *FakePublisher) PublishChatroomProvision(_ context.Context, ev q.ChatroomProvisionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Events = append(f.Events, ev)
	return nil
}
