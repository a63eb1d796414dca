package oauth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HandoffRelay bridges a browser-completed login back to a polling,
// non-browser client.  Begin issues a client id correlated with the
// login's CSRF state; Complete files the finished token bundle under
// that client id; Poll hands the bundle to the client exactly once.
//
// Both mappings carry the same TTL as the state ledger so unclaimed
// handoffs do not accumulate.
type HandoffRelay interface {
	// Begin registers a handoff for the given state and returns the
	// client id the poller should use.
	Begin(ctx context.Context, state string) (string, error)
	// Complete stores the bundle for the client registered under state.
	// It reports false when no handoff was registered for that state.
	Complete(ctx context.Context, state string, bundle *TokenBundle) bool
	// Poll returns the stored bundle and deletes it (at-most-once
	// delivery), or reports false while the bundle is not yet ready.
	Poll(ctx context.Context, clientID string) (*TokenBundle, bool)
}

type handoffEntry struct {
	value   string
	expires time.Time
}

type bundleEntry struct {
	bundle  *TokenBundle
	expires time.Time
}

// MemoryHandoffRelay keeps both handoff maps in process memory behind
// one mutex.  Single-instance deployments and tests use it; scaled
// deployments use the Redis relay.
type MemoryHandoffRelay struct {
	mu      sync.Mutex
	clients map[string]handoffEntry // state -> client id
	bundles map[string]bundleEntry  // client id -> bundle
	ttl     time.Duration
}

func NewMemoryHandoffRelay(ttl time.Duration) *MemoryHandoffRelay {
	return &MemoryHandoffRelay{
		clients: make(map[string]handoffEntry),
		bundles: make(map[string]bundleEntry),
		ttl:     ttl,
	}
}

func (r *MemoryHandoffRelay) Begin(_ context.Context, state string) (string, error) {
	clientID := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[state] = handoffEntry{value: clientID, expires: time.Now().Add(r.ttl)}
	r.sweepLocked()
	return clientID, nil
}

func (r *MemoryHandoffRelay) Complete(_ context.Context, state string, bundle *TokenBundle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.clients[state]
	if !ok || time.Now().After(entry.expires) {
		delete(r.clients, state)
		return false
	}
	delete(r.clients, state)
	r.bundles[entry.value] = bundleEntry{bundle: bundle, expires: time.Now().Add(r.ttl)}
	return true
}

func (r *MemoryHandoffRelay) Poll(_ context.Context, clientID string) (*TokenBundle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.bundles[clientID]
	if !ok {
		return nil, false
	}
	delete(r.bundles, clientID)
	if time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.bundle, true
}

// sweepLocked drops expired entries from both maps.  Caller must hold
// the mutex.
func (r *MemoryHandoffRelay) sweepLocked() {
	now := time.Now()
	for s, e := range r.clients {
		if now.After(e.expires) {
			delete(r.clients, s)
		}
	}
	for c, e := range r.bundles {
		if now.After(e.expires) {
			delete(r.bundles, c)
		}
	}
}
