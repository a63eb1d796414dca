package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// StateLedger records pending authorization attempts keyed by their
// CSRF state value.  A state is consumable exactly once: Consume
// removes it atomically and reports whether it was present, so two
// callbacks racing on the same state resolve to a single winner.
//
// Implementations are injected rather than reached through package
// globals so a multi-instance deployment can share a Redis-backed
// ledger while a single instance (and the tests) use the in-memory one.
type StateLedger interface {
	Register(ctx context.Context, state string) error
	Consume(ctx context.Context, state string) bool
}

// NewState returns a fresh unguessable CSRF state value: 16 bytes of
// cryptographically secure randomness, base64url encoded.
func NewState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MemoryStateLedger is a mutex-guarded map of state values to their
// expiry time.  It does not survive restarts, which is acceptable for
// single-attempt entries that live a few minutes.
type MemoryStateLedger struct {
	mu     sync.Mutex
	states map[string]time.Time
	ttl    time.Duration
}

// NewMemoryStateLedger returns an empty ledger whose entries expire
// after ttl.
func NewMemoryStateLedger(ttl time.Duration) *MemoryStateLedger {
	return &MemoryStateLedger{states: make(map[string]time.Time), ttl: ttl}
}

func (l *MemoryStateLedger) Register(_ context.Context, state string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[state] = time.Now().Add(l.ttl)
	l.sweepLocked()
	return nil
}

func (l *MemoryStateLedger) Consume(_ context.Context, state string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.states[state]
	if !ok {
		return false
	}
	delete(l.states, state)
	return time.Now().Before(exp)
}

// sweepLocked drops expired entries so abandoned login attempts do not
// accumulate.  Caller must hold the mutex.
func (l *MemoryStateLedger) sweepLocked() {
	now := time.Now()
	for s, exp := range l.states {
		if now.After(exp) {
			delete(l.states, s)
		}
	}
}
