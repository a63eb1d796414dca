package oauth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewState_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := NewState()
		if err != nil {
			t.Fatalf("NewState() error = %v", err)
		}
		if s == "" {
			t.Fatal("NewState() returned empty state")
		}
		if seen[s] {
			t.Fatalf("NewState() produced duplicate %q", s)
		}
		seen[s] = true
	}
}

// Requirement: a registered state is consumable exactly once.
func TestMemoryStateLedger_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStateLedger(time.Minute)

	if err := ledger.Register(ctx, "s1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !ledger.Consume(ctx, "s1") {
		t.Fatal("first Consume() = false, want true")
	}
	if ledger.Consume(ctx, "s1") {
		t.Fatal("second Consume() = true, want false")
	}
}

func TestMemoryStateLedger_UnknownState(t *testing.T) {
	ledger := NewMemoryStateLedger(time.Minute)
	if ledger.Consume(context.Background(), "never-registered") {
		t.Fatal("Consume() of unknown state = true, want false")
	}
}

func TestMemoryStateLedger_Expired(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStateLedger(-time.Second) // entries are born expired
	if err := ledger.Register(ctx, "s1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if ledger.Consume(ctx, "s1") {
		t.Fatal("Consume() of expired state = true, want false")
	}
}

// Requirement: concurrent consumers of the same state resolve to a
// single winner.
func TestMemoryStateLedger_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStateLedger(time.Minute)
	if err := ledger.Register(ctx, "s1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ledger.Consume(ctx, "s1") {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}
