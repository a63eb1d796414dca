package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ycchuang/chat-server/internal/oauth"
	"github.com/ycchuang/chat-server/internal/repository"
)

// idTokenWith builds an unsigned JWT carrying the given claims; the id
// token fallback parses without verifying the signature.
func idTokenWith(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "."
}

func newAuthService() (*AuthService, *FakeUserStore, *FakeAccountStore, *FakeSessionStore, *FakeExchanger) {
	users := NewFakeUserStore()
	accounts := NewFakeAccountStore()
	sessions := NewFakeSessionStore()
	exchanger := &FakeExchanger{
		Bundle: oauth.TokenBundle{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			TokenType:    "Bearer",
			Scope:        "email profile",
		},
		UserProfile: &oauth.Profile{ID: "g-1", Email: "ada@example.com", Name: "Ada", VerifiedEmail: true},
	}
	svc := &AuthService{
		Exchanger:      exchanger,
		States:         oauth.NewMemoryStateLedger(time.Minute),
		Handoff:        oauth.NewMemoryHandoffRelay(time.Minute),
		Users:          users,
		Accounts:       accounts,
		Sessions:       sessions,
		ProviderID:     "google",
		SessionTTLDays: 30,
		BcryptCost:     4, // keep the hashing fast in tests
	}
	return svc, users, accounts, sessions, exchanger
}

func TestBeginLogin(t *testing.T) {
	svc, _, _, _, _ := newAuthService()

	start, err := svc.BeginLogin(context.Background())
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}
	if start.State == "" || start.ClientID == "" {
		t.Fatalf("BeginLogin() = %+v, want non-empty state and client id", start)
	}
	if want := "https://provider.example/auth?state=" + start.State; start.AuthURL != want {
		t.Fatalf("AuthURL = %q, want %q", start.AuthURL, want)
	}
}

func TestCompleteLogin_Success(t *testing.T) {
	svc, users, _, _, _ := newAuthService()
	ctx := context.Background()

	start, err := svc.BeginLogin(ctx)
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}

	bundle, handedOff, err := svc.CompleteLogin(ctx, "code-1", start.State, RequestInfo{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	if !handedOff {
		t.Error("handedOff = false, want true (handoff was registered)")
	}
	if bundle.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want at-1", bundle.AccessToken)
	}
	if bundle.Profile == nil || bundle.Profile.Email != "ada@example.com" {
		t.Errorf("Profile = %+v, want the provider profile", bundle.Profile)
	}
	if bundle.SessionToken == "" || bundle.UserID == "" {
		t.Errorf("bundle session = (%q, %q), want both set after persistence", bundle.SessionToken, bundle.UserID)
	}
	if users.Created != 1 {
		t.Errorf("users created = %d, want 1", users.Created)
	}

	// The polling client receives exactly the same bundle, once.
	polled, ok := svc.Poll(ctx, start.ClientID)
	if !ok {
		t.Fatal("Poll() = false, want the completed bundle")
	}
	if polled.SessionToken != bundle.SessionToken {
		t.Errorf("polled session token = %q, want %q", polled.SessionToken, bundle.SessionToken)
	}
	if _, ok := svc.Poll(ctx, start.ClientID); ok {
		t.Error("second Poll() = true, want false")
	}
}

func TestCompleteLogin_StateConsumedOnce(t *testing.T) {
	svc, _, _, _, _ := newAuthService()
	ctx := context.Background()

	start, err := svc.BeginLogin(ctx)
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}
	if _, _, err := svc.CompleteLogin(ctx, "code-1", start.State, RequestInfo{}); err != nil {
		t.Fatalf("first CompleteLogin() error = %v", err)
	}
	if _, _, err := svc.CompleteLogin(ctx, "code-1", start.State, RequestInfo{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("replayed CompleteLogin() error = %v, want ErrInvalidState", err)
	}
}

func TestCompleteLogin_UnknownState(t *testing.T) {
	svc, _, _, _, exchanger := newAuthService()

	_, _, err := svc.CompleteLogin(context.Background(), "code-1", "forged", RequestInfo{})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("CompleteLogin() error = %v, want ErrInvalidState", err)
	}
	if len(exchanger.Exchanged) != 0 {
		t.Error("Exchange() was called despite invalid state")
	}
}

func TestCompleteLogin_ExchangeFailureIsFatal(t *testing.T) {
	svc, _, _, _, exchanger := newAuthService()
	ctx := context.Background()
	exchanger.ExchangeErr = fmt.Errorf("%w: invalid_grant", oauth.ErrExchangeFailed)

	start, _ := svc.BeginLogin(ctx)
	_, _, err := svc.CompleteLogin(ctx, "bad", start.State, RequestInfo{})
	if !errors.Is(err, oauth.ErrExchangeFailed) {
		t.Fatalf("CompleteLogin() error = %v, want ErrExchangeFailed", err)
	}
}

func TestCompleteLogin_ProfileFetchFailureNotFatal(t *testing.T) {
	svc, users, _, _, exchanger := newAuthService()
	ctx := context.Background()
	exchanger.FetchErr = fmt.Errorf("%w: status 503", oauth.ErrProfileFetch)

	start, _ := svc.BeginLogin(ctx)
	bundle, _, err := svc.CompleteLogin(ctx, "code-1", start.State, RequestInfo{})
	if err != nil {
		t.Fatalf("CompleteLogin() error = %v, want nil (fetch failures are tolerated)", err)
	}
	if bundle.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want at-1", bundle.AccessToken)
	}
	// No profile, no id token: nothing to persist against.
	if bundle.SessionToken != "" || users.Created != 0 {
		t.Errorf("persistence ran without an identity: token=%q created=%d", bundle.SessionToken, users.Created)
	}
}

func TestCompleteLogin_IDTokenFallback(t *testing.T) {
	svc, users, _, _, exchanger := newAuthService()
	ctx := context.Background()
	exchanger.FetchErr = fmt.Errorf("%w: status 503", oauth.ErrProfileFetch)
	exchanger.Bundle.IDToken = idTokenWith(t, map[string]any{
		"sub": "g-9", "email": "fallback@example.com", "email_verified": true,
	})

	start, _ := svc.BeginLogin(ctx)
	bundle, _, err := svc.CompleteLogin(ctx, "code-1", start.State, RequestInfo{})
	if err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	if bundle.Profile == nil || bundle.Profile.Email != "fallback@example.com" {
		t.Fatalf("Profile = %+v, want identity recovered from the id token", bundle.Profile)
	}
	if users.Created != 1 || bundle.SessionToken == "" {
		t.Errorf("persistence did not run on the fallback profile: created=%d token=%q", users.Created, bundle.SessionToken)
	}
}

func TestCompleteLogin_PersistenceFailureStillReturnsTokens(t *testing.T) {
	tests := []struct {
		name       string
		breakStore func(u *FakeUserStore, a *FakeAccountStore, s *FakeSessionStore)
	}{
		{"user store down", func(u *FakeUserStore, _ *FakeAccountStore, _ *FakeSessionStore) {
			u.CreateErr = errors.New("connection refused")
		}},
		{"account store down", func(_ *FakeUserStore, a *FakeAccountStore, _ *FakeSessionStore) {
			a.UpsertErr = errors.New("connection refused")
		}},
		{"session store down", func(_ *FakeUserStore, _ *FakeAccountStore, s *FakeSessionStore) {
			s.CreateErr = errors.New("connection refused")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users, accounts, sessions, _ := newAuthService()
			ctx := context.Background()
			tt.breakStore(users, accounts, sessions)

			start, _ := svc.BeginLogin(ctx)
			bundle, handedOff, err := svc.CompleteLogin(ctx, "code-1", start.State, RequestInfo{})
			if err != nil {
				t.Fatalf("CompleteLogin() error = %v, want nil (persistence is best-effort)", err)
			}
			if bundle.AccessToken != "at-1" {
				t.Errorf("AccessToken = %q, want the provider tokens regardless", bundle.AccessToken)
			}
			if bundle.SessionToken != "" {
				t.Errorf("SessionToken = %q, want empty when the chain aborted", bundle.SessionToken)
			}
			if !handedOff {
				t.Error("handedOff = false, want true")
			}
		})
	}
}

// Concurrent logins for the same identity must resolve to one user row.
func TestCompleteLogin_ConcurrentSameIdentity(t *testing.T) {
	svc, users, _, _, _ := newAuthService()
	ctx := context.Background()

	const n = 16
	starts := make([]LoginStart, n)
	for i := range starts {
		s, err := svc.BeginLogin(ctx)
		if err != nil {
			t.Fatalf("BeginLogin() error = %v", err)
		}
		starts[i] = s
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.CompleteLogin(ctx, "code", starts[i].State, RequestInfo{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CompleteLogin() error = %v", err)
		}
	}

	if users.Created != 1 {
		t.Fatalf("users created = %d, want exactly 1", users.Created)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _, _, _ := newAuthService()
	ctx := context.Background()
	info := RequestInfo{IP: "10.0.0.1", UserAgent: "cli"}

	user, sess, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22", info)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID == "" || sess.Token == "" {
		t.Fatalf("Register() = (%+v, %+v), want user and session", user, sess)
	}

	if _, _, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22", info); !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("duplicate Register() error = %v, want ErrEmailExists", err)
	}

	if _, _, err := svc.Login(ctx, "ada@example.com", "wrong", info); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() with wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "hunter22", info); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() with unknown email error = %v, want ErrInvalidCredentials", err)
	}

	got, sess2, err := svc.Login(ctx, "ada@example.com", "hunter22", info)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Login() user = %s, want %s", got.ID, user.ID)
	}
	if sess2.Token == sess.Token {
		t.Error("Login() reused the registration session token")
	}
}
