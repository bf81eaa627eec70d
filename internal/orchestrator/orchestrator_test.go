package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/cloudcode"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
	"github.com/poemonsense/antigravity-proxy-go/internal/tokenstore"
)

type stubRefresher struct{}

func (stubRefresher) Refresh(ctx context.Context, refreshToken string) (account.Refreshed, error) {
	return account.Refreshed{AccessToken: "access-" + refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func newTestPool(t *testing.T, n int) *account.Pool {
	t.Helper()
	store := tokenstore.NewAt(t.TempDir() + "/accounts.json")
	for i := 0; i < n; i++ {
		email := string(rune('a'+i)) + "@example.com"
		if err := store.Add(email, "refresh-"+email); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	p := account.NewPool(store, stubRefresher{}, nil)
	if err := p.LoadFromStore(context.Background()); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}
	return p
}

func TestLooksLikeSessionCorruption(t *testing.T) {
	cases := map[string]bool{
		"Error: tool_use without tool_result found":      true,
		"INVALID THINKING SIGNATURE detected":            true,
		"thinking block out of order in conversation":    true,
		"completely unrelated upstream failure":          false,
		"":                                               false,
	}
	for msg, want := range cases {
		if got := looksLikeSessionCorruption(msg); got != want {
			t.Errorf("looksLikeSessionCorruption(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestMarkFromErrorAppliesCapacityFloor(t *testing.T) {
	p := newTestPool(t, 1)
	o := New(p, cloudcode.NewClient(nil), "")

	handled := o.markFromError(0, models.FamilyClaude, &cloudcode.UpstreamError{
		Class:      cloudcode.ClassCapacityExhausted,
		RetryAfter: 2 * time.Second,
	})
	if !handled {
		t.Fatalf("expected capacity error to be handled")
	}

	wait, limited := p.MinWaitFor(models.FamilyClaude)
	if !limited {
		t.Fatalf("expected account marked limited")
	}
	if wait < 40*time.Second {
		t.Fatalf("expected capacity floor of 45s applied, got %v", wait)
	}
}

func TestMarkFromErrorDefaultsRateLimitWait(t *testing.T) {
	p := newTestPool(t, 1)
	o := New(p, cloudcode.NewClient(nil), "")

	handled := o.markFromError(0, models.FamilyGemini, &cloudcode.UpstreamError{
		Class: cloudcode.ClassRateLimited,
	})
	if !handled {
		t.Fatalf("expected rate-limit error to be handled")
	}

	wait, limited := p.MinWaitFor(models.FamilyGemini)
	if !limited {
		t.Fatalf("expected account marked limited")
	}
	if wait < 55*time.Second || wait > 61*time.Second {
		t.Fatalf("expected ~60s default rate-limit wait, got %v", wait)
	}
}

func TestMarkFromErrorFatalClassesNotHandled(t *testing.T) {
	p := newTestPool(t, 1)
	o := New(p, cloudcode.NewClient(nil), "")

	if o.markFromError(0, models.FamilyClaude, &cloudcode.UpstreamError{Class: cloudcode.ClassGenerateChatForbidden}) {
		t.Fatalf("expected IAM_DENIED-class error not to be treated as retryable")
	}
	if o.markFromError(0, models.FamilyClaude, &cloudcode.UpstreamError{Class: cloudcode.ClassClientError}) {
		t.Fatalf("expected client error not to be treated as retryable")
	}
}

func TestFatalErrorMapsIAMDenied(t *testing.T) {
	err := fatalError(&cloudcode.UpstreamError{Class: cloudcode.ClassGenerateChatForbidden, Message: "generateChat denied"})
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
}

// TestAcquireSpoofsPreemptivelyOnShortWait covers scenario 2: a single
// account rate-limited for Claude until now+30s must fail over to the
// spoofed Gemini model immediately rather than sleeping out the wait and
// retrying Claude, since 30s is well under the 600s abort cap that used to
// incorrectly gate whether S0 spoof was even attempted.
func TestAcquireSpoofsPreemptivelyOnShortWait(t *testing.T) {
	p := newTestPool(t, 1)
	o := New(p, cloudcode.NewClient(nil), "")

	p.MarkLimited(0, models.FamilyClaude, time.Now().Add(30*time.Second))

	start := time.Now()
	acc, model, usedFallback, err := o.acquire(context.Background(), models.ClaudeSonnet45, noStatus)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("expected spoofed acquire to succeed, got err: %v", err)
	}
	if !usedFallback {
		t.Fatalf("expected usedFallback=true")
	}
	if model != models.Gemini3Flash {
		t.Fatalf("expected spoof to gemini-3-flash, got %v", model.DisplayName())
	}
	if acc.Index != 0 {
		t.Fatalf("expected the only configured account, got index %d", acc.Index)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected pre-emptive spoof with no wait, took %v", elapsed)
	}
}

// TestAcquireWaitsWhenNoSpoofAvailable covers the case SpoofModel has no
// substitute for: acquire must fall back to waiting out the ledger entry
// rather than aborting immediately, since the wait here is under the cap.
func TestAcquireWaitsWhenNoSpoofAvailable(t *testing.T) {
	p := newTestPool(t, 1)
	o := New(p, cloudcode.NewClient(nil), "")

	p.MarkLimited(0, models.FamilyGemini, time.Now().Add(300*time.Millisecond))

	start := time.Now()
	acc, model, usedFallback, err := o.acquire(context.Background(), models.Gemini25Pro, noStatus)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("expected acquire to succeed after waiting, got err: %v", err)
	}
	if usedFallback {
		t.Fatalf("expected usedFallback=false when no spoof substituted the model")
	}
	if model != models.Gemini25Pro {
		t.Fatalf("expected original model retained, got %v", model.DisplayName())
	}
	if acc.Index != 0 {
		t.Fatalf("expected the only configured account, got index %d", acc.Index)
	}
	if elapsed < 300*time.Millisecond {
		t.Fatalf("expected acquire to wait out the rate limit, elapsed %v", elapsed)
	}
}
