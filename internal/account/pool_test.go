package account

import (
	"context"
	"testing"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/models"
	"github.com/poemonsense/antigravity-proxy-go/internal/tokenstore"
)

type stubRefresher struct {
	fail bool
}

func (s *stubRefresher) Refresh(ctx context.Context, refreshToken string) (Refreshed, error) {
	if s.fail {
		return Refreshed{}, ErrInvalidGrant
	}
	return Refreshed{AccessToken: "access-" + refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	store := tokenstore.NewAt(t.TempDir() + "/accounts.json")
	for i := 0; i < n; i++ {
		email := string(rune('a'+i)) + "@example.com"
		if err := store.Add(email, "refresh-"+email); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	p := NewPool(store, &stubRefresher{}, nil)
	if err := p.LoadFromStore(context.Background()); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}
	return p
}

func TestLeaseAccountForRoundRobin(t *testing.T) {
	p := newTestPool(t, 2)

	a1, ok := p.LeaseAccountFor(context.Background(), "claude-sonnet-4-5")
	if !ok {
		t.Fatalf("expected an account")
	}
	a2, ok := p.LeaseAccountFor(context.Background(), "claude-sonnet-4-5")
	if !ok {
		t.Fatalf("expected an account")
	}
	if a1.Index == a2.Index {
		t.Fatalf("expected round-robin to advance, got same index twice")
	}
}

func TestRateLimitIsolationByFamily(t *testing.T) {
	p := newTestPool(t, 1)

	p.MarkLimited(0, models.FamilyClaude, time.Now().Add(time.Hour))

	if _, ok := p.LeaseAccountFor(context.Background(), "claude-sonnet-4-5"); ok {
		t.Fatalf("expected no account available for claude family")
	}
	if _, ok := p.LeaseAccountFor(context.Background(), "gemini-3-flash"); !ok {
		t.Fatalf("expected gemini family unaffected by claude rate limit")
	}
}

func TestClearLimitRemovesEmptyEntry(t *testing.T) {
	p := newTestPool(t, 1)

	p.MarkLimited(0, models.FamilyClaude, time.Now().Add(time.Hour))
	p.ClearLimit(0, models.FamilyClaude)

	if _, ok := p.LeaseAccountFor(context.Background(), "claude-sonnet-4-5"); !ok {
		t.Fatalf("expected account available after clear")
	}
}

func TestMinWaitForNoneWhenAnyAvailable(t *testing.T) {
	p := newTestPool(t, 2)
	p.MarkLimited(0, models.FamilyClaude, time.Now().Add(time.Hour))

	if _, ok := p.MinWaitFor(models.FamilyClaude); ok {
		t.Fatalf("expected no wait since account 1 is still available")
	}
}

func TestMinWaitForAllLimited(t *testing.T) {
	p := newTestPool(t, 1)
	until := time.Now().Add(30 * time.Second)
	p.MarkLimited(0, models.FamilyClaude, until)

	wait, ok := p.MinWaitFor(models.FamilyClaude)
	if !ok {
		t.Fatalf("expected a wait duration")
	}
	if wait <= 0 || wait > 31*time.Second {
		t.Fatalf("unexpected wait duration %v", wait)
	}
}

func TestLeaseAccountIgnoringLimits(t *testing.T) {
	p := newTestPool(t, 1)
	p.MarkLimited(0, models.FamilyClaude, time.Now().Add(time.Hour))

	if _, ok := p.LeaseAccountFor(context.Background(), "claude-sonnet-4-5"); ok {
		t.Fatalf("expected normal lease to fail")
	}
	if _, ok := p.LeaseAccountIgnoringLimits(context.Background()); !ok {
		t.Fatalf("expected ignoring-limits lease to succeed")
	}
}

func TestLeaseAccountForStaleness(t *testing.T) {
	p := newTestPool(t, 1)
	acc, ok := p.LeaseAccountFor(context.Background(), "claude-sonnet-4-5")
	if !ok {
		t.Fatalf("expected an account")
	}
	if time.Now().Add(5 * time.Minute).After(acc.AccessExpiry) {
		t.Fatalf("expected access token to be fresh beyond staleness window")
	}
}
