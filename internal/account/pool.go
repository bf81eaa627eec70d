// Package account implements the Account Pool (C3): the set of live
// accounts, their access-token lifecycle, and the per-(account, model-family)
// rate-limit ledger. Grounded on original_source's
// crates/oauth/src/accounts.rs (AccountManager/AccountRateLimits), rendered
// with the teacher's Go locking idiom (sync.Mutex + *Locked helper methods).
package account

import (
	"context"
	"fmt"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/models"
	"github.com/poemonsense/antigravity-proxy-go/internal/tokenstore"
)

// Account is the runtime-live view of one pool member (spec §3).
type Account struct {
	Index        int
	Email        string
	AccessToken  string
	AccessExpiry time.Time
	RefreshToken string
}

// NeedsRefresh reports whether the access token is within the staleness
// window of expiry (spec §3 invariant).
func (a Account) NeedsRefresh() bool {
	return time.Now().Add(staleness).After(a.AccessExpiry)
}

const staleness = 5 * time.Minute

// RateLimitEntry tracks one (account, family) rate-limit mark.
type RateLimitEntry struct {
	Until            time.Time
	ConsecutiveCount int
}

type familyLimits struct {
	claude *RateLimitEntry
	gemini *RateLimitEntry
}

func (f *familyLimits) get(fam models.Family) *RateLimitEntry {
	if fam == models.FamilyClaude {
		return f.claude
	}
	return f.gemini
}

func (f *familyLimits) set(fam models.Family, e *RateLimitEntry) {
	if fam == models.FamilyClaude {
		f.claude = e
	} else {
		f.gemini = e
	}
}

func (f *familyLimits) isRateLimited(fam models.Family, now time.Time) bool {
	e := f.get(fam)
	return e != nil && now.Before(e.Until)
}

func (f *familyLimits) empty() bool { return f.claude == nil && f.gemini == nil }

// Pool is the Account Pool (C3). All mutating operations are serialized
// under a single mutex; token refresh is performed while the lock is held,
// by design (spec §5) — it blocks only other C3 accesses, not upstream
// streaming, and prevents duplicate-refresh storms.
type Pool struct {
	store     *tokenstore.Store
	refresher TokenRefresher
	warn      func(format string, args ...interface{})

	mu            chan struct{} // binary semaphore; see lock()/unlock()
	accounts      []Account
	rateLimits    map[int]*familyLimits
	lastUsedIndex int
}

func NewPool(store *tokenstore.Store, refresher TokenRefresher, warn func(string, ...interface{})) *Pool {
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}
	p := &Pool{
		store:      store,
		refresher:  refresher,
		warn:       warn,
		mu:         make(chan struct{}, 1),
		rateLimits: make(map[int]*familyLimits),
	}
	p.mu <- struct{}{}
	return p
}

func (p *Pool) lock()   { <-p.mu }
func (p *Pool) unlock() { p.mu <- struct{}{} }

// LoadFromStore loads accounts from the Token Store, refreshing each one's
// access token eagerly. Accounts whose refresh fails are still added (with
// an already-expired access token) so they get a retry on first use.
func (p *Pool) LoadFromStore(ctx context.Context) error {
	doc, err := p.store.LoadAll()
	if err != nil {
		return err
	}

	p.lock()
	defer p.unlock()

	p.accounts = p.accounts[:0]
	for idx, sa := range doc.Accounts {
		acc := Account{Index: idx, Email: sa.Email, RefreshToken: sa.RefreshToken}
		refreshed, err := p.refresher.Refresh(ctx, sa.RefreshToken)
		if err != nil {
			p.warn("account: failed to refresh token for %s: %v", sa.Email, err)
			acc.AccessExpiry = time.Now().Add(-time.Hour)
		} else {
			acc.AccessToken = refreshed.AccessToken
			acc.AccessExpiry = refreshed.Expiry
			if refreshed.RefreshToken != "" {
				acc.RefreshToken = refreshed.RefreshToken
			}
		}
		p.accounts = append(p.accounts, acc)
	}
	if doc.ActiveIndex < len(p.accounts) {
		p.lastUsedIndex = doc.ActiveIndex
	}
	return nil
}

// Count returns the number of configured accounts.
func (p *Pool) Count() int {
	p.lock()
	defer p.unlock()
	return len(p.accounts)
}

// Emails returns all account emails, for display/CLI use.
func (p *Pool) Emails() []string {
	p.lock()
	defer p.unlock()
	out := make([]string, len(p.accounts))
	for i, a := range p.accounts {
		out[i] = a.Email
	}
	return out
}

// refreshInPlace refreshes account idx's token if stale, mutating it and
// persisting a rotated refresh token. Must be called with the lock held.
func (p *Pool) refreshInPlaceLocked(ctx context.Context, idx int) error {
	acc := &p.accounts[idx]
	if !acc.NeedsRefresh() {
		return nil
	}
	refreshed, err := p.refresher.Refresh(ctx, acc.RefreshToken)
	if err != nil {
		return err
	}
	acc.AccessToken = refreshed.AccessToken
	acc.AccessExpiry = refreshed.Expiry
	if refreshed.RefreshToken != "" && refreshed.RefreshToken != acc.RefreshToken {
		acc.RefreshToken = refreshed.RefreshToken
		if err := p.store.Add(acc.Email, acc.RefreshToken); err != nil {
			p.warn("account: failed to persist rotated refresh token for %s: %v", acc.Email, err)
		}
	}
	return nil
}

// LeaseAccountFor implements lease_account_for(model_id) (spec §4.3): scan
// from (last_used_index+1) mod n, skipping accounts whose entry for the
// model's family has not yet expired; refresh the first candidate's token if
// stale; update last_used_index; return it.
func (p *Pool) LeaseAccountFor(ctx context.Context, modelID string) (Account, bool) {
	fam := models.FamilyFromModelID(modelID)
	return p.lease(ctx, fam, false)
}

// LeaseAccountIgnoringLimits implements lease_account_ignoring_limits(): same
// scan, but does not consult the rate-limit ledger. Used by the Fallback
// Orchestrator for pre-emptive spoofing (S0).
func (p *Pool) LeaseAccountIgnoringLimits(ctx context.Context) (Account, bool) {
	return p.lease(ctx, models.FamilyUnknown, true)
}

func (p *Pool) lease(ctx context.Context, fam models.Family, ignoreLimits bool) (Account, bool) {
	p.lock()
	defer p.unlock()

	n := len(p.accounts)
	if n == 0 {
		return Account{}, false
	}
	now := time.Now()

	for offset := 0; offset < n; offset++ {
		idx := (p.lastUsedIndex + offset + 1) % n

		if !ignoreLimits {
			if lim, ok := p.rateLimits[idx]; ok && lim.isRateLimited(fam, now) {
				continue
			}
		}

		if err := p.refreshInPlaceLocked(ctx, idx); err != nil {
			p.warn("account: refresh failed for %s: %v", p.accounts[idx].Email, err)
			continue
		}

		p.lastUsedIndex = idx
		return p.accounts[idx], true
	}
	return Account{}, false
}

// MarkLimited implements mark_limited(index, family, until): set/overwrite
// the entry and increment consecutive_count. Capacity floor (45s) is applied
// by the caller (C6) before invoking this.
func (p *Pool) MarkLimited(index int, fam models.Family, until time.Time) {
	p.lock()
	defer p.unlock()

	lim, ok := p.rateLimits[index]
	if !ok {
		lim = &familyLimits{}
		p.rateLimits[index] = lim
	}
	prev := lim.get(fam)
	count := 1
	if prev != nil {
		count = prev.ConsecutiveCount + 1
	}
	lim.set(fam, &RateLimitEntry{Until: until, ConsecutiveCount: count})
}

// ClearLimit implements clear_limit(index, family): remove the family's
// entry; if both families are clear, drop the outer map entry entirely.
// Callers must never invoke this after a fallback-mitigated success — spec
// §4.3's "never clear on fallback success" invariant is enforced by the
// Fallback Orchestrator (C6), not here: this method unconditionally clears
// whatever it's told to.
func (p *Pool) ClearLimit(index int, fam models.Family) {
	p.lock()
	defer p.unlock()

	lim, ok := p.rateLimits[index]
	if !ok {
		return
	}
	lim.set(fam, nil)
	if lim.empty() {
		delete(p.rateLimits, index)
	}
}

// MinWaitFor implements min_wait_for(family): nil iff any account has no
// entry for that family; otherwise the minimum until-now across all
// accounts' entries for that family.
func (p *Pool) MinWaitFor(fam models.Family) (time.Duration, bool) {
	p.lock()
	defer p.unlock()

	now := time.Now()
	anyAvailable := false
	for i := range p.accounts {
		lim, ok := p.rateLimits[i]
		if !ok || !lim.isRateLimited(fam, now) {
			anyAvailable = true
			break
		}
	}
	if anyAvailable {
		return 0, false
	}

	var min time.Duration
	found := false
	for _, lim := range p.rateLimits {
		e := lim.get(fam)
		if e == nil || !e.Until.After(now) {
			continue
		}
		d := e.Until.Sub(now)
		if !found || d < min {
			min = d
			found = true
		}
	}
	return min, found
}

// AllRateLimitedFor reports whether every configured account is currently
// rate-limited for the given family.
func (p *Pool) AllRateLimitedFor(fam models.Family) bool {
	p.lock()
	defer p.unlock()
	if len(p.accounts) == 0 {
		return false
	}
	now := time.Now()
	for i := range p.accounts {
		lim, ok := p.rateLimits[i]
		if !ok || !lim.isRateLimited(fam, now) {
			return false
		}
	}
	return true
}

// AccountByIndex is a convenience accessor used by the orchestrator to
// re-read an account's current state (e.g. email for logging) by index.
func (p *Pool) AccountByIndex(index int) (Account, error) {
	p.lock()
	defer p.unlock()
	if index < 0 || index >= len(p.accounts) {
		return Account{}, fmt.Errorf("account: index %d out of range", index)
	}
	return p.accounts[index], nil
}
