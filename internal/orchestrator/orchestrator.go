// Package orchestrator implements the Fallback Orchestrator (C6): the
// S0/S1/S1.5/S2 strategy ladder spec §4.6 fixes, session-repair retry, and
// the account-pool/upstream-client wiring between them. Grounded on the
// teacher's internal/cloudcode/message_handler.go and streaming_handler.go
// retry-with-failover loops, renamed onto spec's exact vocabulary and
// rendered against internal/account.Pool and internal/cloudcode.Client
// instead of the teacher's account.Manager.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/cloudcode"
	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	agerrors "github.com/poemonsense/antigravity-proxy-go/internal/errors"
	"github.com/poemonsense/antigravity-proxy-go/internal/fingerprint"
	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
)

// StatusFunc receives human-readable progress text for the SSE Mediator's
// status content-block (spec §4.7). Implementations must not block.
type StatusFunc func(text string)

func noStatus(string) {}

// Outcome describes which account/model a request was ultimately served
// from, for C3's "never clear on fallback success" bookkeeping (P6).
type Outcome struct {
	Account      account.Account
	Model        models.Model
	UsedFallback bool
}

// Orchestrator ties the Account Pool (C3) and Upstream Client (C4) together
// behind the fixed strategy ladder.
type Orchestrator struct {
	Pool    *account.Pool
	Client  *cloudcode.Client
	Project string // GOOGLE_CLOUD_PROJECT; may be a comma-separated pool
	Sig     *format.SignatureCache
}

func New(pool *account.Pool, client *cloudcode.Client, project string) *Orchestrator {
	return &Orchestrator{Pool: pool, Client: client, Project: project, Sig: format.NewSignatureCache(nil)}
}

// WithSignatureStore swaps the signature cache's backend, e.g. to a
// RedisSignatureStore for multi-process deployments.
func (o *Orchestrator) WithSignatureStore(store format.SignatureStore) *Orchestrator {
	o.Sig = format.NewSignatureCache(store)
	return o
}

// sessionRepairTriggers are the five whitelisted, case-insensitive
// recoverable-corruption substrings (spec §4.6/P3's trigger set). Unknown
// error text never triggers a repair retry, to avoid resending corrupted
// context on an unrelated failure.
var sessionRepairTriggers = []string{
	"tool_use without tool_result",
	"tool result missing",
	"expected thinking but found text",
	"thinking block out of order",
	"invalid thinking signature",
}

func looksLikeSessionCorruption(text string) bool {
	lower := strings.ToLower(text)
	for _, t := range sessionRepairTriggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// acquire implements the pool-lease + S0 pre-emptive-spoof entry point
// shared by RunUnary and RunStream: lease for the requested model; if none
// is available and the wait is nonzero, spoof pre-emptively to exploit
// family isolation whenever a substitute model exists, regardless of how
// long the wait is. Only when no substitute can be leased does the 600s cap
// decide between waiting it out and aborting.
func (o *Orchestrator) acquire(ctx context.Context, model models.Model, status StatusFunc) (account.Account, models.Model, bool, error) {
	status("finding account")

	for {
		acc, ok := o.Pool.LeaseAccountFor(ctx, model.APIID(""))
		if ok {
			return acc, model, false, nil
		}

		fam := model.Family()
		wait, limited := o.Pool.MinWaitFor(fam)
		if !limited {
			return account.Account{}, model, false, agerrors.NewNoAccountsError("No accounts configured", false)
		}

		if spoofed, ok := models.SpoofModel(model); ok {
			if acc, ok := o.Pool.LeaseAccountIgnoringLimits(ctx); ok {
				status("switching to " + spoofed.DisplayName())
				return acc, spoofed, true, nil
			}
		}

		if wait > time.Duration(config.WaitCapSeconds)*time.Second {
			resetMs := time.Now().Add(wait).UnixMilli()
			return account.Account{}, model, false, agerrors.NewRateLimitError(
				"All accounts rate-limited; wait exceeds cap", &resetMs, "")
		}

		status("rate-limited, waiting " + wait.Round(time.Second).String())
		select {
		case <-time.After(wait + 500*time.Millisecond):
		case <-ctx.Done():
			return account.Account{}, model, false, ctx.Err()
		}
	}
}

// buildRequest translates in (re-pointed at model if a fallback substituted
// it) into a CCA wire body, applying session repair when asked.
func (o *Orchestrator) buildRequest(ctx context.Context, in format.AnthropicIn, acc account.Account, model models.Model, repair bool) format.GoogleRequest {
	adjusted := in
	adjusted.Model = model
	if repair {
		lookup := o.Sig.Lookup(ctx, acc.Email, int(model.Family()))
		adjusted.Messages = format.RepairSession(in.Messages, lookup)
	}
	if model.IsClaude() != in.Model.IsClaude() && in.Thinking.Enabled {
		adjusted.Thinking.Level = models.ThinkingLevel(in.Thinking.Budget)
	}
	return format.BuildGoogleRequest(adjusted, cloudcode.PickProject(o.Project))
}

// markFromError applies mark_limited with the capacity floor / default
// rate-limit wait per spec §4.3/§4.6, returning whether the error class is
// one this orchestrator knows how to react to (vs. fatal/non-retryable).
func (o *Orchestrator) markFromError(index int, fam models.Family, upErr *cloudcode.UpstreamError) bool {
	switch upErr.Class {
	case cloudcode.ClassRateLimited:
		wait := upErr.RetryAfter
		if wait <= 0 {
			wait = time.Duration(config.DefaultRateLimitWaitS) * time.Second
		}
		o.Pool.MarkLimited(index, fam, time.Now().Add(wait))
		return true
	case cloudcode.ClassCapacityExhausted:
		wait := upErr.RetryAfter
		if wait < time.Duration(config.CapacityFloorSeconds)*time.Second {
			wait = time.Duration(config.CapacityFloorSeconds) * time.Second
		}
		o.Pool.MarkLimited(index, fam, time.Now().Add(wait))
		return true
	default:
		return false
	}
}

// fatalError converts a classified, non-retryable upstream failure into the
// errors-package taxonomy C7 maps to HTTP.
func fatalError(upErr *cloudcode.UpstreamError) error {
	switch upErr.Class {
	case cloudcode.ClassGenerateChatForbidden:
		return agerrors.NewAntigravityError(upErr.Message, "IAM_DENIED", false, nil)
	default:
		return agerrors.NewApiError(upErr.Message, upErr.StatusCode, "upstream_error")
	}
}

func logAttempt(acc account.Account, model models.Model, style fingerprint.Style) {
	utils.Debug("[orchestrator] attempt account=%s model=%s style=%d", acc.Email, model.DisplayName(), style)
}
