package orchestrator

import (
	"context"

	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/cloudcode"
	agerrors "github.com/poemonsense/antigravity-proxy-go/internal/errors"
	"github.com/poemonsense/antigravity-proxy-go/internal/fingerprint"
	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
)

// RunUnary executes one non-streaming request through the S0-S2 strategy
// ladder (spec §4.6), returning the parsed CCA response and which
// account/model it was ultimately served from.
func (o *Orchestrator) RunUnary(ctx context.Context, in format.AnthropicIn, status StatusFunc) (format.UnaryResult, Outcome, error) {
	if status == nil {
		status = noStatus
	}

	acc, model, usedFallback, err := o.acquire(ctx, in.Model, status)
	if err != nil {
		return format.UnaryResult{}, Outcome{}, err
	}
	status("using account " + acc.Email + ", generating")

	return o.attemptUnary(ctx, in, acc, model, usedFallback, status)
}

func (o *Orchestrator) attemptUnary(ctx context.Context, in format.AnthropicIn, acc account.Account, model models.Model, usedFallback bool, status StatusFunc) (format.UnaryResult, Outcome, error) {
	style := fingerprint.StylePrimary
	repaired := false
	spoofTried := false
	altTried := false
	triedAccounts := map[int]bool{acc.Index: true}
	originalFamily := in.Model.Family()

	maxAttempts := 2*(o.Pool.Count()+1) + 8
	for i := 0; i < maxAttempts; i++ {
		req := o.buildRequest(ctx, in, acc, model, repaired)
		cloudcode.Jitter(ctx)
		logAttempt(acc, model, style)

		resp, err := o.Client.SendUnary(ctx, acc.AccessToken, style, req)
		if err == nil {
			if !usedFallback {
				o.Pool.ClearLimit(acc.Index, model.Family())
			}
			result := format.ParseUnary(resp)
			o.Sig.Remember(ctx, acc.Email, int(model.Family()), result.Signature)
			return result, Outcome{Account: acc, Model: model, UsedFallback: usedFallback}, nil
		}

		upErr, ok := err.(*cloudcode.UpstreamError)
		if !ok {
			return format.UnaryResult{}, Outcome{}, err
		}

		if !repaired && looksLikeSessionCorruption(upErr.Message) {
			repaired = true
			status("session corruption detected, repairing and retrying")
			continue
		}

		if !o.markFromError(acc.Index, model.Family(), upErr) {
			return format.UnaryResult{}, Outcome{}, fatalError(upErr)
		}
		usedFallback = true
		repaired = false

		// S1: in-account spoof.
		if !spoofTried {
			if spoofed, ok := models.SpoofModel(model); ok {
				spoofTried = true
				status("rate limit hit on " + model.DisplayName() + ". switching to " + spoofed.DisplayName() + " on account " + acc.Email)
				model = spoofed
				continue
			}
			spoofTried = true
		}

		// S1.5: dual-quota, Gemini only — scoped to the originally requested
		// model's family, not a model S0/S1 may have spoofed it to.
		if !altTried && style == fingerprint.StylePrimary && originalFamily == models.FamilyGemini {
			altTried = true
			status("retrying " + model.DisplayName() + " against the alternate quota pool")
			style = fingerprint.StyleAlt
			continue
		}

		// S2: account rotation.
		next, ok := o.Pool.LeaseAccountFor(ctx, model.APIID(""))
		if !ok || triedAccounts[next.Index] {
			return format.UnaryResult{}, Outcome{}, agerrors.NewNoAccountsError("All accounts exhausted for "+model.DisplayName(), true)
		}
		status("rate limit hit on account " + acc.Email + ". rotating to " + next.Email)
		acc = next
		triedAccounts[acc.Index] = true
		style = fingerprint.StylePrimary
		spoofTried = false
		altTried = false
	}

	return format.UnaryResult{}, Outcome{}, agerrors.NewMaxRetriesError("Exhausted fallback strategies for "+model.DisplayName(), maxAttempts)
}
