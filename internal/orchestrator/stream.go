package orchestrator

import (
	"context"
	"net/http"

	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/cloudcode"
	agerrors "github.com/poemonsense/antigravity-proxy-go/internal/errors"
	"github.com/poemonsense/antigravity-proxy-go/internal/fingerprint"
	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
)

// StreamResult is what RunStream's Wait() returns: the account/model a
// streaming request finished on, or the terminal error if every strategy
// was exhausted.
type StreamResult struct {
	Outcome Outcome
	Err     error
}

// RunStream executes one streaming request through the same S0-S2 ladder as
// RunUnary, delivering format.StreamChunk values on the returned channel as
// they arrive from the upstream SSE connection. A fallback mid-stream (an
// error after the connection was established) surfaces as a status()
// announcement followed by a fresh attempt on the same channel — the caller
// (C7's SSE Mediator) never sees the channel close until the request is
// either fully satisfied or has exhausted every strategy. Wait() blocks
// until the channel closes and returns the final outcome.
func (o *Orchestrator) RunStream(ctx context.Context, in format.AnthropicIn, status StatusFunc) (chunks <-chan format.StreamChunk, wait func() StreamResult) {
	if status == nil {
		status = noStatus
	}

	out := make(chan format.StreamChunk, 32)
	result := make(chan StreamResult, 1)

	go func() {
		defer close(out)

		acc, model, usedFallback, err := o.acquire(ctx, in.Model, status)
		if err != nil {
			result <- StreamResult{Err: err}
			return
		}
		status("using account " + acc.Email + ", generating")

		outcome, err := o.attemptStream(ctx, in, acc, model, usedFallback, status, out)
		result <- StreamResult{Outcome: outcome, Err: err}
	}()

	var cached *StreamResult
	return out, func() StreamResult {
		if cached == nil {
			r := <-result
			cached = &r
		}
		return *cached
	}
}

func (o *Orchestrator) attemptStream(ctx context.Context, in format.AnthropicIn, acc account.Account, model models.Model, usedFallback bool, status StatusFunc, out chan<- format.StreamChunk) (Outcome, error) {
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

		resp, upErr, err := o.Client.SendStream(ctx, acc.AccessToken, style, req)
		if err != nil {
			return Outcome{}, err
		}

		if upErr == nil {
			completed, signature, readErr := drainStream(resp, out)
			if readErr == nil {
				if completed && !usedFallback {
					o.Pool.ClearLimit(acc.Index, model.Family())
				}
				o.Sig.Remember(ctx, acc.Email, int(model.Family()), signature)
				return Outcome{Account: acc, Model: model, UsedFallback: usedFallback}, nil
			}
			upErr = &cloudcode.UpstreamError{Class: cloudcode.ClassServerError, Message: readErr.Error()}
		}

		if !repaired && looksLikeSessionCorruption(upErr.Message) {
			repaired = true
			status("session corruption detected, repairing and retrying")
			continue
		}

		if !o.markFromError(acc.Index, model.Family(), upErr) {
			return Outcome{}, fatalError(upErr)
		}
		usedFallback = true
		repaired = false

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

		next, ok := o.Pool.LeaseAccountFor(ctx, model.APIID(""))
		if !ok || triedAccounts[next.Index] {
			return Outcome{}, agerrors.NewNoAccountsError("All accounts exhausted for "+model.DisplayName(), true)
		}
		status("rate limit hit on account " + acc.Email + ". rotating to " + next.Email)
		acc = next
		triedAccounts[acc.Index] = true
		style = fingerprint.StylePrimary
		spoofTried = false
		altTried = false
	}

	return Outcome{}, agerrors.NewMaxRetriesError("Exhausted fallback strategies for "+model.DisplayName(), maxAttempts)
}

// drainStream forwards every upstream SSE event's chunks to out, returning
// (true, signature, nil) once the body is exhausted cleanly (emitting a
// final Done chunk carrying the last-seen usage), or (false, "", err) if the
// read loop terminated on an error partway through — chunks already
// forwarded stay on out; the mediator is responsible for treating a
// subsequent fallback announcement as a new segment of the same content
// stream. signature is the last thought signature seen, for the caller to
// remember in the signature cache.
func drainStream(resp *http.Response, out chan<- format.StreamChunk) (bool, string, error) {
	events, errs := cloudcode.ReadStream(resp)

	var lastUsage struct{ in, outTok int }
	var signature string
	for event := range events {
		for _, chunk := range format.WalkStreamParts(event) {
			if chunk.Signature != "" {
				signature = chunk.Signature
			}
			out <- chunk
		}
		if event.UsageMetadata != nil {
			lastUsage.in = event.UsageMetadata.PromptTokenCount
			lastUsage.outTok = event.UsageMetadata.CandidatesTokenCount
		}
	}

	if err := <-errs; err != nil {
		return false, "", err
	}

	out <- format.StreamChunk{Done: true, InputTokens: lastUsage.in, OutputTokens: lastUsage.outTok}
	return true, signature, nil
}
