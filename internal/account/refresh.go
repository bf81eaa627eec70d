package account

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/poemonsense/antigravity-proxy-go/internal/config"
)

// ErrInvalidGrant is returned when the provider reports the refresh token has
// been revoked. It is fatal and non-retryable (spec §4.3/§7 auth_required).
var ErrInvalidGrant = errors.New("account: refresh token invalid (invalid_grant), re-authentication required")

// Refreshed is the result of exchanging a refresh token for a fresh access
// token.
type Refreshed struct {
	AccessToken  string
	Expiry       time.Time
	RefreshToken string // only set when the provider rotated it
}

// TokenRefresher performs the OAuth refresh_token grant. The production
// implementation wraps golang.org/x/oauth2; tests inject a stub.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Refreshed, error)
}

// OAuth2Refresher is the production TokenRefresher, backed by
// golang.org/x/oauth2's TokenSource against the configured provider token
// endpoint.
type OAuth2Refresher struct {
	conf *oauth2.Config
}

func NewOAuth2Refresher() *OAuth2Refresher {
	return &OAuth2Refresher{
		conf: &oauth2.Config{
			ClientID:     config.OAuthConfig.ClientID,
			ClientSecret: config.OAuthConfig.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: config.OAuthConfig.TokenURL,
			},
			Scopes: config.OAuthConfig.Scopes,
		},
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (Refreshed, error) {
	src := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return Refreshed{}, ErrInvalidGrant
		}
		return Refreshed{}, err
	}

	out := Refreshed{AccessToken: tok.AccessToken, Expiry: tok.Expiry}
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		out.RefreshToken = tok.RefreshToken
	}
	return out, nil
}
