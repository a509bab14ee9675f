package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// jwtLifetime stays under the ten minutes GitHub accepts.
const jwtLifetime = 9 * time.Minute

// appTransport signs every request with a fresh App JWT.
type appTransport struct {
	appID int64
	key   *rsa.PrivateKey
	base  http.RoundTripper
	now   func() time.Time
}

func (t *appTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	const errCtx = "signing app request"

	token, err := t.sign()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)

	return t.base.RoundTrip(req)
}

func (t *appTransport) sign() (string, error) {
	now := t.now()

	claims := jwt.RegisteredClaims{
		Issuer: strconv.FormatInt(t.appID, 10),
		// Backdated to absorb clock drift.
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtLifetime)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).
		SignedString(t.key)
}

// installationTokens mints installation access tokens from
// the App client. Wrap it in oauth2.ReuseTokenSource to
// cache tokens until they expire.
type installationTokens struct {
	app            *gh.Client
	installationID int64
	timeout        time.Duration
}

func (s *installationTokens) Token() (*oauth2.Token, error) {
	const errCtx = "creating installation token"

	ctx, cancel := context.WithTimeout(
		context.Background(), s.timeout,
	)
	defer cancel()

	tok, _, err := s.app.Apps.CreateInstallationToken(
		ctx, s.installationID, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &oauth2.Token{
		AccessToken: tok.GetToken(),
		Expiry:      tok.GetExpiresAt().Time,
	}, nil
}
