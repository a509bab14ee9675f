package git

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// ExchangeOAuthCode trades an authorization code for a
// credential using conf.
func ExchangeOAuthCode(
	ctx context.Context,
	conf *oauth2.Config,
	code string,
) (*OAuthCredential, error) {
	const errCtx = "exchanging oauth code"

	if code == "" {
		return nil, fmt.Errorf(
			"%s: code must be set: %w", errCtx, ErrConfiguration,
		)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return CredentialFromToken(tok), nil
}

// RefreshOAuthCredential trades refreshToken for a new
// credential using conf. A response without a refresh token
// keeps the old one.
func RefreshOAuthCredential(
	ctx context.Context,
	conf *oauth2.Config,
	refreshToken string,
) (*OAuthCredential, error) {
	const errCtx = "refreshing oauth credential"

	if refreshToken == "" {
		return nil, fmt.Errorf(
			"%s: refresh token must be set: %w",
			errCtx, ErrConfiguration,
		)
	}

	tok, err := conf.TokenSource(
		ctx, &oauth2.Token{RefreshToken: refreshToken},
	).Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return CredentialFromToken(tok), nil
}

// CredentialFromToken converts an oauth2 token. Scopes are
// read from the "scope" field, or "scopes" as Bitbucket
// sends them, comma or space separated.
func CredentialFromToken(tok *oauth2.Token) *OAuthCredential {
	cred := &OAuthCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}

	if !tok.Expiry.IsZero() {
		cred.ExpiresAt = tok.Expiry.UnixMilli()
	}

	for _, field := range []string{"scope", "scopes"} {
		if s, ok := tok.Extra(field).(string); ok && s != "" {
			cred.Scopes = strings.FieldsFunc(s, func(r rune) bool {
				return r == ',' || r == ' '
			})

			break
		}
	}

	return cred
}
