package oauthsrv

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/byte4ever/codepublish/gitsync/git"
)

const (
	stateIssuer = "codepublish"
	// MinStateKeyLen is the shortest accepted HMAC key.
	MinStateKeyLen = 32
	// DefaultStateTTL bounds the time between install and
	// callback.
	DefaultStateTTL = 10 * time.Minute
)

// ErrInvalidState is returned for a state that is not signed
// by this server, has expired or names another provider.
var ErrInvalidState = errors.New("invalid oauth state")

// StateSigner issues and verifies the HS256 token carried as
// the OAuth state. The token binds the organization id to the
// provider for a limited time.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner returns a signer using key. A zero ttl means
// DefaultStateTTL.
func NewStateSigner(key []byte, ttl time.Duration) (*StateSigner, error) {
	const errCtx = "creating state signer"

	if len(key) < MinStateKeyLen {
		return nil, fmt.Errorf(
			"%s: key must be at least %d bytes: %w",
			errCtx, MinStateKeyLen, git.ErrConfiguration,
		)
	}

	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	return &StateSigner{
		key: append([]byte(nil), key...),
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Issue returns the state for installing orgID on kind.
func (s *StateSigner) Issue(kind git.Kind, orgID string) (string, error) {
	const errCtx = "issuing state"

	now := s.now()

	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		Subject:   orgID,
		Audience:  jwt.ClaimStrings{string(kind)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return state, nil
}

// Verify returns the organization id of a state issued for
// kind.
func (s *StateSigner) Verify(kind git.Kind, state string) (string, error) {
	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(
		state, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(string(kind)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: no organization", ErrInvalidState)
	}

	return claims.Subject, nil
}
