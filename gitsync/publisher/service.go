package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/byte4ever/codepublish/gitsync/credstore"
	"github.com/byte4ever/codepublish/gitsync/git"
	"github.com/byte4ever/codepublish/gitsync/git/factory"
)

// RefreshThreshold is how close to expiry a stored credential
// must be to get refreshed before a run.
const RefreshThreshold = 5 * time.Minute

// Service binds stored organizations to the Synchronizer.
type Service struct {
	store   credstore.Store
	builder factory.Builder
	sync    *Synchronizer
	now     func() time.Time
}

// NewService returns a Service building providers with
// builder from the records of store.
func NewService(
	store credstore.Store,
	builder factory.Builder,
	sync *Synchronizer,
) *Service {
	return &Service{
		store:   store,
		builder: builder,
		sync:    sync,
		now:     time.Now,
	}
}

// Publish runs req for the organization orgID and returns
// the pull request URL.
func (s *Service) Publish(
	ctx context.Context,
	orgID string,
	req Request,
) (string, error) {
	const errCtx = "publishing for organization"

	p, err := s.Provider(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", errCtx, orgID, err)
	}

	res, err := s.sync.Publish(ctx, p, req)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", errCtx, orgID, err)
	}

	return res.URL, nil
}

// Provider returns the provider of organization orgID. A
// credential expiring within RefreshThreshold is refreshed
// and saved first; other credentials are used as stored.
func (s *Service) Provider(
	ctx context.Context,
	orgID string,
) (git.Provider, error) {
	const errCtx = "resolving provider"

	org, err := s.store.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	p, err := s.builder.Build(org.Provider, org.Installation())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !NeedsRefresh(org.Credential, s.now()) {
		return p, nil
	}

	if !p.Supports(git.CapRefreshCredential) {
		return nil, fmt.Errorf(
			"%s: %w",
			errCtx, git.NotSupported(org.Provider, git.CapRefreshCredential),
		)
	}

	cred, err := p.RefreshCredential(ctx, org.Credential.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	org.Credential = MergeCredential(org.Credential, *cred)

	if err := s.store.Save(ctx, *org); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"refreshed credential",
		"organization", org.ID,
		"provider", string(org.Provider),
		"expires_at", org.Credential.Expiry(),
	)

	p, err = s.builder.Build(org.Provider, org.Installation())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return p, nil
}

// NeedsRefresh reports whether cred expires within
// RefreshThreshold of now. Credentials without expiry never
// need a refresh.
func NeedsRefresh(cred git.OAuthCredential, now time.Time) bool {
	if cred.ExpiresAt == 0 {
		return false
	}

	return cred.Expiry().Sub(now) <= RefreshThreshold
}

// MergeCredential overlays fresh onto stored. The refresh
// token and scopes are kept when the provider omits them.
func MergeCredential(stored, fresh git.OAuthCredential) git.OAuthCredential {
	out := fresh

	if out.RefreshToken == "" {
		out.RefreshToken = stored.RefreshToken
	}

	if len(out.Scopes) == 0 {
		out.Scopes = stored.Scopes
	}

	if out.TokenType == "" {
		out.TokenType = stored.TokenType
	}

	return out
}
