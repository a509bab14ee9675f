// Package factory builds the provider variant for a Kind.
package factory

import (
	"fmt"

	"github.com/byte4ever/codepublish/gitsync/git"
	"github.com/byte4ever/codepublish/gitsync/git/bitbucket"
	"github.com/byte4ever/codepublish/gitsync/git/github"
	"github.com/byte4ever/codepublish/gitsync/git/gitlab"
)

// Settings holds the configuration of every variant. Only
// the one matching the requested Kind is validated.
type Settings struct {
	GitHub    github.Config
	GitLab    gitlab.Config
	Bitbucket bitbucket.Config
}

// Builder creates a provider bound to one installation.
type Builder interface {
	Build(kind git.Kind, inst git.Installation) (git.Provider, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(kind git.Kind, inst git.Installation) (git.Provider, error)

// Build implements Builder.
func (f BuilderFunc) Build(
	kind git.Kind,
	inst git.Installation,
) (git.Provider, error) {
	return f(kind, inst)
}

// Build implements Builder with New.
func (s Settings) Build(
	kind git.Kind,
	inst git.Installation,
) (git.Provider, error) {
	return New(kind, s, inst)
}

// New returns the provider variant for kind.
func New(
	kind git.Kind,
	s Settings,
	inst git.Installation,
) (git.Provider, error) {
	const errCtx = "creating git provider"

	switch kind {
	case git.KindGitHub:
		p, err := github.NewProvider(s.GitHub, inst)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case git.KindGitLab:
		p, err := gitlab.NewProvider(s.GitLab, inst)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case git.KindBitbucket:
		p, err := bitbucket.NewProvider(s.Bitbucket, inst)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown provider %q: %w",
			errCtx, string(kind), git.ErrConfiguration,
		)
	}
}
