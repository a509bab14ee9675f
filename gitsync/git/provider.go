package git

import "context"

// Pattern: Strategy -- swap the hosting backend without
// changing the synchronization algorithm.

// Capable reports which capabilities a variant implements.
type Capable interface {
	Supports(c Capability) bool
}

// Authenticator covers the install and OAuth flow.
type Authenticator interface {
	// InstallationURL returns the URL a user visits to
	// install or authorize the integration. state is echoed
	// back on the callback.
	InstallationURL(ctx context.Context, state string) (string, error)
	// ExchangeCode trades an authorization code for a
	// credential.
	ExchangeCode(ctx context.Context, code string) (*OAuthCredential, error)
	// RefreshCredential trades a refresh token for a new
	// credential.
	RefreshCredential(
		ctx context.Context,
		refreshToken string,
	) (*OAuthCredential, error)
	// CurrentUser returns the account behind accessToken.
	CurrentUser(ctx context.Context, accessToken string) (*CurrentUser, error)
}

// Directory covers groups, organizations and repositories.
type Directory interface {
	ListGroups(ctx context.Context, page Page) (*GroupPage, error)
	Organization(ctx context.Context) (*Organization, error)
	DeleteOrganization(ctx context.Context) error
	Repository(ctx context.Context, ref RepoRef) (*RemoteRepository, error)
	ListRepositories(
		ctx context.Context,
		group string,
		page Page,
	) (*RepositoryPage, error)
	CreateRepository(
		ctx context.Context,
		in CreateRepositoryInput,
	) (*RemoteRepository, error)
}

// Contents covers file reads and API commits.
type Contents interface {
	// File returns nil without error when path does not
	// exist on branch, and an error wrapping
	// ErrDirectoryPath when it names a directory.
	File(
		ctx context.Context,
		ref RepoRef,
		path string,
		branch string,
	) (*File, error)
	CreateCommit(
		ctx context.Context,
		ref RepoRef,
		in CommitInput,
	) (*Commit, error)
}

// Branches covers branches and commit history.
type Branches interface {
	// Branch returns nil without error when the branch does
	// not exist.
	Branch(ctx context.Context, ref RepoRef, name string) (*Branch, error)
	CreateBranch(
		ctx context.Context,
		ref RepoRef,
		name string,
		sha string,
	) (*Branch, error)
	// FirstCommit returns the root commit of branch, or nil
	// without error when the branch has no commits.
	FirstCommit(ctx context.Context, ref RepoRef, branch string) (*Commit, error)
	// BotCommits returns the commits on branch authored by
	// the bot identity, newest first.
	BotCommits(ctx context.Context, ref RepoRef, branch string) ([]Commit, error)
	BotIdentity(ctx context.Context) (*Identity, error)
}

// PullRequests covers the pull-request lifecycle.
type PullRequests interface {
	// OpenPullRequest returns nil without error when branch
	// has no open pull request.
	OpenPullRequest(
		ctx context.Context,
		ref RepoRef,
		branch string,
	) (*PullRequest, error)
	CreatePullRequest(
		ctx context.Context,
		ref RepoRef,
		in PullRequestInput,
	) (*PullRequest, error)
	CommentOnPullRequest(
		ctx context.Context,
		ref RepoRef,
		number int,
		body string,
	) error
	// CreatePullRequestFromFiles commits files on a branch
	// through the API and returns the pull request URL.
	CreatePullRequestFromFiles(
		ctx context.Context,
		ref RepoRef,
		in FilesPullRequestInput,
	) (string, error)
}

// Cloner yields authenticated clone URLs.
type Cloner interface {
	// CloneToken returns a short-lived token for HTTPS git
	// transport.
	CloneToken(ctx context.Context) (string, error)
	// CloneURL embeds token into the HTTPS clone URL of ref.
	CloneURL(ref RepoRef, token string) string
}

// Provider is the full capability contract of a hosting
// backend.
type Provider interface {
	Capable
	Authenticator
	Directory
	Contents
	Branches
	PullRequests
	Cloner

	Identity() ProviderIdentity
}

// Primitives is the subset PullRequestFromFiles composes.
type Primitives interface {
	Directory
	Contents
	Branches
	PullRequests
}
