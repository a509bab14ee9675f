package git

import (
	"fmt"
	"time"
)

// Kind tags a provider variant. The set is closed.
type Kind string

// Provider variants.
const (
	KindGitHub    Kind = "github"
	KindGitLab    Kind = "gitlab"
	KindBitbucket Kind = "bitbucket"
)

// Kinds lists every known variant.
func Kinds() []Kind {
	return []Kind{KindGitHub, KindGitLab, KindBitbucket}
}

// ParseKind maps a provider name to its Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == name {
			return k, nil
		}
	}

	return "", fmt.Errorf(
		"unknown provider %q: %w", name, ErrConfiguration,
	)
}

// ProviderIdentity names a provider variant instance.
type ProviderIdentity struct {
	Name   Kind
	Domain string
}

// OAuthCredential is the token set owned by an organization
// integration. ExpiresAt is in epoch milliseconds; zero means
// the token never expires.
type OAuthCredential struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	TokenType    string   `json:"tokenType,omitempty"`
	ExpiresAt    int64    `json:"expiresAt,omitempty"`
}

// Expiry returns ExpiresAt as a time. The zero time is
// returned for non-expiring credentials.
func (c OAuthCredential) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}

	return time.UnixMilli(c.ExpiresAt)
}

// Installation carries the organization-level properties a
// provider variant is built with.
type Installation struct {
	// InstallationID is the GitHub App installation id.
	// Unused by the other variants.
	InstallationID string
	// Credential is the stored OAuth token set.
	Credential OAuthCredential
}

// CurrentUser is the account behind an OAuth access token.
type CurrentUser struct {
	Username    string
	DisplayName string
	UUID        string
	AvatarURL   string
	// UseGroupingForRepositories is true when repositories
	// are listed per group (workspace, namespace).
	UseGroupingForRepositories bool
}

// Organization is the account a provider installation is
// bound to.
type Organization struct {
	Name string
	Type string
}

// Group is a repository container: a Bitbucket workspace or a
// GitLab group.
type Group struct {
	ID   string
	Name string
	Slug string
}

// Page selects one page of a listing. Values are passed to
// the provider unmodified.
type Page struct {
	Page     int
	PageSize int
}

// GroupPage is one page of groups. Pagination fields keep the
// provider's own semantics.
type GroupPage struct {
	Groups   []Group
	Total    int
	Page     int
	PageSize int
	Next     string
	Previous string
}

// RemoteRepository is a read-mostly snapshot of a hosted
// repository, never cached beyond one run.
type RemoteRepository struct {
	Name          string
	URL           string
	IsPrivate     bool
	FullName      string
	IsAdmin       bool
	DefaultBranch string
}

// RepositoryPage is one page of repositories.
type RepositoryPage struct {
	Repositories []RemoteRepository
	Total        int
	Page         int
	PageSize     int
}

// RepoRef addresses a repository. Group is the Bitbucket
// workspace or GitLab namespace when it differs from Owner.
type RepoRef struct {
	Owner string
	Name  string
	Group string
}

// Namespace returns Group when set, Owner otherwise.
func (r RepoRef) Namespace() string {
	if r.Group != "" {
		return r.Group
	}

	return r.Owner
}

// String returns "namespace/name".
func (r RepoRef) String() string {
	return r.Namespace() + "/" + r.Name
}

// CreateRepositoryInput describes a repository to create.
type CreateRepositoryInput struct {
	Ref       RepoRef
	IsPrivate bool
	// OwnerIsUser is true when Owner is a personal account
	// rather than an organization.
	OwnerIsUser bool
}

// File is a file read from a repository.
type File struct {
	Name    string
	Path    string
	Content string
	HTMLURL string
}

// GeneratedFile is one file of a generated file set. Deleted
// marks a file to remove from the branch.
type GeneratedFile struct {
	Path    string
	Content string
	Deleted bool
}

// Identity is a commit author.
type Identity struct {
	Name  string
	Email string
	// Login is the provider account name, when the
	// provider filters commits by account.
	Login string
}

// String formats the identity the way git --author expects.
func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.Name == "" && i.Email == ""
}

// Branch is a named ref and the commit it points to.
type Branch struct {
	Name string
	SHA  string
}

// Commit is a commit as reported by the provider.
type Commit struct {
	SHA       string
	Message   string
	Author    Identity
	Timestamp time.Time
}

// PullRequest is an open pull (merge) request.
type PullRequest struct {
	URL    string
	Number int
	Branch string
}

// PullRequestInput describes a pull request to open from
// Branch into Base.
type PullRequestInput struct {
	Branch string
	Base   string
	Title  string
	Body   string
}

// CommitInput describes a commit created through the
// provider API, on top of the head of Branch.
type CommitInput struct {
	Branch  string
	Message string
	Files   []GeneratedFile
	// Author defaults to the provider's bot identity.
	Author Identity
}

// FilesPullRequestInput describes a stateless publish: one
// commit of Files on Branch and a pull request into the
// default branch.
type FilesPullRequestInput struct {
	Branch        string
	CommitMessage string
	Title         string
	Body          string
	Files         []GeneratedFile
}
