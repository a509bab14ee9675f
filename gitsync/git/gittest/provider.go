package gittest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// DefaultBot is the bot identity of a new Provider.
var DefaultBot = git.Identity{
	Name:  "codepublish[bot]",
	Email: "bot@codepublish.test",
}

// Provider is a git.Provider working on a Remote. Pull
// requests and comments are kept in memory.
//
// Pattern: Strategy -- implements git.Provider.
type Provider struct {
	Remote        *Remote
	Kind          git.Kind
	DefaultBranch string
	Bot           git.Identity
	Caps          git.CapabilitySet

	// Refreshed is returned by RefreshCredential.
	Refreshed *git.OAuthCredential
	// CommentErr fails CommentOnPullRequest.
	CommentErr error

	mu         sync.Mutex
	calls      []git.Capability
	pulls      []git.PullRequest
	comments   map[int][]string
	filesPulls []git.FilesPullRequestInput
}

var _ git.Provider = (*Provider)(nil)

// NewProvider returns a GitHub-flavoured Provider on remote
// with every capability.
func NewProvider(remote *Remote) *Provider {
	return &Provider{
		Remote:        remote,
		Kind:          git.KindGitHub,
		DefaultBranch: "main",
		Bot:           DefaultBot,
		Caps:          git.NewCapabilitySet(git.AllCapabilities()...),
		comments:      make(map[int][]string),
	}
}

// Calls returns the capabilities invoked so far, in order.
func (p *Provider) Calls() []git.Capability {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]git.Capability(nil), p.calls...)
}

// PullRequests returns the pull requests created so far.
func (p *Provider) PullRequests() []git.PullRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]git.PullRequest(nil), p.pulls...)
}

// Comments returns the comments of pull request number.
func (p *Provider) Comments(number int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.comments[number]...)
}

// FilesPullRequests returns the inputs of
// CreatePullRequestFromFiles calls.
func (p *Provider) FilesPullRequests() []git.FilesPullRequestInput {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]git.FilesPullRequestInput(nil), p.filesPulls...)
}

func (p *Provider) record(c git.Capability) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, c)
}

func (p *Provider) fail(c git.Capability, ref git.RepoRef, branch string, err error) error {
	return git.WrapOp(p.Kind, string(c), ref, branch, err)
}

// Identity implements git.Provider.
func (p *Provider) Identity() git.ProviderIdentity {
	return git.ProviderIdentity{Name: p.Kind, Domain: "git.test"}
}

// Supports implements git.Capable.
func (p *Provider) Supports(c git.Capability) bool {
	return p.Caps.Has(c)
}

// InstallationURL implements git.Authenticator.
func (p *Provider) InstallationURL(_ context.Context, state string) (string, error) {
	p.record(git.CapInstallationURL)

	return "https://git.test/install?state=" + state, nil
}

// ExchangeCode implements git.Authenticator.
func (p *Provider) ExchangeCode(_ context.Context, code string) (*git.OAuthCredential, error) {
	p.record(git.CapExchangeCode)

	return &git.OAuthCredential{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		TokenType:    "bearer",
	}, nil
}

// RefreshCredential implements git.Authenticator.
func (p *Provider) RefreshCredential(context.Context, string) (*git.OAuthCredential, error) {
	p.record(git.CapRefreshCredential)

	if p.Refreshed == nil {
		return nil, p.fail(git.CapRefreshCredential, git.RepoRef{}, "", git.ErrConfiguration)
	}

	cred := *p.Refreshed

	return &cred, nil
}

// CurrentUser implements git.Authenticator.
func (p *Provider) CurrentUser(_ context.Context, token string) (*git.CurrentUser, error) {
	p.record(git.CapCurrentUser)

	return &git.CurrentUser{Username: "user-" + token, DisplayName: "User"}, nil
}

// ListGroups implements git.Directory.
func (p *Provider) ListGroups(context.Context, git.Page) (*git.GroupPage, error) {
	return nil, git.NotSupported(p.Kind, git.CapListGroups)
}

// Organization implements git.Directory.
func (p *Provider) Organization(context.Context) (*git.Organization, error) {
	p.record(git.CapOrganization)

	return &git.Organization{Name: "acme", Type: "Organization"}, nil
}

// DeleteOrganization implements git.Directory.
func (p *Provider) DeleteOrganization(context.Context) error {
	return git.NotSupported(p.Kind, git.CapDeleteOrganization)
}

// Repository implements git.Directory.
func (p *Provider) Repository(_ context.Context, ref git.RepoRef) (*git.RemoteRepository, error) {
	p.record(git.CapRepository)

	return &git.RemoteRepository{
		Name:          ref.Name,
		FullName:      ref.String(),
		URL:           "https://git.test/" + ref.String(),
		IsPrivate:     true,
		IsAdmin:       true,
		DefaultBranch: p.DefaultBranch,
	}, nil
}

// ListRepositories implements git.Directory.
func (p *Provider) ListRepositories(context.Context, string, git.Page) (*git.RepositoryPage, error) {
	return nil, git.NotSupported(p.Kind, git.CapListRepositories)
}

// CreateRepository implements git.Directory.
func (p *Provider) CreateRepository(context.Context, git.CreateRepositoryInput) (*git.RemoteRepository, error) {
	return nil, git.NotSupported(p.Kind, git.CapCreateRepository)
}

// File implements git.Contents.
func (p *Provider) File(
	_ context.Context,
	ref git.RepoRef,
	path string,
	branch string,
) (*git.File, error) {
	p.record(git.CapFile)

	kind, err := run(p.Remote.Dir, "cat-file", "-t", branch+":"+path)
	if err != nil {
		return nil, nil
	}

	if strings.TrimSpace(kind) == "tree" {
		return nil, p.fail(git.CapFile, ref, branch, git.ErrDirectoryPath)
	}

	content, _ := p.Remote.Show(branch, path)

	return &git.File{Name: path, Path: path, Content: content}, nil
}

// CreateCommit implements git.Contents.
func (p *Provider) CreateCommit(context.Context, git.RepoRef, git.CommitInput) (*git.Commit, error) {
	return nil, git.NotSupported(p.Kind, git.CapCreateCommit)
}

// Branch implements git.Branches.
func (p *Provider) Branch(_ context.Context, _ git.RepoRef, name string) (*git.Branch, error) {
	p.record(git.CapBranch)

	if !p.Remote.Has("refs/heads/" + name) {
		return nil, nil
	}

	return &git.Branch{Name: name, SHA: p.Remote.SHA("refs/heads/" + name)}, nil
}

// CreateBranch implements git.Branches.
func (p *Provider) CreateBranch(
	_ context.Context,
	ref git.RepoRef,
	name string,
	sha string,
) (*git.Branch, error) {
	p.record(git.CapCreateBranch)

	if _, err := run(p.Remote.Dir, "update-ref", "refs/heads/"+name, sha, ""); err != nil {
		return nil, p.fail(git.CapCreateBranch, ref, name, err)
	}

	return &git.Branch{Name: name, SHA: sha}, nil
}

// FirstCommit implements git.Branches.
func (p *Provider) FirstCommit(
	_ context.Context,
	ref git.RepoRef,
	branch string,
) (*git.Commit, error) {
	p.record(git.CapFirstCommit)

	if !p.Remote.Has("refs/heads/" + branch) {
		return nil, nil
	}

	entries, err := log(p.Remote.Dir, branch)
	if err != nil {
		return nil, p.fail(git.CapFirstCommit, ref, branch, err)
	}

	last := entries[len(entries)-1]

	return &git.Commit{SHA: last.SHA, Message: last.Message, Author: last.Author}, nil
}

// BotCommits implements git.Branches.
func (p *Provider) BotCommits(
	_ context.Context,
	ref git.RepoRef,
	branch string,
) ([]git.Commit, error) {
	p.record(git.CapBotCommits)

	if !p.Remote.Has("refs/heads/" + branch) {
		return nil, nil
	}

	entries, err := log(p.Remote.Dir, branch)
	if err != nil {
		return nil, p.fail(git.CapBotCommits, ref, branch, err)
	}

	var out []git.Commit

	for _, e := range entries {
		if strings.EqualFold(e.Author.Email, p.Bot.Email) {
			out = append(out, git.Commit{SHA: e.SHA, Message: e.Message, Author: e.Author})
		}
	}

	return out, nil
}

// BotIdentity implements git.Branches.
func (p *Provider) BotIdentity(context.Context) (*git.Identity, error) {
	p.record(git.CapBotIdentity)

	bot := p.Bot

	return &bot, nil
}

// OpenPullRequest implements git.PullRequests.
func (p *Provider) OpenPullRequest(
	_ context.Context,
	_ git.RepoRef,
	branch string,
) (*git.PullRequest, error) {
	p.record(git.CapOpenPullRequest)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pr := range p.pulls {
		if pr.Branch == branch {
			pr := pr

			return &pr, nil
		}
	}

	return nil, nil
}

// CreatePullRequest implements git.PullRequests.
func (p *Provider) CreatePullRequest(
	_ context.Context,
	ref git.RepoRef,
	in git.PullRequestInput,
) (*git.PullRequest, error) {
	p.record(git.CapCreatePullRequest)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pr := range p.pulls {
		if pr.Branch == in.Branch {
			return nil, p.fail(git.CapCreatePullRequest, ref, in.Branch, git.ErrConflict)
		}
	}

	n := len(p.pulls) + 1
	pr := git.PullRequest{
		URL:    fmt.Sprintf("https://git.test/%s/pull/%d", ref, n),
		Number: n,
		Branch: in.Branch,
	}

	p.pulls = append(p.pulls, pr)

	return &pr, nil
}

// CommentOnPullRequest implements git.PullRequests.
func (p *Provider) CommentOnPullRequest(
	_ context.Context,
	ref git.RepoRef,
	number int,
	body string,
) error {
	p.record(git.CapComment)

	if p.CommentErr != nil {
		return p.fail(git.CapComment, ref, "", p.CommentErr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.comments[number] = append(p.comments[number], body)

	return nil
}

// CreatePullRequestFromFiles implements git.PullRequests.
func (p *Provider) CreatePullRequestFromFiles(
	_ context.Context,
	ref git.RepoRef,
	in git.FilesPullRequestInput,
) (string, error) {
	p.record(git.CapFilesPullRequest)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesPulls = append(p.filesPulls, in)

	return "https://git.test/" + ref.String() + "/pull/files", nil
}

// CloneToken implements git.Cloner.
func (p *Provider) CloneToken(context.Context) (string, error) {
	p.record(git.CapCloneURL)

	return "token", nil
}

// CloneURL implements git.Cloner with the local remote path.
func (p *Provider) CloneURL(git.RepoRef, string) string {
	return p.Remote.Dir
}
