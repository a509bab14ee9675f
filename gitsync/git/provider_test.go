package git_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// stubPrimitives records calls made by PullRequestFromFiles.
type stubPrimitives struct {
	branches  map[string]string
	open      *git.PullRequest
	created   []git.PullRequestInput
	commits   []git.CommitInput
	newBranch []string
	commitErr error
}

func (s *stubPrimitives) ListGroups(context.Context, git.Page) (*git.GroupPage, error) {
	return nil, git.NotSupported("stub", git.CapListGroups)
}

func (s *stubPrimitives) Organization(context.Context) (*git.Organization, error) {
	return nil, git.NotSupported("stub", git.CapOrganization)
}

func (s *stubPrimitives) DeleteOrganization(context.Context) error {
	return git.NotSupported("stub", git.CapDeleteOrganization)
}

func (s *stubPrimitives) Repository(
	_ context.Context,
	ref git.RepoRef,
) (*git.RemoteRepository, error) {
	return &git.RemoteRepository{Name: ref.Name, DefaultBranch: "main"}, nil
}

func (s *stubPrimitives) ListRepositories(
	context.Context, string, git.Page,
) (*git.RepositoryPage, error) {
	return &git.RepositoryPage{}, nil
}

func (s *stubPrimitives) CreateRepository(
	context.Context, git.CreateRepositoryInput,
) (*git.RemoteRepository, error) {
	return nil, git.NotSupported("stub", git.CapCreateRepository)
}

func (s *stubPrimitives) File(
	context.Context, git.RepoRef, string, string,
) (*git.File, error) {
	return nil, nil
}

func (s *stubPrimitives) CreateCommit(
	_ context.Context,
	_ git.RepoRef,
	in git.CommitInput,
) (*git.Commit, error) {
	if s.commitErr != nil {
		return nil, s.commitErr
	}

	s.commits = append(s.commits, in)

	return &git.Commit{SHA: "c1"}, nil
}

func (s *stubPrimitives) Branch(
	_ context.Context,
	_ git.RepoRef,
	name string,
) (*git.Branch, error) {
	sha, ok := s.branches[name]
	if !ok {
		return nil, nil
	}

	return &git.Branch{Name: name, SHA: sha}, nil
}

func (s *stubPrimitives) CreateBranch(
	_ context.Context,
	_ git.RepoRef,
	name string,
	sha string,
) (*git.Branch, error) {
	s.branches[name] = sha
	s.newBranch = append(s.newBranch, name+"@"+sha)

	return &git.Branch{Name: name, SHA: sha}, nil
}

func (s *stubPrimitives) FirstCommit(
	context.Context, git.RepoRef, string,
) (*git.Commit, error) {
	return nil, nil
}

func (s *stubPrimitives) BotCommits(
	context.Context, git.RepoRef, string,
) ([]git.Commit, error) {
	return nil, nil
}

func (s *stubPrimitives) BotIdentity(context.Context) (*git.Identity, error) {
	return &git.Identity{Name: "bot", Email: "bot@example.com"}, nil
}

func (s *stubPrimitives) OpenPullRequest(
	context.Context, git.RepoRef, string,
) (*git.PullRequest, error) {
	return s.open, nil
}

func (s *stubPrimitives) CreatePullRequest(
	_ context.Context,
	_ git.RepoRef,
	in git.PullRequestInput,
) (*git.PullRequest, error) {
	s.created = append(s.created, in)

	return &git.PullRequest{URL: "https://pr/1", Number: 1, Branch: in.Branch}, nil
}

func (s *stubPrimitives) CommentOnPullRequest(
	context.Context, git.RepoRef, int, string,
) error {
	return nil
}

func (s *stubPrimitives) CreatePullRequestFromFiles(
	context.Context, git.RepoRef, git.FilesPullRequestInput,
) (string, error) {
	return "", git.NotSupported("stub", git.CapFilesPullRequest)
}

func TestPullRequestFromFiles_creates_branch_and_pr(t *testing.T) {
	t.Parallel()

	st := &stubPrimitives{branches: map[string]string{"main": "abc"}}
	ref := git.RepoRef{Owner: "org", Name: "repo"}

	url, err := git.PullRequestFromFiles(
		context.Background(), st, ref,
		git.FilesPullRequestInput{
			Branch:        "gen",
			CommitMessage: "regenerate",
			Title:         "title",
			Body:          "body",
			Files:         []git.GeneratedFile{{Path: "a.txt", Content: "v1"}},
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "https://pr/1", url)
	assert.Equal(t, []string{"gen@abc"}, st.newBranch)
	require.Len(t, st.commits, 1)
	assert.Equal(t, "gen", st.commits[0].Branch)
	require.Len(t, st.created, 1)
	assert.Equal(t, "main", st.created[0].Base)
	assert.Equal(t, "title", st.created[0].Title)
}

func TestPullRequestFromFiles_reuses_open_pr(t *testing.T) {
	t.Parallel()

	st := &stubPrimitives{
		branches: map[string]string{"main": "abc", "gen": "def"},
		open:     &git.PullRequest{URL: "https://pr/7", Number: 7},
	}

	url, err := git.PullRequestFromFiles(
		context.Background(), st,
		git.RepoRef{Owner: "org", Name: "repo"},
		git.FilesPullRequestInput{Branch: "gen"},
	)

	require.NoError(t, err)
	assert.Equal(t, "https://pr/7", url)
	assert.Empty(t, st.newBranch)
	assert.Empty(t, st.created)
}

func TestPullRequestFromFiles_missing_default_branch(t *testing.T) {
	t.Parallel()

	st := &stubPrimitives{branches: map[string]string{}}

	_, err := git.PullRequestFromFiles(
		context.Background(), st,
		git.RepoRef{Owner: "org", Name: "repo"},
		git.FilesPullRequestInput{Branch: "gen"},
	)

	assert.ErrorIs(t, err, git.ErrNotFound)
}

func TestPullRequestFromFiles_commit_error(t *testing.T) {
	t.Parallel()

	errTest := errors.New("test error")
	st := &stubPrimitives{
		branches:  map[string]string{"main": "abc"},
		commitErr: errTest,
	}

	_, err := git.PullRequestFromFiles(
		context.Background(), st,
		git.RepoRef{Owner: "org", Name: "repo"},
		git.FilesPullRequestInput{Branch: "gen"},
	)

	assert.ErrorIs(t, err, errTest)
	assert.Empty(t, st.created)
}

func TestOpError_context(t *testing.T) {
	t.Parallel()

	err := git.WrapOp(
		git.KindGitHub, "get branch",
		git.RepoRef{Owner: "org", Name: "repo"}, "main",
		git.ErrNotFound,
	)

	assert.ErrorIs(t, err, git.ErrNotFound)
	assert.Equal(t, "github: get branch org/repo@main: not found", err.Error())

	var oe *git.OpError

	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "main", oe.Branch)
	assert.NoError(t, git.WrapOp(git.KindGitHub, "x", git.RepoRef{}, "", nil))
}

func TestNotSupported(t *testing.T) {
	t.Parallel()

	err := git.NotSupported(git.KindBitbucket, git.CapDeleteOrganization)

	assert.ErrorIs(t, err, git.ErrNotSupported)
	assert.Contains(t, err.Error(), "delete organization")
}

func TestCapabilitySet(t *testing.T) {
	t.Parallel()

	all := git.NewCapabilitySet(git.AllCapabilities()...)
	some := all.Without(git.CapListGroups)

	assert.True(t, all.Has(git.CapListGroups))
	assert.False(t, some.Has(git.CapListGroups))
	assert.True(t, some.Has(git.CapFile))
	assert.Len(t, some, len(all)-1)
}

func TestMissing(t *testing.T) {
	t.Parallel()

	set := git.NewCapabilitySet(git.CapFile)

	got := git.Missing(
		capableFunc(set.Has), git.CapFile, git.CapBranch, git.CapComment,
	)

	assert.Equal(t, []git.Capability{git.CapBranch, git.CapComment}, got)
}

type capableFunc func(git.Capability) bool

func (f capableFunc) Supports(c git.Capability) bool { return f(c) }

func TestPullRequestMode_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, git.ModeBasic.Validate())
	require.NoError(t, git.ModeAccumulative.Validate())
	assert.ErrorIs(t, git.PullRequestMode("merge").Validate(), git.ErrInvalidMode)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := git.ParseKind("gitlab")
	require.NoError(t, err)
	assert.Equal(t, git.KindGitLab, k)

	_, err = git.ParseKind("gitea")
	assert.ErrorIs(t, err, git.ErrConfiguration)
}

func TestPatchConflictError(t *testing.T) {
	t.Parallel()

	err := error(&git.PatchConflictError{Files: []string{"a", "b"}})

	assert.ErrorIs(t, err, git.ErrPatchConflict)
	assert.Equal(t, "patch conflict in a, b", err.Error())
}

func TestRepoRef(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "org/r", git.RepoRef{Owner: "org", Name: "r"}.String())
	assert.Equal(
		t, "ws/r",
		git.RepoRef{Owner: "org", Group: "ws", Name: "r"}.String(),
	)
}

func TestOAuthCredential_Expiry(t *testing.T) {
	t.Parallel()

	assert.True(t, git.OAuthCredential{}.Expiry().IsZero())
	assert.Equal(
		t, int64(1700000000000),
		git.OAuthCredential{ExpiresAt: 1700000000000}.Expiry().UnixMilli(),
	)
}
