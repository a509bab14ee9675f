package gitlab

import (
	"context"
	"log/slog"
	"net/http"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// OpenPullRequest returns the opened merge request whose
// source branch is branch.
func (p *Provider) OpenPullRequest(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) (*git.PullRequest, error) {
	mrs, resp, err := p.client.MergeRequests.ListProjectMergeRequests(
		projectPath(ref),
		&gl.ListProjectMergeRequestsOptions{
			State:        gl.Ptr("opened"),
			SourceBranch: gl.Ptr(branch),
			ListOptions:  gl.ListOptions{PerPage: 1},
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, p.fail(git.CapOpenPullRequest, ref, branch, resp, err)
	}

	if len(mrs) == 0 {
		return nil, nil
	}

	return &git.PullRequest{
		URL:    mrs[0].WebURL,
		Number: int(mrs[0].IID),
		Branch: mrs[0].SourceBranch,
	}, nil
}

// CreatePullRequest opens a merge request. If one already
// exists (HTTP 409) the open one is returned.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	ref git.RepoRef,
	in git.PullRequestInput,
) (*git.PullRequest, error) {
	created, resp, err := p.client.MergeRequests.CreateMergeRequest(
		projectPath(ref),
		&gl.CreateMergeRequestOptions{
			Title:        gl.Ptr(in.Title),
			Description:  gl.Ptr(in.Body),
			SourceBranch: gl.Ptr(in.Branch),
			TargetBranch: gl.Ptr(in.Base),
		},
		gl.WithContext(ctx),
	)
	if err == nil {
		slog.Info("created merge request", "url", created.WebURL)

		return &git.PullRequest{
			URL:    created.WebURL,
			Number: int(created.IID),
			Branch: in.Branch,
		}, nil
	}

	// HTTP 409: MR already exists for this source
	// branch.
	if isStatus(resp, http.StatusConflict) {
		existing, findErr := p.OpenPullRequest(ctx, ref, in.Branch)
		if findErr == nil && existing != nil {
			slog.Info("reusing existing merge request", "url", existing.URL)

			return existing, nil
		}
	}

	return nil, p.fail(git.CapCreatePullRequest, ref, in.Branch, resp, err)
}

// CommentOnPullRequest adds a note to merge request number.
func (p *Provider) CommentOnPullRequest(
	ctx context.Context,
	ref git.RepoRef,
	number int,
	body string,
) error {
	_, resp, err := p.client.Notes.CreateMergeRequestNote(
		projectPath(ref), int64(number),
		&gl.CreateMergeRequestNoteOptions{Body: gl.Ptr(body)},
		gl.WithContext(ctx),
	)
	if err != nil {
		return p.fail(git.CapComment, ref, "", resp, err)
	}

	return nil
}

// CreatePullRequestFromFiles implements git.PullRequests.
func (p *Provider) CreatePullRequestFromFiles(
	ctx context.Context,
	ref git.RepoRef,
	in git.FilesPullRequestInput,
) (string, error) {
	return git.PullRequestFromFiles(ctx, p, ref, in)
}
