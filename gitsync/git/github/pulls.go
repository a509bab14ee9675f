package github

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// OpenPullRequest implements git.PullRequests.
func (p *Provider) OpenPullRequest(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) (*git.PullRequest, error) {
	prs, resp, err := p.client.PullRequests.List(
		ctx, ref.Owner, ref.Name,
		&gh.PullRequestListOptions{
			State:       "open",
			Head:        ref.Owner + ":" + branch,
			ListOptions: gh.ListOptions{PerPage: 1},
		},
	)
	if err != nil {
		return nil, p.fail(git.CapOpenPullRequest, ref, branch, resp, err)
	}

	if len(prs) == 0 {
		return nil, nil
	}

	return toPullRequest(prs[0]), nil
}

// CreatePullRequest implements git.PullRequests. If a pull
// request already exists (HTTP 422) the open one is returned.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	ref git.RepoRef,
	in git.PullRequestInput,
) (*git.PullRequest, error) {
	created, resp, err := p.client.PullRequests.Create(
		ctx, ref.Owner, ref.Name,
		&gh.NewPullRequest{
			Title: gh.Ptr(in.Title),
			Head:  gh.Ptr(in.Branch),
			Base:  gh.Ptr(in.Base),
			Body:  gh.Ptr(in.Body),
		},
	)
	if err == nil {
		slog.Info("created pull request", "url", created.GetHTMLURL())

		return toPullRequest(created), nil
	}

	// HTTP 422: PR already exists for this
	// head/base pair.
	if isStatus(resp, http.StatusUnprocessableEntity) {
		existing, findErr := p.OpenPullRequest(ctx, ref, in.Branch)
		if findErr == nil && existing != nil {
			slog.Info("reusing existing pull request", "url", existing.URL)

			return existing, nil
		}
	}

	logBody(resp)

	return nil, p.fail(git.CapCreatePullRequest, ref, in.Branch, resp, err)
}

// CommentOnPullRequest implements git.PullRequests.
func (p *Provider) CommentOnPullRequest(
	ctx context.Context,
	ref git.RepoRef,
	number int,
	body string,
) error {
	_, resp, err := p.client.Issues.CreateComment(
		ctx, ref.Owner, ref.Name, number,
		&gh.IssueComment{Body: gh.Ptr(body)},
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

func toPullRequest(pr *gh.PullRequest) *git.PullRequest {
	return &git.PullRequest{
		URL:    pr.GetHTMLURL(),
		Number: pr.GetNumber(),
		Branch: pr.GetHead().GetRef(),
	}
}

// logBody logs the response body for debugging.
func logBody(resp *gh.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("cannot read response body", "error", err)

		return
	}

	slog.Warn("github response", "body", string(rb))
}
