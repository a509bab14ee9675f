package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// OpenPullRequest implements git.PullRequests.
func (p *Provider) OpenPullRequest(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) (*git.PullRequest, error) {
	q := url.Values{}
	q.Set("state", "OPEN")
	q.Set("q", fmt.Sprintf(`source.branch.name="%s"`, branch))
	q.Set("pagelen", "1")

	var res paginated[pullRequest]

	err := p.call(
		ctx, http.MethodGet,
		repoPath(ref, "pullrequests")+"?"+q.Encode(), nil, &res,
	)
	if err != nil {
		return nil, p.fail(git.CapOpenPullRequest, ref, branch, err)
	}

	if len(res.Values) == 0 {
		return nil, nil
	}

	return toPullRequest(res.Values[0]), nil
}

// CreatePullRequest implements git.PullRequests. If the
// branch already has an open pull request it is returned.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	ref git.RepoRef,
	in git.PullRequestInput,
) (*git.PullRequest, error) {
	var created pullRequest

	err := p.call(ctx, http.MethodPost, repoPath(ref, "pullrequests"), pullRequest{
		Title:       in.Title,
		Description: in.Body,
		Source:      endpoint{Branch: branchRef{Name: in.Branch}},
		Destination: endpoint{Branch: branchRef{Name: in.Base}},
	}, &created)
	if err == nil {
		pr := toPullRequest(created)
		slog.Info("created pull request", "url", pr.URL)

		return pr, nil
	}

	var ae *apiError
	if errors.As(err, &ae) &&
		(ae.Status == http.StatusBadRequest || ae.Status == http.StatusConflict) {
		existing, findErr := p.OpenPullRequest(ctx, ref, in.Branch)
		if findErr == nil && existing != nil {
			slog.Info("reusing existing pull request", "url", existing.URL)

			return existing, nil
		}
	}

	return nil, p.fail(git.CapCreatePullRequest, ref, in.Branch, err)
}

// CommentOnPullRequest implements git.PullRequests.
func (p *Provider) CommentOnPullRequest(
	ctx context.Context,
	ref git.RepoRef,
	number int,
	body string,
) error {
	err := p.call(
		ctx, http.MethodPost,
		repoPath(ref, "pullrequests", strconv.Itoa(number), "comments"),
		comment{Content: content{Raw: body}}, nil,
	)
	if err != nil {
		return p.fail(git.CapComment, ref, "", err)
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

func toPullRequest(pr pullRequest) *git.PullRequest {
	out := &git.PullRequest{
		Number: pr.ID,
		Branch: pr.Source.Branch.Name,
	}

	if pr.Links != nil {
		out.URL = pr.Links.HTML.Href
	}

	return out
}
