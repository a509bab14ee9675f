package git

import (
	"context"
	"fmt"
	"log/slog"
)

// PullRequestFromFiles implements the stateless publish on
// top of the primitives: the branch is created from the
// default branch head when missing, files are committed
// through the API, and the open pull request is reused or a
// new one is opened. Returns the pull request URL.
func PullRequestFromFiles(
	ctx context.Context,
	p Primitives,
	ref RepoRef,
	in FilesPullRequestInput,
) (string, error) {
	const errCtx = "creating pull request from files"

	repo, err := p.Repository(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%s: get repository: %w", errCtx, err)
	}

	br, err := p.Branch(ctx, ref, in.Branch)
	if err != nil {
		return "", fmt.Errorf("%s: get branch: %w", errCtx, err)
	}

	if br == nil {
		base, err := p.Branch(ctx, ref, repo.DefaultBranch)
		if err != nil {
			return "", fmt.Errorf(
				"%s: get default branch: %w", errCtx, err,
			)
		}

		if base == nil {
			return "", fmt.Errorf(
				"%s: default branch %q: %w",
				errCtx, repo.DefaultBranch, ErrNotFound,
			)
		}

		if _, err := p.CreateBranch(
			ctx, ref, in.Branch, base.SHA,
		); err != nil {
			return "", fmt.Errorf(
				"%s: create branch: %w", errCtx, err,
			)
		}

		slog.Info(
			"created branch",
			"branch", in.Branch,
			"from", repo.DefaultBranch,
		)
	}

	if _, err := p.CreateCommit(ctx, ref, CommitInput{
		Branch:  in.Branch,
		Message: in.CommitMessage,
		Files:   in.Files,
	}); err != nil {
		return "", fmt.Errorf("%s: commit: %w", errCtx, err)
	}

	pr, err := p.OpenPullRequest(ctx, ref, in.Branch)
	if err != nil {
		return "", fmt.Errorf(
			"%s: find pull request: %w", errCtx, err,
		)
	}

	if pr != nil {
		slog.Info("reusing existing pull request", "url", pr.URL)

		return pr.URL, nil
	}

	pr, err = p.CreatePullRequest(ctx, ref, PullRequestInput{
		Branch: in.Branch,
		Base:   repo.DefaultBranch,
		Title:  in.Title,
		Body:   in.Body,
	})
	if err != nil {
		return "", fmt.Errorf(
			"%s: create pull request: %w", errCtx, err,
		)
	}

	return pr.URL, nil
}
