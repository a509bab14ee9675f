package github

import (
	"context"
	"net/http"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// Branch implements git.Branches.
func (p *Provider) Branch(
	ctx context.Context,
	ref git.RepoRef,
	name string,
) (*git.Branch, error) {
	br, resp, err := p.client.Repositories.GetBranch(
		ctx, ref.Owner, ref.Name, name, 1,
	)
	if err != nil {
		if isNotFound(resp, err) {
			return nil, nil
		}

		return nil, p.fail(git.CapBranch, ref, name, resp, err)
	}

	return &git.Branch{Name: br.GetName(), SHA: br.GetCommit().GetSHA()}, nil
}

// CreateBranch implements git.Branches.
func (p *Provider) CreateBranch(
	ctx context.Context,
	ref git.RepoRef,
	name string,
	sha string,
) (*git.Branch, error) {
	_, resp, err := p.client.Git.CreateRef(ctx, ref.Owner, ref.Name, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + name),
		Object: &gh.GitObject{SHA: gh.Ptr(sha)},
	})
	if err != nil {
		return nil, p.fail(git.CapCreateBranch, ref, name, resp, err)
	}

	return &git.Branch{Name: name, SHA: sha}, nil
}

// FirstCommit implements git.Branches by jumping to the last
// page of the branch history.
func (p *Provider) FirstCommit(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) (*git.Commit, error) {
	opts := &gh.CommitsListOptions{
		SHA:         branch,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	commits, resp, err := p.client.Repositories.ListCommits(
		ctx, ref.Owner, ref.Name, opts,
	)
	if err != nil {
		// 409 answers an empty repository.
		if isNotFound(resp, err) || isStatus(resp, http.StatusConflict) {
			return nil, nil
		}

		return nil, p.fail(git.CapFirstCommit, ref, branch, resp, err)
	}

	if resp.LastPage > 1 {
		opts.Page = resp.LastPage

		commits, resp, err = p.client.Repositories.ListCommits(
			ctx, ref.Owner, ref.Name, opts,
		)
		if err != nil {
			return nil, p.fail(git.CapFirstCommit, ref, branch, resp, err)
		}
	}

	if len(commits) == 0 {
		return nil, nil
	}

	first := toCommit(commits[len(commits)-1])

	return &first, nil
}

// BotCommits implements git.Branches, filtering on the App
// bot login.
func (p *Provider) BotCommits(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) ([]git.Commit, error) {
	bot, err := p.BotIdentity(ctx)
	if err != nil {
		return nil, err
	}

	opts := &gh.CommitsListOptions{
		SHA:         branch,
		Author:      bot.Login,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var out []git.Commit

	for {
		commits, resp, err := p.client.Repositories.ListCommits(
			ctx, ref.Owner, ref.Name, opts,
		)
		if err != nil {
			if isStatus(resp, http.StatusConflict) {
				return nil, nil
			}

			return nil, p.fail(git.CapBotCommits, ref, branch, resp, err)
		}

		for _, c := range commits {
			out = append(out, toCommit(c))
		}

		if resp.NextPage == 0 {
			return out, nil
		}

		opts.Page = resp.NextPage
	}
}

func toCommit(c *gh.RepositoryCommit) git.Commit {
	author := c.GetCommit().GetAuthor()

	return git.Commit{
		SHA:     c.GetSHA(),
		Message: c.GetCommit().GetMessage(),
		Author: git.Identity{
			Name:  author.GetName(),
			Email: author.GetEmail(),
			Login: c.GetAuthor().GetLogin(),
		},
		Timestamp: author.GetDate().Time,
	}
}
