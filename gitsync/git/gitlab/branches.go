package gitlab

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// Branch implements git.Branches.
func (p *Provider) Branch(
	ctx context.Context,
	ref git.RepoRef,
	name string,
) (*git.Branch, error) {
	br, resp, err := p.client.Branches.GetBranch(
		projectPath(ref), name, gl.WithContext(ctx),
	)
	if err != nil {
		if isStatus(resp, http.StatusNotFound) {
			return nil, nil
		}

		return nil, p.fail(git.CapBranch, ref, name, resp, err)
	}

	b := &git.Branch{Name: br.Name}
	if br.Commit != nil {
		b.SHA = br.Commit.ID
	}

	return b, nil
}

// CreateBranch implements git.Branches.
func (p *Provider) CreateBranch(
	ctx context.Context,
	ref git.RepoRef,
	name string,
	sha string,
) (*git.Branch, error) {
	_, resp, err := p.client.Branches.CreateBranch(
		projectPath(ref),
		&gl.CreateBranchOptions{
			Branch: gl.Ptr(name),
			Ref:    gl.Ptr(sha),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, p.fail(git.CapCreateBranch, ref, name, resp, err)
	}

	return &git.Branch{Name: name, SHA: sha}, nil
}

// FirstCommit implements git.Branches. The commits API
// reports no totals, so pages are walked to the end.
func (p *Provider) FirstCommit(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) (*git.Commit, error) {
	var last *gl.Commit

	err := p.walkCommits(ctx, ref, branch, nil, func(c *gl.Commit) {
		last = c
	})
	if err != nil {
		return nil, p.fail(git.CapFirstCommit, ref, branch, nil, err)
	}

	if last == nil {
		return nil, nil
	}

	return toCommit(last), nil
}

// BotCommits implements git.Branches. The API "author"
// filter is a substring match, so results are narrowed to
// the exact bot name or email.
func (p *Provider) BotCommits(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) ([]git.Commit, error) {
	bot, err := p.BotIdentity(ctx)
	if err != nil {
		return nil, err
	}

	var out []git.Commit

	err = p.walkCommits(ctx, ref, branch, gl.Ptr(bot.Name), func(c *gl.Commit) {
		if strings.EqualFold(c.AuthorEmail, bot.Email) || c.AuthorName == bot.Name {
			out = append(out, *toCommit(c))
		}
	})
	if err != nil {
		return nil, p.fail(git.CapBotCommits, ref, branch, nil, err)
	}

	return out, nil
}

// walkCommits visits the history of branch newest first. A
// missing branch or empty repository visits nothing.
func (p *Provider) walkCommits(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
	author *string,
	visit func(*gl.Commit),
) error {
	opts := &gl.ListCommitsOptions{
		RefName:     gl.Ptr(branch),
		Author:      author,
		ListOptions: gl.ListOptions{PerPage: perPage},
	}

	for {
		commits, resp, err := p.client.Commits.ListCommits(
			projectPath(ref), opts, gl.WithContext(ctx),
		)
		if err != nil {
			if isStatus(resp, http.StatusNotFound) {
				return nil
			}

			return err
		}

		for _, c := range commits {
			visit(c)
		}

		if resp.NextPage == 0 {
			return nil
		}

		opts.Page = resp.NextPage
	}
}

func toCommit(c *gl.Commit) *git.Commit {
	out := &git.Commit{
		SHA:     c.ID,
		Message: c.Message,
		Author: git.Identity{
			Name:  c.AuthorName,
			Email: c.AuthorEmail,
		},
	}

	if c.AuthoredDate != nil {
		out.Timestamp = *c.AuthoredDate
	}

	return out
}

func decodeContent(f *gl.File) (string, error) {
	if f.Encoding != "base64" {
		return f.Content, nil
	}

	raw, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", f.FilePath, err)
	}

	return string(raw), nil
}
