package bitbucket

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// Branch implements git.Branches.
func (p *Provider) Branch(
	ctx context.Context,
	ref git.RepoRef,
	name string,
) (*git.Branch, error) {
	var br branch

	err := p.call(
		ctx, http.MethodGet, repoPath(ref, "refs", "branches", name), nil, &br,
	)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return nil, nil
		}

		return nil, p.fail(git.CapBranch, ref, name, err)
	}

	return &git.Branch{Name: br.Name, SHA: br.Target.Hash}, nil
}

// CreateBranch implements git.Branches.
func (p *Provider) CreateBranch(
	ctx context.Context,
	ref git.RepoRef,
	name string,
	sha string,
) (*git.Branch, error) {
	var br branch

	err := p.call(ctx, http.MethodPost, repoPath(ref, "refs", "branches"), branch{
		Name:   name,
		Target: commitTarget{Hash: sha},
	}, &br)
	if err != nil {
		return nil, p.fail(git.CapCreateBranch, ref, name, err)
	}

	return &git.Branch{Name: name, SHA: sha}, nil
}

// FirstCommit implements git.Branches by following the
// history to its last page.
func (p *Provider) FirstCommit(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) (*git.Commit, error) {
	var last *commit

	err := p.walkCommits(ctx, ref, branch, func(c commit) {
		last = &c
	})
	if err != nil {
		return nil, p.fail(git.CapFirstCommit, ref, branch, err)
	}

	if last == nil {
		return nil, nil
	}

	first := toCommit(*last)

	return &first, nil
}

// BotCommits implements git.Branches, matching the raw
// author against the configured bot email.
func (p *Provider) BotCommits(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
) ([]git.Commit, error) {
	var out []git.Commit

	err := p.walkCommits(ctx, ref, branch, func(c commit) {
		if strings.EqualFold(toCommit(c).Author.Email, p.bot.Email) {
			out = append(out, toCommit(c))
		}
	})
	if err != nil {
		return nil, p.fail(git.CapBotCommits, ref, branch, err)
	}

	return out, nil
}

// walkCommits visits the history of branch newest first. A
// missing branch or empty repository visits nothing.
func (p *Provider) walkCommits(
	ctx context.Context,
	ref git.RepoRef,
	branch string,
	visit func(commit),
) error {
	next := repoPath(ref, "commits", branch) +
		"?pagelen=" + strconv.Itoa(pageLen)

	for next != "" {
		var res paginated[commit]

		if err := p.call(ctx, http.MethodGet, next, nil, &res); err != nil {
			if errors.Is(err, git.ErrNotFound) {
				return nil
			}

			return err
		}

		for _, c := range res.Values {
			visit(c)
		}

		next = res.Next
	}

	return nil
}

func toCommit(c commit) git.Commit {
	out := git.Commit{
		SHA:     c.Hash,
		Message: c.Message,
		Author:  parseAuthor(c.Author.Raw),
	}

	if c.Author.User != nil {
		out.Author.Login = c.Author.User.Username
	}

	if ts, err := time.Parse(time.RFC3339, c.Date); err == nil {
		out.Timestamp = ts
	}

	return out
}

// parseAuthor splits a raw "Name <email>" author. Values
// without an address are kept as the name.
func parseAuthor(raw string) git.Identity {
	lt := strings.LastIndex(raw, "<")
	gt := strings.LastIndex(raw, ">")

	if lt < 0 || gt < lt {
		return git.Identity{Name: strings.TrimSpace(raw)}
	}

	return git.Identity{
		Name:  strings.TrimSpace(raw[:lt]),
		Email: raw[lt+1 : gt],
	}
}
