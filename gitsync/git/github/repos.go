package github

import (
	"context"
	"fmt"
	"net/http"
	"path"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// ListGroups is not supported: an App installation is bound
// to exactly one account. Use Organization.
func (p *Provider) ListGroups(context.Context, git.Page) (*git.GroupPage, error) {
	return nil, git.NotSupported(git.KindGitHub, git.CapListGroups)
}

// Organization returns the account the App is installed on.
func (p *Provider) Organization(ctx context.Context) (*git.Organization, error) {
	if err := p.requireInstallation(git.CapOrganization); err != nil {
		return nil, err
	}

	inst, resp, err := p.app.Apps.GetInstallation(ctx, p.installationID)
	if err != nil {
		return nil, p.fail(git.CapOrganization, git.RepoRef{}, "", resp, err)
	}

	return &git.Organization{
		Name: inst.GetAccount().GetLogin(),
		Type: inst.GetAccount().GetType(),
	}, nil
}

// DeleteOrganization uninstalls the App from the account.
func (p *Provider) DeleteOrganization(ctx context.Context) error {
	if err := p.requireInstallation(git.CapDeleteOrganization); err != nil {
		return err
	}

	resp, err := p.app.Apps.DeleteInstallation(ctx, p.installationID)
	if err != nil {
		return p.fail(git.CapDeleteOrganization, git.RepoRef{}, "", resp, err)
	}

	return nil
}

// Repository implements git.Directory.
func (p *Provider) Repository(
	ctx context.Context,
	ref git.RepoRef,
) (*git.RemoteRepository, error) {
	repo, resp, err := p.client.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, p.fail(git.CapRepository, ref, "", resp, err)
	}

	return toRepository(repo), nil
}

// ListRepositories lists the repositories the installation
// can access. group is ignored.
func (p *Provider) ListRepositories(
	ctx context.Context,
	_ string,
	page git.Page,
) (*git.RepositoryPage, error) {
	list, resp, err := p.client.Apps.ListRepos(ctx, &gh.ListOptions{
		Page:    page.Page,
		PerPage: page.PageSize,
	})
	if err != nil {
		return nil, p.fail(git.CapListRepositories, git.RepoRef{}, "", resp, err)
	}

	out := &git.RepositoryPage{
		Total:    list.GetTotalCount(),
		Page:     page.Page,
		PageSize: page.PageSize,
	}

	for _, r := range list.Repositories {
		out.Repositories = append(out.Repositories, *toRepository(r))
	}

	return out, nil
}

// CreateRepository implements git.Directory. The repository
// is created under the user when OwnerIsUser is set, under
// the organization otherwise.
func (p *Provider) CreateRepository(
	ctx context.Context,
	in git.CreateRepositoryInput,
) (*git.RemoteRepository, error) {
	org := in.Ref.Owner
	if in.OwnerIsUser {
		org = ""
	}

	repo, resp, err := p.client.Repositories.Create(ctx, org, &gh.Repository{
		Name:    gh.Ptr(in.Ref.Name),
		Private: gh.Ptr(in.IsPrivate),
	})
	if err != nil {
		if isStatus(resp, http.StatusUnprocessableEntity) {
			err = fmt.Errorf("%w: %w", git.ErrConflict, err)
		}

		return nil, p.fail(git.CapCreateRepository, in.Ref, "", resp, err)
	}

	return toRepository(repo), nil
}

func toRepository(r *gh.Repository) *git.RemoteRepository {
	return &git.RemoteRepository{
		Name:          r.GetName(),
		URL:           r.GetHTMLURL(),
		IsPrivate:     r.GetPrivate(),
		FullName:      r.GetFullName(),
		IsAdmin:       r.GetPermissions()["admin"],
		DefaultBranch: r.GetDefaultBranch(),
	}
}

// File implements git.Contents.
func (p *Provider) File(
	ctx context.Context,
	ref git.RepoRef,
	filePath string,
	branch string,
) (*git.File, error) {
	file, dir, resp, err := p.client.Repositories.GetContents(
		ctx, ref.Owner, ref.Name, filePath,
		&gh.RepositoryContentGetOptions{Ref: branch},
	)
	if err != nil {
		if isNotFound(resp, err) {
			return nil, nil
		}

		return nil, p.fail(git.CapFile, ref, branch, resp, err)
	}

	if file == nil || dir != nil {
		return nil, p.fail(git.CapFile, ref, branch, nil, fmt.Errorf(
			"%s: %w", filePath, git.ErrDirectoryPath,
		))
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, p.fail(git.CapFile, ref, branch, nil, err)
	}

	return &git.File{
		Name:    path.Base(file.GetPath()),
		Path:    file.GetPath(),
		Content: content,
		HTMLURL: file.GetHTMLURL(),
	}, nil
}

// CreateCommit implements git.Contents through the git data
// API: one tree on top of the branch head, one commit, then a
// fast-forward of the branch ref.
func (p *Provider) CreateCommit(
	ctx context.Context,
	ref git.RepoRef,
	in git.CommitInput,
) (*git.Commit, error) {
	head, resp, err := p.client.Git.GetRef(
		ctx, ref.Owner, ref.Name, "refs/heads/"+in.Branch,
	)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, resp, err)
	}

	parentSHA := head.GetObject().GetSHA()

	parent, resp, err := p.client.Git.GetCommit(
		ctx, ref.Owner, ref.Name, parentSHA,
	)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, resp, err)
	}

	entries := make([]*gh.TreeEntry, 0, len(in.Files))

	for _, f := range in.Files {
		entry := &gh.TreeEntry{
			Path: gh.Ptr(f.Path),
			Mode: gh.Ptr("100644"),
			Type: gh.Ptr("blob"),
		}

		// Nil SHA and nil content delete the path.
		if !f.Deleted {
			entry.Content = gh.Ptr(f.Content)
		}

		entries = append(entries, entry)
	}

	tree, resp, err := p.client.Git.CreateTree(
		ctx, ref.Owner, ref.Name, parent.GetTree().GetSHA(), entries,
	)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, resp, err)
	}

	commit := &gh.Commit{
		Message: gh.Ptr(in.Message),
		Tree:    &gh.Tree{SHA: tree.SHA},
		Parents: []*gh.Commit{{SHA: gh.Ptr(parentSHA)}},
	}

	if !in.Author.IsZero() {
		commit.Author = &gh.CommitAuthor{
			Name:  gh.Ptr(in.Author.Name),
			Email: gh.Ptr(in.Author.Email),
		}
	}

	created, resp, err := p.client.Git.CreateCommit(
		ctx, ref.Owner, ref.Name, commit, nil,
	)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, resp, err)
	}

	_, resp, err = p.client.Git.UpdateRef(ctx, ref.Owner, ref.Name, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + in.Branch),
		Object: &gh.GitObject{SHA: created.SHA},
	}, false)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, resp, err)
	}

	return &git.Commit{
		SHA:       created.GetSHA(),
		Message:   created.GetMessage(),
		Author:    in.Author,
		Timestamp: created.GetAuthor().GetDate().Time,
	}, nil
}
