package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strconv"

	gl "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/sync/errgroup"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// existenceChecks bounds the concurrent file lookups of
// CreateCommit.
const existenceChecks = 8

// ListGroups lists the groups the token owner can publish
// to.
func (p *Provider) ListGroups(
	ctx context.Context,
	page git.Page,
) (*git.GroupPage, error) {
	groups, resp, err := p.client.Groups.ListGroups(
		&gl.ListGroupsOptions{
			ListOptions: gl.ListOptions{
				Page:    int64(page.Page),
				PerPage: int64(page.PageSize),
			},
			MinAccessLevel: gl.Ptr(gl.DeveloperPermissions),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, p.fail(git.CapListGroups, git.RepoRef{}, "", resp, err)
	}

	out := &git.GroupPage{
		Total:    int(resp.TotalItems),
		Page:     int(resp.CurrentPage),
		PageSize: int(resp.ItemsPerPage),
	}

	if resp.NextPage != 0 {
		out.Next = strconv.Itoa(int(resp.NextPage))
	}

	if resp.PreviousPage != 0 {
		out.Previous = strconv.Itoa(int(resp.PreviousPage))
	}

	for _, g := range groups {
		out.Groups = append(out.Groups, git.Group{
			ID:   strconv.Itoa(int(g.ID)),
			Name: g.Name,
			Slug: g.FullPath,
		})
	}

	return out, nil
}

// Organization is not supported: GitLab has no account level
// installation.
func (p *Provider) Organization(context.Context) (*git.Organization, error) {
	return nil, git.NotSupported(git.KindGitLab, git.CapOrganization)
}

// DeleteOrganization is not supported.
func (p *Provider) DeleteOrganization(context.Context) error {
	return git.NotSupported(git.KindGitLab, git.CapDeleteOrganization)
}

// Repository implements git.Directory.
func (p *Provider) Repository(
	ctx context.Context,
	ref git.RepoRef,
) (*git.RemoteRepository, error) {
	proj, resp, err := p.client.Projects.GetProject(
		projectPath(ref), nil, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, p.fail(git.CapRepository, ref, "", resp, err)
	}

	return toRepository(proj), nil
}

// ListRepositories lists the projects of group.
func (p *Provider) ListRepositories(
	ctx context.Context,
	group string,
	page git.Page,
) (*git.RepositoryPage, error) {
	projects, resp, err := p.client.Groups.ListGroupProjects(
		group,
		&gl.ListGroupProjectsOptions{
			ListOptions: gl.ListOptions{
				Page:    int64(page.Page),
				PerPage: int64(page.PageSize),
			},
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, p.fail(
			git.CapListRepositories,
			git.RepoRef{Group: group}, "", resp, err,
		)
	}

	out := &git.RepositoryPage{
		Total:    int(resp.TotalItems),
		Page:     int(resp.CurrentPage),
		PageSize: int(resp.ItemsPerPage),
	}

	for _, proj := range projects {
		out.Repositories = append(out.Repositories, *toRepository(proj))
	}

	return out, nil
}

// CreateRepository implements git.Directory. The project is
// created in the user namespace when OwnerIsUser is set, in
// the ref namespace otherwise.
func (p *Provider) CreateRepository(
	ctx context.Context,
	in git.CreateRepositoryInput,
) (*git.RemoteRepository, error) {
	visibility := gl.PublicVisibility
	if in.IsPrivate {
		visibility = gl.PrivateVisibility
	}

	opts := &gl.CreateProjectOptions{
		Name:       gl.Ptr(in.Ref.Name),
		Path:       gl.Ptr(in.Ref.Name),
		Visibility: gl.Ptr(visibility),
	}

	if !in.OwnerIsUser {
		ns, resp, err := p.client.Namespaces.GetNamespace(
			in.Ref.Namespace(), gl.WithContext(ctx),
		)
		if err != nil {
			return nil, p.fail(git.CapCreateRepository, in.Ref, "", resp, err)
		}

		opts.NamespaceID = gl.Ptr(ns.ID)
	}

	proj, resp, err := p.client.Projects.CreateProject(opts, gl.WithContext(ctx))
	if err != nil {
		if isStatus(resp, http.StatusBadRequest) {
			// GitLab answers 400 "has already been taken".
			err = fmt.Errorf("%w: %w", git.ErrConflict, err)
		}

		return nil, p.fail(git.CapCreateRepository, in.Ref, "", resp, err)
	}

	return toRepository(proj), nil
}

func toRepository(proj *gl.Project) *git.RemoteRepository {
	admin := false

	if perms := proj.Permissions; perms != nil {
		if perms.ProjectAccess != nil &&
			perms.ProjectAccess.AccessLevel >= gl.MaintainerPermissions {
			admin = true
		}

		if perms.GroupAccess != nil &&
			perms.GroupAccess.AccessLevel >= gl.MaintainerPermissions {
			admin = true
		}
	}

	return &git.RemoteRepository{
		Name:          proj.Name,
		URL:           proj.WebURL,
		IsPrivate:     proj.Visibility != gl.PublicVisibility,
		FullName:      proj.PathWithNamespace,
		IsAdmin:       admin,
		DefaultBranch: proj.DefaultBranch,
	}
}

// File implements git.Contents. A 404 on a path that lists
// as a tree is reported as git.ErrDirectoryPath.
func (p *Provider) File(
	ctx context.Context,
	ref git.RepoRef,
	filePath string,
	branch string,
) (*git.File, error) {
	pid := projectPath(ref)

	f, resp, err := p.client.RepositoryFiles.GetFile(
		pid, filePath,
		&gl.GetFileOptions{Ref: gl.Ptr(branch)},
		gl.WithContext(ctx),
	)
	if err == nil {
		content, decodeErr := decodeContent(f)
		if decodeErr != nil {
			return nil, p.fail(git.CapFile, ref, branch, nil, decodeErr)
		}

		return &git.File{
			Name:    path.Base(f.FilePath),
			Path:    f.FilePath,
			Content: content,
			HTMLURL: p.host + "/" + pid + "/-/blob/" + branch + "/" + f.FilePath,
		}, nil
	}

	if !isStatus(resp, http.StatusNotFound) {
		return nil, p.fail(git.CapFile, ref, branch, resp, err)
	}

	tree, resp, err := p.client.Repositories.ListTree(
		pid,
		&gl.ListTreeOptions{
			Path:        gl.Ptr(filePath),
			Ref:         gl.Ptr(branch),
			ListOptions: gl.ListOptions{PerPage: 1},
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		if isStatus(resp, http.StatusNotFound) {
			return nil, nil
		}

		return nil, p.fail(git.CapFile, ref, branch, resp, err)
	}

	if len(tree) > 0 {
		return nil, p.fail(git.CapFile, ref, branch, nil, fmt.Errorf(
			"%s: %w", filePath, git.ErrDirectoryPath,
		))
	}

	return nil, nil
}

// CreateCommit implements git.Contents. Each file becomes a
// create, update or delete action depending on whether it
// exists on the branch.
func (p *Provider) CreateCommit(
	ctx context.Context,
	ref git.RepoRef,
	in git.CommitInput,
) (*git.Commit, error) {
	pid := projectPath(ref)

	actions, err := p.commitActions(ctx, pid, in)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, nil, err)
	}

	opts := &gl.CreateCommitOptions{
		Branch:        gl.Ptr(in.Branch),
		CommitMessage: gl.Ptr(in.Message),
		Actions:       actions,
	}

	if !in.Author.IsZero() {
		opts.AuthorName = gl.Ptr(in.Author.Name)
		opts.AuthorEmail = gl.Ptr(in.Author.Email)
	}

	c, resp, err := p.client.Commits.CreateCommit(pid, opts, gl.WithContext(ctx))
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, resp, err)
	}

	return toCommit(c), nil
}

func (p *Provider) commitActions(
	ctx context.Context,
	pid string,
	in git.CommitInput,
) ([]*gl.CommitActionOptions, error) {
	const errCtx = "resolving commit actions"

	actions := make([]*gl.CommitActionOptions, len(in.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(existenceChecks)

	for i, f := range in.Files {
		g.Go(func() error {
			action := &gl.CommitActionOptions{
				FilePath: gl.Ptr(f.Path),
			}
			actions[i] = action

			exists, err := p.fileExists(gctx, pid, f.Path, in.Branch)
			if err != nil {
				return err
			}

			switch {
			case f.Deleted && !exists:
				actions[i] = nil
			case f.Deleted:
				action.Action = gl.Ptr(gl.FileDelete)
			case exists:
				action.Action = gl.Ptr(gl.FileUpdate)
				action.Content = gl.Ptr(f.Content)
			default:
				action.Action = gl.Ptr(gl.FileCreate)
				action.Content = gl.Ptr(f.Content)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	out := actions[:0]

	for _, a := range actions {
		if a != nil {
			out = append(out, a)
		}
	}

	return out, nil
}

func (p *Provider) fileExists(
	ctx context.Context,
	pid string,
	filePath string,
	branch string,
) (bool, error) {
	_, resp, err := p.client.RepositoryFiles.GetFileMetaData(
		pid, filePath,
		&gl.GetFileMetaDataOptions{Ref: gl.Ptr(branch)},
		gl.WithContext(ctx),
	)

	switch {
	case err == nil:
		return true, nil
	case isStatus(resp, http.StatusNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w", filePath, err)
	}
}
