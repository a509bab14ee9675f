package bitbucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// ListGroups lists the workspaces of the token owner.
func (p *Provider) ListGroups(
	ctx context.Context,
	page git.Page,
) (*git.GroupPage, error) {
	var res paginated[workspaceMembership]

	err := p.call(
		ctx, http.MethodGet,
		"/user/permissions/workspaces"+pageQuery(page), nil, &res,
	)
	if err != nil {
		return nil, p.fail(git.CapListGroups, git.RepoRef{}, "", err)
	}

	out := &git.GroupPage{
		Total:    res.Size,
		Page:     res.Page,
		PageSize: res.PageLen,
		Next:     res.Next,
		Previous: res.Previous,
	}

	for _, m := range res.Values {
		out.Groups = append(out.Groups, git.Group{
			ID:   m.Workspace.UUID,
			Name: m.Workspace.Name,
			Slug: m.Workspace.Slug,
		})
	}

	return out, nil
}

// Organization is not supported: workspaces are listed as
// groups.
func (p *Provider) Organization(context.Context) (*git.Organization, error) {
	return nil, git.NotSupported(git.KindBitbucket, git.CapOrganization)
}

// DeleteOrganization is not supported.
func (p *Provider) DeleteOrganization(context.Context) error {
	return git.NotSupported(git.KindBitbucket, git.CapDeleteOrganization)
}

// Repository implements git.Directory. Admin rights are read
// from the caller's repository permission.
func (p *Provider) Repository(
	ctx context.Context,
	ref git.RepoRef,
) (*git.RemoteRepository, error) {
	var repo repository

	if err := p.call(ctx, http.MethodGet, repoPath(ref), nil, &repo); err != nil {
		return nil, p.fail(git.CapRepository, ref, "", err)
	}

	out := toRepository(repo)

	q := url.Values{}
	q.Set("q", fmt.Sprintf(`repository.full_name="%s"`, repo.FullName))

	var perms paginated[repositoryPermission]

	err := p.call(
		ctx, http.MethodGet,
		"/user/permissions/repositories?"+q.Encode(), nil, &perms,
	)
	if err != nil {
		return nil, p.fail(git.CapRepository, ref, "", err)
	}

	for _, perm := range perms.Values {
		if perm.Permission == "admin" {
			out.IsAdmin = true
		}
	}

	return &out, nil
}

// ListRepositories lists the repositories of workspace
// group.
func (p *Provider) ListRepositories(
	ctx context.Context,
	group string,
	page git.Page,
) (*git.RepositoryPage, error) {
	var res paginated[repository]

	err := p.call(
		ctx, http.MethodGet,
		"/repositories/"+url.PathEscape(group)+pageQuery(page), nil, &res,
	)
	if err != nil {
		return nil, p.fail(
			git.CapListRepositories, git.RepoRef{Group: group}, "", err,
		)
	}

	out := &git.RepositoryPage{
		Total:    res.Size,
		Page:     res.Page,
		PageSize: res.PageLen,
	}

	for _, r := range res.Values {
		out.Repositories = append(out.Repositories, toRepository(r))
	}

	return out, nil
}

// CreateRepository implements git.Directory in the ref
// workspace.
func (p *Provider) CreateRepository(
	ctx context.Context,
	in git.CreateRepositoryInput,
) (*git.RemoteRepository, error) {
	var repo repository

	err := p.call(ctx, http.MethodPost, repoPath(in.Ref), newRepository{
		SCM:       "git",
		Name:      in.Ref.Name,
		IsPrivate: in.IsPrivate,
	}, &repo)
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusBadRequest &&
			strings.Contains(ae.Body, "already exists") {
			err = fmt.Errorf("%w: %w", git.ErrConflict, err)
		}

		return nil, p.fail(git.CapCreateRepository, in.Ref, "", err)
	}

	out := toRepository(repo)
	out.IsAdmin = true

	return &out, nil
}

func toRepository(r repository) git.RemoteRepository {
	out := git.RemoteRepository{
		Name:      r.Name,
		URL:       r.Links.HTML.Href,
		IsPrivate: r.IsPrivate,
		FullName:  r.FullName,
	}

	if out.URL == "" {
		out.URL = "https://" + defaultWebHost + "/" + r.FullName
	}

	if r.MainBranch != nil {
		out.DefaultBranch = r.MainBranch.Name
	}

	return out
}

// File implements git.Contents: metadata first, to tell
// files from directories, then the raw content.
func (p *Provider) File(
	ctx context.Context,
	ref git.RepoRef,
	filePath string,
	branch string,
) (*git.File, error) {
	endpoint := repoPath(ref, "src", branch) + "/" + escapePath(filePath)

	var meta treeEntry

	err := p.call(ctx, http.MethodGet, endpoint+"?format=meta", nil, &meta)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return nil, nil
		}

		return nil, p.fail(git.CapFile, ref, branch, err)
	}

	if meta.Values != nil || meta.Type == "commit_directory" {
		return nil, p.fail(git.CapFile, ref, branch, fmt.Errorf(
			"%s: %w", filePath, git.ErrDirectoryPath,
		))
	}

	req, err := p.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, p.fail(git.CapFile, ref, branch, err)
	}

	raw, err := sendRaw(p.http, req)
	if err != nil {
		return nil, p.fail(git.CapFile, ref, branch, err)
	}

	return &git.File{
		Name:    path.Base(meta.Path),
		Path:    meta.Path,
		Content: string(raw),
		HTMLURL: meta.Commit.Links.HTML.Href,
	}, nil
}

// CreateCommit implements git.Contents through the src
// endpoint: every file is a form field named by its path, and
// deleted paths are listed in "files".
func (p *Provider) CreateCommit(
	ctx context.Context,
	ref git.RepoRef,
	in git.CommitInput,
) (*git.Commit, error) {
	author := in.Author
	if author.IsZero() {
		author = p.bot
	}

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"message", in.Message},
		{"branch", in.Branch},
		{"author", author.String()},
	}

	for _, f := range in.Files {
		if f.Deleted {
			fields = append(fields, [2]string{"files", f.Path})

			continue
		}

		fields = append(fields, [2]string{f.Path, f.Content})
	}

	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, p.fail(git.CapCreateCommit, ref, in.Branch, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.apiBase+repoPath(ref, "src"), &buf,
	)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, err)
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusCreated {
		body, _ := readBody(resp)

		return nil, p.fail(git.CapCreateCommit, ref, in.Branch, &apiError{
			Status: resp.StatusCode, Body: body,
		})
	}

	// Location ends with the new commit hash.
	loc := resp.Header.Get("Location")

	return &git.Commit{
		SHA:     path.Base(loc),
		Message: in.Message,
		Author:  author,
	}, nil
}

func pageQuery(page git.Page) string {
	q := url.Values{}

	if page.Page > 0 {
		q.Set("page", strconv.Itoa(page.Page))
	}

	if page.PageSize > 0 {
		q.Set("pagelen", strconv.Itoa(page.PageSize))
	}

	if len(q) == 0 {
		return ""
	}

	return "?" + q.Encode()
}
