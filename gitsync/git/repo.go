package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/byte4ever/codepublish/gitsync/exec"
)

// WorkingCopy is one ephemeral local clone bound to a single
// synchronization run. Create with Clone, and call Clean when
// done. Operations are blocking and must not overlap.
type WorkingCopy struct {
	// Dir is the filesystem location of the clone.
	Dir string
	// RemoteName is the name of the upstream remote.
	RemoteName string
}

// ApplyOptions tunes ApplyPatch.
type ApplyOptions struct {
	// ThreeWay falls back to a three-way merge using the blob
	// ids recorded in the patch.
	ThreeWay bool
	// IgnoreWhitespace silences whitespace errors.
	IgnoreWhitespace bool
}

// Clone clones url into dir and configures committer as the
// local identity. An existing dir is removed first. Cloning
// an empty repository is not an error.
//
//nolint:gosec // dir is derived from the run id
func Clone(
	ctx context.Context,
	url string,
	dir string,
	committer Identity,
) (*WorkingCopy, error) {
	const errCtx = "cloning repository"

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("%s: remove dir: %w", errCtx, err)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return nil, fmt.Errorf("%s: create parent: %w", errCtx, err)
	}

	remoteName := "origin"

	if _, err := exec.Ex(
		ctx, "", "git",
		"clone", "--no-tags", "--origin", remoteName, url, dir,
	); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	wc := &WorkingCopy{Dir: dir, RemoteName: remoteName}

	settings := [][2]string{
		{"user.name", committer.Name},
		{"user.email", committer.Email},
		{"commit.gpgsign", "false"},
		// Hooks of the user's repository never run here.
		{"core.hooksPath", os.DevNull},
	}

	for _, kv := range settings {
		if err := wc.git(
			ctx, "config", "--local", kv[0], kv[1],
		); err != nil {
			return nil, fmt.Errorf("%s: configure: %w", errCtx, err)
		}
	}

	return wc, nil
}

// Clean removes the local clone directory.
func (w *WorkingCopy) Clean() error {
	const errCtx = "cleaning working copy"

	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// GitDir returns the path of the repository metadata
// directory. Files written there are never committed.
func (w *WorkingCopy) GitDir() string {
	return filepath.Join(w.Dir, ".git")
}

// Checkout fetches branch from the remote and checks it out,
// resetting the local branch to the remote tip.
func (w *WorkingCopy) Checkout(ctx context.Context, branch string) error {
	const errCtx = "checking out branch"

	remoteRef := "refs/remotes/" + w.RemoteName + "/" + branch

	if err := w.git(
		ctx, "fetch", "--no-tags", w.RemoteName,
		"+refs/heads/"+branch+":"+remoteRef,
	); err != nil {
		return fmt.Errorf("%s %s: fetch: %w", errCtx, branch, err)
	}

	if err := w.git(
		ctx, "checkout", "-B", branch, remoteRef,
	); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

// CheckoutUnborn points HEAD at branch in a clone with no
// commits, so the first commit lands on it.
func (w *WorkingCopy) CheckoutUnborn(ctx context.Context, branch string) error {
	const errCtx = "checking out unborn branch"

	if err := w.git(
		ctx, "symbolic-ref", "HEAD", "refs/heads/"+branch,
	); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

// Diff returns the binary-safe unified diff from sinceSHA to
// HEAD. An empty string means no change.
func (w *WorkingCopy) Diff(ctx context.Context, sinceSHA string) (string, error) {
	const errCtx = "computing diff"

	res, err := exec.Run(
		ctx, w.Dir, "git",
		"diff", "--binary", "--full-index", sinceSHA, "HEAD",
	)
	if err != nil {
		return "", fmt.Errorf("%s since %s: %w", errCtx, sinceSHA, err)
	}

	return res.Stdout, nil
}

// Reset hard-resets the checked out branch to sha. The remote
// is untouched.
func (w *WorkingCopy) Reset(ctx context.Context, sha string) error {
	const errCtx = "resetting branch"

	if err := w.git(ctx, "reset", "--hard", sha); err != nil {
		return fmt.Errorf("%s to %s: %w", errCtx, sha, err)
	}

	return nil
}

// ReleaseLocks removes stale lock files an interrupted git
// command may have left behind.
func (w *WorkingCopy) ReleaseLocks() error {
	const errCtx = "releasing locks"

	for _, name := range []string{"index.lock", "HEAD.lock"} {
		err := os.Remove(filepath.Join(w.GitDir(), name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

// Push pushes branch to the remote. force overwrites the
// remote history.
func (w *WorkingCopy) Push(ctx context.Context, branch string, force bool) error {
	const errCtx = "pushing branch"

	args := []string{"push", "--set-upstream"}
	if force {
		args = append(args, "--force")
	}

	args = append(args, w.RemoteName, branch)

	if err := w.git(ctx, args...); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

// CherryPick applies the commit sha on top of HEAD. Commits
// that become empty are kept.
func (w *WorkingCopy) CherryPick(ctx context.Context, sha string) error {
	const errCtx = "cherry-picking commit"

	if err := w.git(
		ctx, "cherry-pick",
		"--allow-empty", "--keep-redundant-commits", sha,
	); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, sha, err)
	}

	return nil
}

// ApplyPatch applies the patch file at path to the working
// tree and index. A three-way apply that leaves conflict
// markers, or that git rejects for a file, fails with
// *PatchConflictError.
func (w *WorkingCopy) ApplyPatch(
	ctx context.Context,
	path string,
	opts ApplyOptions,
) error {
	const errCtx = "applying patch"

	args := []string{"apply", "--index"}
	if opts.ThreeWay {
		args = []string{"apply", "--3way"}
	}

	if opts.IgnoreWhitespace {
		args = append(args, "--whitespace=nowarn")
	}

	args = append(args, path)

	res, applyErr := exec.Run(ctx, w.Dir, "git", args...)
	if applyErr == nil {
		return nil
	}

	conflicted, err := w.unmergedFiles(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, errors.Join(applyErr, err))
	}

	// Hunks git refuses outright leave no unmerged entries.
	if opts.ThreeWay {
		conflicted = append(conflicted, rejectedPaths(res.Stderr)...)
	}

	if len(conflicted) > 0 {
		slices.Sort(conflicted)

		return &PatchConflictError{Files: slices.Compact(conflicted)}
	}

	return fmt.Errorf("%s: %w", errCtx, applyErr)
}

// rejectedSuffixes end the "error: <path>: ..." lines git
// apply prints for a file it cannot patch.
var rejectedSuffixes = []string{
	": patch does not apply",
	": does not exist in index",
	": already exists in index",
	": already exists in working directory",
	": does not match index",
}

// rejectedPaths extracts the paths git apply refused from its
// stderr.
func rejectedPaths(stderr string) []string {
	var paths []string

	sc := bufio.NewScanner(strings.NewReader(stderr))
	for sc.Scan() {
		line, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "error: ")
		if !ok {
			continue
		}

		// "patch failed: <path>:<line>"
		if rest, ok := strings.CutPrefix(line, "patch failed: "); ok {
			if i := strings.LastIndex(rest, ":"); i > 0 {
				rest = rest[:i]
			}

			paths = append(paths, rest)

			continue
		}

		for _, suffix := range rejectedSuffixes {
			if p, ok := strings.CutSuffix(line, suffix); ok && p != "" {
				paths = append(paths, p)

				break
			}
		}
	}

	return paths
}

// AddAll stages every change, deletions included.
func (w *WorkingCopy) AddAll(ctx context.Context) error {
	const errCtx = "staging changes"

	if err := w.git(ctx, "add", "--all", "."); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Commit records staged changes. author overrides the
// configured identity when non-nil. Returns true when a
// commit was created, false when there was nothing to
// commit.
func (w *WorkingCopy) Commit(
	ctx context.Context,
	message string,
	author *Identity,
) (bool, error) {
	const errCtx = "committing"

	clean, err := w.IsClean(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if clean {
		return false, nil
	}

	args := []string{"commit", "-m", message}
	if author != nil {
		args = append(args, "--author", author.String())
	}

	if err := w.git(ctx, args...); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return true, nil
}

// IsClean reports whether the working tree and index have no
// uncommitted changes.
func (w *WorkingCopy) IsClean(ctx context.Context) (bool, error) {
	const errCtx = "checking status"

	res, err := exec.Run(ctx, w.Dir, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.TrimSpace(res.Stdout) == "", nil
}

// HeadSHA returns the commit HEAD points to.
func (w *WorkingCopy) HeadSHA(ctx context.Context) (string, error) {
	const errCtx = "resolving HEAD"

	res, err := exec.Run(ctx, w.Dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.TrimSpace(res.Stdout), nil
}

// WriteFiles writes the generated files into the working
// tree, removing the ones marked Deleted.
func (w *WorkingCopy) WriteFiles(files []GeneratedFile) error {
	const errCtx = "writing files"

	for _, f := range files {
		abs, err := ResolvePath(w.Dir, f.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		if f.Deleted {
			err := os.Remove(abs)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		//nolint:gosec // generated sources are world-readable
		if err := os.WriteFile(
			abs, []byte(f.Content), 0o644,
		); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

// ResolvePath joins the relative path rel onto root. Absolute
// paths, paths escaping root and paths inside .git fail with
// ErrInvalidPath.
func ResolvePath(root string, rel string) (string, error) {
	slash := filepath.ToSlash(rel)
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(slash, "/") {
		return "", fmt.Errorf("%q: %w", rel, ErrInvalidPath)
	}

	clean := filepath.ToSlash(filepath.Clean(rel))
	if clean == "." || clean == ".." ||
		strings.HasPrefix(clean, "../") ||
		clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return "", fmt.Errorf("%q: %w", rel, ErrInvalidPath)
	}

	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// unmergedFiles lists paths left in a conflicted state.
func (w *WorkingCopy) unmergedFiles(ctx context.Context) ([]string, error) {
	res, err := exec.Run(
		ctx, w.Dir, "git",
		"diff", "--name-only", "--diff-filter=U",
	)
	if err != nil {
		return nil, err
	}

	var files []string

	sc := bufio.NewScanner(strings.NewReader(res.Stdout))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			files = append(files, line)
		}
	}

	return files, sc.Err()
}

func (w *WorkingCopy) git(ctx context.Context, args ...string) error {
	_, err := exec.Run(ctx, w.Dir, "git", args...)

	return err
}
