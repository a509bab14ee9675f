package git_test

import (
	"context"
	"os"
	oe "os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/codepublish/gitsync/git"
)

var bot = git.Identity{Name: "codepublish[bot]", Email: "bot@example.com"}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{name: "plain file", rel: "a.txt", want: "root/a.txt"},
		{name: "nested", rel: "src/x/y.go", want: "root/src/x/y.go"},
		{name: "cleaned", rel: "src/../b.txt", want: "root/b.txt"},
		{name: "empty", rel: "", wantErr: true},
		{name: "absolute", rel: "/etc/passwd", wantErr: true},
		{name: "escapes", rel: "../x", wantErr: true},
		{name: "escapes nested", rel: "a/../../x", wantErr: true},
		{name: "git dir", rel: ".git/config", wantErr: true},
		{name: "dot", rel: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := git.ResolvePath("root", tt.rel)
			if tt.wantErr {
				assert.ErrorIs(t, err, git.ErrInvalidPath)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestClone_empty_repository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := initBareRepo(t)
	dir := filepath.Join(t.TempDir(), "nested", "clone")

	wc, err := git.Clone(ctx, remote, dir, bot)
	require.NoError(t, err)

	require.NoError(t, wc.CheckoutUnborn(ctx, "main"))
	require.NoError(t, wc.WriteFiles([]git.GeneratedFile{
		{Path: "README.md", Content: "# hello\n"},
	}))
	require.NoError(t, wc.AddAll(ctx))

	committed, err := wc.Commit(ctx, "Initial commit", nil)
	require.NoError(t, err)
	assert.True(t, committed)

	require.NoError(t, wc.Push(ctx, "main", false))

	assert.Equal(
		t, "# hello\n",
		gitOut(t, remote, "show", "main:README.md"),
	)
	assert.Equal(
		t, bot.String(),
		strings.TrimSpace(gitOut(
			t, remote, "log", "-1", "--format=%an <%ae>", "main",
		)),
	)
}

func TestWorkingCopy_Commit_clean_tree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	clean, err := wc.IsClean(ctx)
	require.NoError(t, err)
	assert.True(t, clean)

	committed, err := wc.Commit(ctx, "nothing", nil)
	require.NoError(t, err)
	assert.False(t, committed)
}

func TestWorkingCopy_Commit_author_override(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	require.NoError(t, wc.WriteFiles([]git.GeneratedFile{
		{Path: "a.txt", Content: "v2\n"},
	}))
	require.NoError(t, wc.AddAll(ctx))

	other := git.Identity{Name: "Restorer", Email: "restore@example.com"}

	committed, err := wc.Commit(ctx, "restore", &other)
	require.NoError(t, err)
	assert.True(t, committed)

	assert.Equal(
		t, other.String(),
		strings.TrimSpace(gitOut(
			t, wc.Dir, "log", "-1", "--format=%an <%ae>",
		)),
	)
}

func TestWorkingCopy_WriteFiles_deleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{
		"a.txt": "v1\n", "old/b.txt": "b\n",
	})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	require.NoError(t, wc.WriteFiles([]git.GeneratedFile{
		{Path: "old/b.txt", Deleted: true},
		{Path: "missing.txt", Deleted: true},
	}))

	_, statErr := os.Stat(filepath.Join(wc.Dir, "old", "b.txt"))
	assert.True(t, os.IsNotExist(statErr))

	err = wc.WriteFiles([]git.GeneratedFile{{Path: "../escape", Content: "x"}})
	assert.ErrorIs(t, err, git.ErrInvalidPath)
}

func TestWorkingCopy_Diff_and_Reset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	base, err := wc.HeadSHA(ctx)
	require.NoError(t, err)

	diff, err := wc.Diff(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, diff)

	require.NoError(t, wc.WriteFiles([]git.GeneratedFile{
		{Path: "b.txt", Content: "user\n"},
	}))
	require.NoError(t, wc.AddAll(ctx))

	_, err = wc.Commit(ctx, "user change", nil)
	require.NoError(t, err)

	diff, err = wc.Diff(ctx, base)
	require.NoError(t, err)
	assert.Contains(t, diff, "b.txt")
	assert.Contains(t, diff, "+user")

	require.NoError(t, wc.Reset(ctx, base))

	head, err := wc.HeadSHA(ctx)
	require.NoError(t, err)
	assert.Equal(t, base, head)

	_, statErr := os.Stat(filepath.Join(wc.Dir, "b.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorkingCopy_ApplyPatch_three_way(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lines := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n"
	remote := seededBareRepo(t, map[string]string{"a.txt": lines})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	base, err := wc.HeadSHA(ctx)
	require.NoError(t, err)

	// User edit on the first line.
	commitFile(ctx, t, wc, "a.txt", strings.Replace(lines, "1\n", "one\n", 1))

	diff, err := wc.Diff(ctx, base)
	require.NoError(t, err)

	patch := writePatch(t, diff)

	// Generator edit on the last line, on top of base.
	require.NoError(t, wc.Reset(ctx, base))
	commitFile(ctx, t, wc, "a.txt", strings.Replace(lines, "10\n", "ten\n", 1))

	require.NoError(t, wc.ApplyPatch(ctx, patch, git.ApplyOptions{
		ThreeWay:         true,
		IgnoreWhitespace: true,
	}))

	got, err := os.ReadFile(filepath.Join(wc.Dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(
		t, "one\n2\n3\n4\n5\n6\n7\n8\n9\nten\n", string(got),
	)
}

func TestWorkingCopy_ApplyPatch_conflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	base, err := wc.HeadSHA(ctx)
	require.NoError(t, err)

	commitFile(ctx, t, wc, "a.txt", "user\n")

	diff, err := wc.Diff(ctx, base)
	require.NoError(t, err)

	patch := writePatch(t, diff)

	require.NoError(t, wc.Reset(ctx, base))
	commitFile(ctx, t, wc, "a.txt", "v2\n")

	err = wc.ApplyPatch(ctx, patch, git.ApplyOptions{ThreeWay: true})
	require.ErrorIs(t, err, git.ErrPatchConflict)

	var pce *git.PatchConflictError

	require.ErrorAs(t, err, &pce)
	assert.Equal(t, []string{"a.txt"}, pce.Files)
}

func TestWorkingCopy_ApplyPatch_rejected_file(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n", "b.txt": "keep\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	base, err := wc.HeadSHA(ctx)
	require.NoError(t, err)

	// User deletes the file.
	require.NoError(t, wc.WriteFiles([]git.GeneratedFile{{Path: "a.txt", Deleted: true}}))
	require.NoError(t, wc.AddAll(ctx))

	_, err = wc.Commit(ctx, "drop a", nil)
	require.NoError(t, err)

	diff, err := wc.Diff(ctx, base)
	require.NoError(t, err)

	patch := writePatch(t, diff)

	// Generator changes it on top of base.
	require.NoError(t, wc.Reset(ctx, base))
	commitFile(ctx, t, wc, "a.txt", "v2\n")

	err = wc.ApplyPatch(ctx, patch, git.ApplyOptions{ThreeWay: true})
	require.ErrorIs(t, err, git.ErrPatchConflict)

	var pce *git.PatchConflictError

	require.ErrorAs(t, err, &pce)
	assert.Equal(t, []string{"a.txt"}, pce.Files)
}

func TestRejectedPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stderr string
		want   []string
	}{
		{
			name:   "patch does not apply",
			stderr: "error: src/a.txt: patch does not apply\n",
			want:   []string{"src/a.txt"},
		},
		{
			name:   "patch failed with line",
			stderr: "error: patch failed: a.txt:3\nerror: a.txt: patch does not apply\n",
			want:   []string{"a.txt", "a.txt"},
		},
		{
			name:   "missing from index",
			stderr: "error: gone.txt: does not exist in index\n",
			want:   []string{"gone.txt"},
		},
		{
			name:   "already exists",
			stderr: "error: new.txt: already exists in working directory\n",
			want:   []string{"new.txt"},
		},
		{
			name:   "unrelated diagnostics",
			stderr: "warning: squelched 1 whitespace error\nfatal: corrupt patch at line 4\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, git.RejectedPathsForTest(tt.stderr))
		})
	}
}

func TestWorkingCopy_CherryPick(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	base, err := wc.HeadSHA(ctx)
	require.NoError(t, err)

	commitFile(ctx, t, wc, "b.txt", "b\n")

	picked, err := wc.HeadSHA(ctx)
	require.NoError(t, err)

	require.NoError(t, wc.Reset(ctx, base))
	require.NoError(t, wc.CherryPick(ctx, picked))

	got, err := os.ReadFile(filepath.Join(wc.Dir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(got))
}

func TestWorkingCopy_Push_force(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)
	require.NoError(t, wc.Checkout(ctx, "main"))

	base, err := wc.HeadSHA(ctx)
	require.NoError(t, err)

	commitFile(ctx, t, wc, "b.txt", "b\n")
	require.NoError(t, wc.Push(ctx, "main", false))

	require.NoError(t, wc.Reset(ctx, base))
	assert.Error(t, wc.Push(ctx, "main", false))
	require.NoError(t, wc.Push(ctx, "main", true))

	assert.Equal(
		t, base,
		strings.TrimSpace(gitOut(t, remote, "rev-parse", "main")),
	)
}

func TestWorkingCopy_ReleaseLocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := seededBareRepo(t, map[string]string{"a.txt": "v1\n"})

	wc, err := git.Clone(ctx, remote, filepath.Join(t.TempDir(), "c"), bot)
	require.NoError(t, err)

	lock := filepath.Join(wc.GitDir(), "index.lock")
	require.NoError(t, os.WriteFile(lock, nil, 0o600))

	require.NoError(t, wc.ReleaseLocks())

	_, statErr := os.Stat(lock)
	assert.True(t, os.IsNotExist(statErr))

	// Idempotent when no lock exists.
	require.NoError(t, wc.ReleaseLocks())
}

func TestWorkingCopy_Clean(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "repo")

	require.NoError(t, os.MkdirAll(sub, 0o750))

	wc := &git.WorkingCopy{Dir: sub, RemoteName: "origin"}

	require.NoError(t, wc.Clean())

	_, statErr := os.Stat(sub)
	assert.True(t, os.IsNotExist(statErr))
}

// commitFile writes one file and commits it with the clone's
// configured identity.
func commitFile(
	ctx context.Context,
	tb testing.TB,
	wc *git.WorkingCopy,
	path string,
	content string,
) {
	tb.Helper()

	require.NoError(tb, wc.WriteFiles([]git.GeneratedFile{
		{Path: path, Content: content},
	}))
	require.NoError(tb, wc.AddAll(ctx))

	_, err := wc.Commit(ctx, "update "+path, nil)
	require.NoError(tb, err)
}

func writePatch(tb testing.TB, diff string) string {
	tb.Helper()

	p := filepath.Join(tb.TempDir(), "diff.patch")
	require.NoError(tb, os.WriteFile(p, []byte(diff), 0o600))

	return p
}

// initBareRepo creates an empty bare repository whose default
// branch is main.
func initBareRepo(tb testing.TB) string {
	tb.Helper()

	dir := filepath.Join(tb.TempDir(), "remote.git")
	gitCmd(tb, "", "init", "--bare", "-b", "main", dir)

	return dir
}

// seededBareRepo creates a bare repository with one commit on
// main holding files.
func seededBareRepo(tb testing.TB, files map[string]string) string {
	tb.Helper()

	remote := initBareRepo(tb)
	work := filepath.Join(tb.TempDir(), "seed")

	gitCmd(tb, "", "clone", remote, work)
	gitCmd(tb, work, "symbolic-ref", "HEAD", "refs/heads/main")

	for p, c := range files {
		abs := filepath.Join(work, filepath.FromSlash(p))
		require.NoError(tb, os.MkdirAll(filepath.Dir(abs), 0o750))
		require.NoError(tb, os.WriteFile(abs, []byte(c), 0o600))
	}

	gitCmd(tb, work, "add", "--all", ".")
	gitCmd(tb, work, "commit", "-m", "seed")
	gitCmd(tb, work, "push", "origin", "main")

	return remote
}

// gitCmd runs a git command in the given directory with a
// fixed identity and hooks disabled.
func gitCmd(tb testing.TB, dir string, args ...string) {
	tb.Helper()

	gitOut(tb, dir, args...)
}

func gitOut(tb testing.TB, dir string, args ...string) string {
	tb.Helper()

	full := append([]string{
		"-c", "user.name=Seed",
		"-c", "user.email=seed@example.com",
		"-c", "commit.gpgsign=false",
		"-c", "core.hooksPath=" + os.DevNull,
		"-c", "init.defaultBranch=main",
	}, args...)

	//nolint:gosec // test helper
	cmd := oe.CommandContext(context.Background(), "git", full...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		tb.Fatalf("git %v failed: %s: %v", args, string(out), err)
	}

	return string(out)
}
