// Package gittest provides a bare repository on disk and a
// git.Provider backed by it, for tests that drive the real
// git binary.
package gittest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	oe "os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// Remote is a bare repository whose default branch is main.
type Remote struct {
	Dir string
	tb  testing.TB
}

// LogEntry is one commit of Remote.Log.
type LogEntry struct {
	SHA     string
	Author  git.Identity
	Message string
}

// NewRemote creates an empty bare repository.
func NewRemote(tb testing.TB) *Remote {
	tb.Helper()

	r := &Remote{
		Dir: filepath.Join(tb.TempDir(), "remote.git"),
		tb:  tb,
	}

	if _, err := run("", "init", "--bare", "-b", "main", r.Dir); err != nil {
		tb.Fatalf("init remote: %v", err)
	}

	return r
}

// Commit commits files on branch as author and pushes it. A
// missing branch starts from HEAD, or as the root commit of
// an empty repository. Files with empty content are removed.
// Returns the new commit sha.
func (r *Remote) Commit(
	branch string,
	author git.Identity,
	message string,
	files map[string]string,
) string {
	r.tb.Helper()

	work := filepath.Join(r.tb.TempDir(), "work")

	r.must("", "clone", "-q", r.Dir, work)

	switch {
	case r.Has("refs/heads/" + branch):
		r.must(work, "checkout", "-q", "-B", branch, "origin/"+branch)
	case r.Has("HEAD"):
		r.must(work, "checkout", "-q", "-b", branch)
	default:
		r.must(work, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	}

	for p, c := range files {
		abs := filepath.Join(work, filepath.FromSlash(p))

		if c == "" {
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				r.tb.Fatalf("remove %s: %v", p, err)
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			r.tb.Fatalf("mkdir %s: %v", p, err)
		}

		if err := os.WriteFile(abs, []byte(c), 0o600); err != nil {
			r.tb.Fatalf("write %s: %v", p, err)
		}
	}

	r.must(work, "add", "--all", ".")
	r.must(
		work,
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "-q", "--allow-empty", "-m", message,
	)
	r.must(work, "push", "-q", "origin", branch)

	return strings.TrimSpace(r.must(work, "rev-parse", "HEAD"))
}

// Has reports whether rev resolves in the repository.
func (r *Remote) Has(rev string) bool {
	_, err := run(r.Dir, "rev-parse", "--verify", "--quiet", rev+"^{commit}")

	return err == nil
}

// SHA resolves rev, failing the test when it does not exist.
func (r *Remote) SHA(rev string) string {
	r.tb.Helper()

	return strings.TrimSpace(r.must(r.Dir, "rev-parse", "--verify", rev))
}

// Show returns the content of path on branch.
func (r *Remote) Show(branch, path string) (string, bool) {
	out, err := run(r.Dir, "show", branch+":"+path)
	if err != nil {
		return "", false
	}

	return out, true
}

// Log lists the commits of branch, newest first.
func (r *Remote) Log(branch string) []LogEntry {
	r.tb.Helper()

	entries, err := log(r.Dir, branch)
	if err != nil {
		r.tb.Fatalf("log %s: %v", branch, err)
	}

	return entries
}

func (r *Remote) must(dir string, args ...string) string {
	r.tb.Helper()

	out, err := run(dir, args...)
	if err != nil {
		r.tb.Fatalf("%v", err)
	}

	return out
}

func log(dir, branch string) ([]LogEntry, error) {
	out, err := run(
		dir, "log", "--format=%H%x1f%an%x1f%ae%x1f%B%x1e", branch, "--",
	)
	if err != nil {
		return nil, err
	}

	var entries []LogEntry

	for _, rec := range strings.Split(out, "\x1e") {
		rec = strings.TrimLeft(rec, "\n")
		if rec == "" {
			continue
		}

		f := strings.SplitN(rec, "\x1f", 4)
		if len(f) != 4 {
			return nil, fmt.Errorf("malformed log record %q", rec)
		}

		entries = append(entries, LogEntry{
			SHA:     f[0],
			Author:  git.Identity{Name: f[1], Email: f[2]},
			Message: f[3],
		})
	}

	return entries, nil
}

// run executes git with a fixed identity and hooks disabled.
func run(dir string, args ...string) (string, error) {
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

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf(
			"git %v: %s: %w", args, strings.TrimSpace(stderr.String()), err,
		)
	}

	return stdout.String(), nil
}
