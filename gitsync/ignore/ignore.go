package ignore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// DefaultFileName is the ignore file looked up at the
// repository root.
const DefaultFileName = ".codepublishignore"

// ErrBadPattern marks an ignore line that is not a valid
// glob.
var ErrBadPattern = errors.New("bad ignore pattern")

type rule struct {
	glob    string
	negate  bool
	dirOnly bool
}

// Filter answers whether a path is excluded. The nil and zero
// Filter exclude nothing.
type Filter struct {
	rules []rule
}

// Parse reads ignore rules from r.
func Parse(r io.Reader) (*Filter, error) {
	const errCtx = "parsing ignore file"

	f := &Filter{}

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		ru, ok := parseLine(sc.Text())
		if !ok {
			continue
		}

		if !doublestar.ValidatePattern(ru.glob) {
			return nil, fmt.Errorf(
				"%s: line %d %q: %w", errCtx, n, sc.Text(), ErrBadPattern,
			)
		}

		f.rules = append(f.rules, ru)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return f, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Filter, error) {
	return Parse(strings.NewReader(s))
}

func parseLine(line string) (rule, bool) {
	line = strings.TrimRight(line, "\r")
	line = trimTrailingSpace(line)

	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	var ru rule

	switch {
	case strings.HasPrefix(line, "!"):
		ru.negate = true
		line = line[1:]
	case strings.HasPrefix(line, `\!`), strings.HasPrefix(line, `\#`):
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		ru.dirOnly = true
		line = strings.TrimRight(line, "/")
	}

	if line == "" {
		return rule{}, false
	}

	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")

	if !anchored && !strings.HasPrefix(line, "**") {
		line = "**/" + line
	}

	ru.glob = line

	return ru, true
}

// trimTrailingSpace drops unescaped trailing spaces.
func trimTrailingSpace(s string) string {
	for strings.HasSuffix(s, " ") && !strings.HasSuffix(s, `\ `) {
		s = s[:len(s)-1]
	}

	if strings.HasSuffix(s, `\ `) {
		s = s[:len(s)-2] + " "
	}

	return s
}

// Excluded reports whether the slash separated relative path
// p is excluded. Parent directories are decided first, from
// the root down; once one is excluded, nothing below it can be
// re-included, as with git. Otherwise the last pattern
// matching p decides.
func (f *Filter) Excluded(p string) bool {
	if f == nil || len(f.rules) == 0 {
		return false
	}

	p = strings.TrimPrefix(path.Clean("/"+p), "/")

	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		if f.decide(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}

	return f.decide(p, false)
}

// decide applies the rules to p alone. Directory-only
// patterns apply when isDir is set.
func (f *Filter) decide(p string, isDir bool) bool {
	excluded := false

	for _, ru := range f.rules {
		if ru.dirOnly && !isDir {
			continue
		}

		if match(ru.glob, p) {
			excluded = !ru.negate
		}
	}

	return excluded
}

func match(glob, p string) bool {
	ok, err := doublestar.Match(glob, p)

	return err == nil && ok
}

// Apply returns the files of fs that are not excluded, in
// order.
func (f *Filter) Apply(fs []git.GeneratedFile) []git.GeneratedFile {
	out := make([]git.GeneratedFile, 0, len(fs))

	for _, file := range fs {
		if f.Excluded(file.Path) {
			slog.Debug("ignoring generated file", "path", file.Path)

			continue
		}

		out = append(out, file)
	}

	return out
}

// Source reads a file from a repository branch. It is
// satisfied by git.Contents.
type Source interface {
	File(
		ctx context.Context,
		ref git.RepoRef,
		path string,
		branch string,
	) (*git.File, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(
	ctx context.Context,
	ref git.RepoRef,
	path string,
	branch string,
) (*git.File, error)

// File implements Source.
func (f SourceFunc) File(
	ctx context.Context,
	ref git.RepoRef,
	path string,
	branch string,
) (*git.File, error) {
	return f(ctx, ref, path, branch)
}

// Load reads the ignore file name from branch of ref. A
// missing or unreadable file yields an empty Filter. Only a
// file with invalid patterns fails.
func Load(
	ctx context.Context,
	src Source,
	ref git.RepoRef,
	branch string,
	name string,
) (*Filter, error) {
	const errCtx = "loading ignore file"

	file, err := src.File(ctx, ref, name, branch)
	if err != nil {
		slog.Info(
			"repository has no readable ignore file",
			"file", name,
			"err", err,
		)

		return &Filter{}, nil
	}

	if file == nil {
		slog.Info("repository has no ignore file", "file", name)

		return &Filter{}, nil
	}

	slog.Info("loaded ignore file", "file", file.Name, "url", file.HTMLURL)

	f, err := ParseString(file.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return f, nil
}
