package ignore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/codepublish/gitsync/git"
	"github.com/byte4ever/codepublish/gitsync/ignore"
)

const rules = `
# generated secrets stay local
*.log
!keep.log
build/
/docs/*.md
server/**/migrations
\#literal
trailing   
`

func TestFilter_Excluded(t *testing.T) {
	t.Parallel()

	f, err := ignore.ParseString(rules)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{path: "app.log", want: true},
		{path: "deep/nested/app.log", want: true},
		{path: "keep.log", want: false},
		{path: "sub/keep.log", want: false},
		{path: "build/out.js", want: true},
		{path: "src/build/out.js", want: true},
		{path: "build", want: false},
		{path: "docs/a.md", want: true},
		{path: "docs/sub/a.md", want: false},
		{path: "other/docs/a.md", want: false},
		{path: "server/src/migrations/001.sql", want: true},
		{path: "server/migrations/001.sql", want: true},
		{path: "#literal", want: true},
		{path: "trailing", want: true},
		{path: "src/main.go", want: false},
		{path: "./app.log", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, f.Excluded(tt.path))
		})
	}
}

func TestFilter_Excluded_parent_directory_wins(t *testing.T) {
	t.Parallel()

	f, err := ignore.ParseString("logs/\n!logs/keep.txt\n!keep.txt\nvendor\n!vendor/lib/a.go\n*.tmp\n!important.tmp\n")
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{path: "logs/keep.txt", want: true},
		{path: "app/logs/keep.txt", want: true},
		{path: "keep.txt", want: false},
		{path: "vendor/lib/a.go", want: true},
		{path: "src/vendor/lib/a.go", want: true},
		{path: "a.tmp", want: true},
		{path: "important.tmp", want: false},
		{path: "sub/important.tmp", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, f.Excluded(tt.path))
		})
	}
}

func TestFilter_zero_excludes_nothing(t *testing.T) {
	t.Parallel()

	var nilFilter *ignore.Filter

	assert.False(t, nilFilter.Excluded("a.txt"))
	assert.False(t, (&ignore.Filter{}).Excluded("a.txt"))

	files := []git.GeneratedFile{{Path: "a.txt"}}
	assert.Equal(t, files, nilFilter.Apply(files))
}

func TestParse_bad_pattern(t *testing.T) {
	t.Parallel()

	_, err := ignore.ParseString("ok.txt\n[unclosed\n")

	require.ErrorIs(t, err, ignore.ErrBadPattern)
	assert.ErrorContains(t, err, "line 2")
}

func TestFilter_Apply_composition(t *testing.T) {
	t.Parallel()

	f, err := ignore.ParseString(rules)
	require.NoError(t, err)

	files := []git.GeneratedFile{
		{Path: "src/main.go", Content: "package main"},
		{Path: "app.log", Content: "x"},
		{Path: "keep.log", Content: "k"},
		{Path: "build/out.js", Content: "b"},
		{Path: "README.md", Content: "r"},
		{Path: "docs/a.md", Deleted: true},
	}

	got := f.Apply(files)

	// The committed set is the input minus every excluded path,
	// order preserved.
	var want []git.GeneratedFile

	for _, file := range files {
		if !f.Excluded(file.Path) {
			want = append(want, file)
		}
	}

	assert.Equal(t, want, got)
	assert.Equal(t, []string{"src/main.go", "keep.log", "README.md"}, paths(got))

	// Applying twice changes nothing.
	assert.Equal(t, got, f.Apply(got))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ref := git.RepoRef{Owner: "org", Name: "repo"}

	t.Run("file present", func(t *testing.T) {
		t.Parallel()

		var gotPath, gotBranch string

		src := ignore.SourceFunc(func(
			_ context.Context, _ git.RepoRef, path, branch string,
		) (*git.File, error) {
			gotPath, gotBranch = path, branch

			return &git.File{Name: path, Path: path, Content: "*.tmp\n"}, nil
		})

		f, err := ignore.Load(ctx, src, ref, "main", ignore.DefaultFileName)
		require.NoError(t, err)

		assert.Equal(t, ".codepublishignore", gotPath)
		assert.Equal(t, "main", gotBranch)
		assert.True(t, f.Excluded("x.tmp"))
	})

	t.Run("file absent", func(t *testing.T) {
		t.Parallel()

		src := ignore.SourceFunc(func(
			context.Context, git.RepoRef, string, string,
		) (*git.File, error) {
			return nil, nil
		})

		f, err := ignore.Load(ctx, src, ref, "main", ignore.DefaultFileName)
		require.NoError(t, err)
		assert.False(t, f.Excluded("x.tmp"))
	})

	t.Run("lookup error", func(t *testing.T) {
		t.Parallel()

		src := ignore.SourceFunc(func(
			context.Context, git.RepoRef, string, string,
		) (*git.File, error) {
			return nil, errors.New("boom")
		})

		f, err := ignore.Load(ctx, src, ref, "main", ignore.DefaultFileName)
		require.NoError(t, err)
		assert.False(t, f.Excluded("x.tmp"))
	})

	t.Run("invalid content", func(t *testing.T) {
		t.Parallel()

		src := ignore.SourceFunc(func(
			context.Context, git.RepoRef, string, string,
		) (*git.File, error) {
			return &git.File{Content: "[bad"}, nil
		})

		_, err := ignore.Load(ctx, src, ref, "main", ignore.DefaultFileName)
		assert.ErrorIs(t, err, ignore.ErrBadPattern)
	})
}

func FuzzFilter_Excluded(f *testing.F) {
	f.Add("*.log\n!keep.log\n", "a/keep.log")
	f.Add("build/\n", "build/x")
	f.Add("", "")

	f.Fuzz(func(t *testing.T, rulesText, path string) {
		flt, err := ignore.ParseString(rulesText)
		if err != nil {
			return
		}

		files := flt.Apply([]git.GeneratedFile{{Path: path}})
		assert.Equal(t, !flt.Excluded(path), len(files) == 1)
	})
}

func paths(files []git.GeneratedFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}

	return out
}

