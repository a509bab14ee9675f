package publisher

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// Manifest is the YAML description of one publish.
type Manifest struct {
	Organization     string              `yaml:"organization"`
	Owner            string              `yaml:"owner"`
	Repository       string              `yaml:"repository"`
	Group            string              `yaml:"group"`
	Branch           string              `yaml:"branch"`
	CommitMessage    string              `yaml:"commitMessage"`
	PullRequestTitle string              `yaml:"pullRequestTitle"`
	PullRequestBody  string              `yaml:"pullRequestBody"`
	Mode             git.PullRequestMode `yaml:"mode"`
	// FilesDir is the directory holding the generated files.
	// Relative paths resolve against the manifest location.
	FilesDir string `yaml:"filesDir"`
	// Deleted lists repository paths to remove.
	Deleted []string `yaml:"deleted"`
}

// DecodeManifest reads a manifest from in. Unknown fields are
// rejected and an empty mode means Accumulative.
func DecodeManifest(in io.Reader) (*Manifest, error) {
	const errCtx = "decoding manifest"

	var m Manifest

	if err := yaml.NewDecoder(
		in, yaml.DisallowUnknownField(),
	).Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if m.Mode == "" {
		m.Mode = git.ModeAccumulative
	}

	if err := m.Mode.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if m.Organization == "" {
		return nil, fmt.Errorf(
			"%s: organization must be set: %w", errCtx, git.ErrConfiguration,
		)
	}

	return &m, nil
}

// LoadManifest decodes the manifest file at path and resolves
// a relative FilesDir against its directory.
func LoadManifest(path string) (*Manifest, error) {
	const errCtx = "loading manifest"

	f, err := os.Open(path) //nolint:gosec // path from CLI flags
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer f.Close() //nolint:errcheck

	m, err := DecodeManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", errCtx, path, err)
	}

	if m.FilesDir != "" && !filepath.IsAbs(m.FilesDir) {
		m.FilesDir = filepath.Join(filepath.Dir(path), m.FilesDir)
	}

	return m, nil
}

// Request builds the publish request of m for files.
func (m *Manifest) Request(files []git.GeneratedFile) Request {
	for _, d := range m.Deleted {
		files = append(files, git.GeneratedFile{Path: d, Deleted: true})
	}

	return Request{
		Ref: git.RepoRef{
			Owner: m.Owner,
			Name:  m.Repository,
			Group: m.Group,
		},
		Branch:           m.Branch,
		Files:            files,
		CommitMessage:    m.CommitMessage,
		PullRequestTitle: m.PullRequestTitle,
		PullRequestBody:  m.PullRequestBody,
		Mode:             m.Mode,
	}
}

// ReadFiles loads every regular file under dir as a generated
// file keyed by its slash separated relative path, sorted.
// .git directories are skipped.
func ReadFiles(dir string) ([]git.GeneratedFile, error) {
	const errCtx = "reading generated files"

	var files []git.GeneratedFile

	err := filepath.WalkDir(dir, func(
		path string,
		d fs.DirEntry,
		err error,
	) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(path) //nolint:gosec // walked from dir
		if err != nil {
			return err
		}

		files = append(files, git.GeneratedFile{
			Path:    filepath.ToSlash(rel),
			Content: string(content),
		})

		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, dir, git.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}
