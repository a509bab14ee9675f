package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/byte4ever/codepublish/gitsync/commitmsg"
	"github.com/byte4ever/codepublish/gitsync/digester"
	"github.com/byte4ever/codepublish/gitsync/git"
	"github.com/byte4ever/codepublish/gitsync/ignore"
	"github.com/byte4ever/codepublish/gitsync/templates"
)

const (
	diffDirName  = ".generated-diffs"
	diffFileName = "diff.patch"
)

// DefaultRestorationIdentity authors the commits that
// re-apply manual edits.
var DefaultRestorationIdentity = git.Identity{
	Name:  "codepublish diff",
	Email: "diff@codepublish.dev",
}

// Config holds the settings shared by every run of a
// Synchronizer.
type Config struct {
	// ScratchDir holds the per-run working copies. Defaults
	// to the system temporary directory.
	ScratchDir string

	// IgnoreFile is the repository ignore file name.
	IgnoreFile string

	// Texts are the fixed texts rendered per run.
	Texts templates.Set

	// RestorationIdentity authors restoration commits. It
	// must differ from every provider bot identity.
	RestorationIdentity git.Identity

	// FallbackDefaultBranch is used when the provider reports
	// no default branch, as for empty repositories.
	FallbackDefaultBranch string

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// NewRunID defaults to a random uuid.
	NewRunID func() string
}

// Request describes one publish.
type Request struct {
	Ref              git.RepoRef
	Branch           string
	Files            []git.GeneratedFile
	CommitMessage    string
	PullRequestTitle string
	PullRequestBody  string
	Mode             git.PullRequestMode
}

// Validate checks the mode and the required coordinates.
func (r Request) Validate() error {
	const errCtx = "validating request"

	if err := r.Mode.Validate(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if r.Ref.Namespace() == "" || r.Ref.Name == "" {
		return fmt.Errorf(
			"%s: owner and repository must be set: %w",
			errCtx, git.ErrConfiguration,
		)
	}

	if r.Branch == "" {
		return fmt.Errorf(
			"%s: branch must be set: %w", errCtx, git.ErrConfiguration,
		)
	}

	return nil
}

// Result reports the outcome of a publish.
type Result struct {
	// URL is the pull request URL.
	URL   string
	RunID string
	// Files is the committed file set, after the ignore
	// filter.
	Files []git.GeneratedFile
	// DiffCaptured is true when manual edits were found on
	// the branch.
	DiffCaptured bool
	// Restored is true when a restoration commit was pushed.
	Restored bool
}

// Synchronizer publishes generated files while preserving
// manual edits. Runs are independent and may execute
// concurrently; each owns a distinct working copy.
type Synchronizer struct {
	cfg Config
}

// NewSynchronizer returns a Synchronizer with the empty
// fields of cfg defaulted.
func NewSynchronizer(cfg Config) *Synchronizer {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "codepublish")
	}

	if cfg.IgnoreFile == "" {
		cfg.IgnoreFile = ignore.DefaultFileName
	}

	if cfg.RestorationIdentity.IsZero() {
		cfg.RestorationIdentity = DefaultRestorationIdentity
	}

	if cfg.FallbackDefaultBranch == "" {
		cfg.FallbackDefaultBranch = "main"
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}

	cfg.Texts = cfg.Texts.WithDefaults()

	return &Synchronizer{cfg: cfg}
}

// run carries the state of one publish.
type run struct {
	p             git.Provider
	req           Request
	id            string
	log           *slog.Logger
	defaultBranch string
	message       string
	digest        string
	files         []git.GeneratedFile
	texts         templates.Set
}

// Publish runs one publish and returns the pull request URL.
// Mode and capability checks happen before any remote write
// or clone. In Accumulative mode the working copy is removed
// on every exit path.
func (s *Synchronizer) Publish(
	ctx context.Context,
	p git.Provider,
	req Request,
) (*Result, error) {
	const errCtx = "publishing"

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := checkCapabilities(p, req.Mode); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	r := &run{
		p:   p,
		req: req,
		id:  s.cfg.NewRunID(),
	}

	r.log = s.cfg.Logger.With(
		"run", r.id,
		"provider", string(p.Identity().Name),
		"owner", req.Ref.Namespace(),
		"repository", req.Ref.Name,
		"branch", req.Branch,
		"mode", string(req.Mode),
	)

	// Step 1: Resolve the default branch.
	repo, err := p.Repository(ctx, req.Ref)
	if err != nil {
		return nil, fmt.Errorf("%s: get repository: %w", errCtx, err)
	}

	r.defaultBranch = repo.DefaultBranch
	if r.defaultBranch == "" {
		r.defaultBranch = s.cfg.FallbackDefaultBranch

		r.log.Info(
			"repository reports no default branch",
			"fallback", r.defaultBranch,
		)
	}

	// Filter the file set with the repository ignore file.
	filter, err := ignore.Load(
		ctx, p, req.Ref, r.defaultBranch, s.cfg.IgnoreFile,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	r.files = filter.Apply(req.Files)
	r.digest = digester.FilesDigest(r.files)
	r.message = commitmsg.Generate(req.CommitMessage, commitmsg.Trailer{
		RunID:  r.id,
		Digest: r.digest,
		Files:  len(r.files),
	})
	r.texts = s.cfg.Texts.Rendered(templates.Vars{
		Repository: req.Ref.Name,
		Branch:     req.Branch,
		RunID:      r.id,
	})

	r.log.Info(
		"publishing generated files",
		"files", len(r.files),
		"ignored", len(req.Files)-len(r.files),
		"default_branch", r.defaultBranch,
	)

	res := &Result{RunID: r.id, Files: r.files}

	switch req.Mode {
	case git.ModeBasic:
		res.URL, err = p.CreatePullRequestFromFiles(
			ctx, req.Ref, git.FilesPullRequestInput{
				Branch:        req.Branch,
				CommitMessage: r.message,
				Title:         req.PullRequestTitle,
				Body:          req.PullRequestBody,
				Files:         r.files,
			},
		)
	case git.ModeAccumulative:
		err = s.accumulate(ctx, r, res)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	r.log.Info("published", "url", res.URL)

	return res, nil
}

// accumulate runs steps 2 to 8 of the Accumulative mode in
// one working copy.
func (s *Synchronizer) accumulate(
	ctx context.Context,
	r *run,
	res *Result,
) error {
	const errCtx = "accumulative publish"

	bot, err := r.p.BotIdentity(ctx)
	if err != nil {
		return fmt.Errorf("%s: bot identity: %w", errCtx, err)
	}

	token, err := r.p.CloneToken(ctx)
	if err != nil {
		return fmt.Errorf("%s: clone token: %w", errCtx, err)
	}

	dir, err := git.ResolvePath(s.cfg.ScratchDir, filepath.Join(
		string(r.p.Identity().Name), r.req.Ref.Namespace(), r.req.Ref.Name, r.id,
	))
	if err != nil {
		return fmt.Errorf("%s: clone dir: %w", errCtx, err)
	}

	wc, err := git.Clone(ctx, r.p.CloneURL(r.req.Ref, token), dir, *bot)
	if err != nil {
		if cleanErr := os.RemoveAll(dir); cleanErr != nil {
			r.log.Error("failed to clean working copy", "error", cleanErr)
		}

		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 8: Remove the working copy whatever the outcome.
	defer func() {
		if cleanErr := wc.Clean(); cleanErr != nil {
			r.log.Error("failed to clean working copy", "error", cleanErr)
		}
	}()

	// Step 2: Bootstrap an empty default branch.
	first, err := s.bootstrap(ctx, r, wc)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 3: Ensure the target branch exists.
	if err := ensureBranch(ctx, r, wc, first); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 4: Capture manual edits since the last generation.
	diff, err := captureDiff(ctx, r, wc)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	res.DiffCaptured = diff != ""

	// Step 5: Commit the generated files.
	if err := commitGenerated(ctx, r, wc, *bot); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 6: Re-apply the captured edits.
	if diff != "" {
		restored, err := s.restore(ctx, r, wc, diff)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		res.Restored = restored
	}

	// Step 7: Reuse or open the pull request and log the run.
	url, err := pullRequest(ctx, r)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	res.URL = url

	return nil
}

// bootstrap gives an empty default branch a root commit and
// returns the first commit of the default branch.
func (s *Synchronizer) bootstrap(
	ctx context.Context,
	r *run,
	wc *git.WorkingCopy,
) (*git.Commit, error) {
	const errCtx = "bootstrapping default branch"

	first, err := r.p.FirstCommit(ctx, r.req.Ref, r.defaultBranch)
	if err != nil {
		return nil, fmt.Errorf("%s: first commit: %w", errCtx, err)
	}

	if first != nil {
		return first, nil
	}

	r.log.Info("default branch has no commits, creating one")

	if err := wc.CheckoutUnborn(ctx, r.defaultBranch); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.WriteFiles([]git.GeneratedFile{
		{Path: "README.md", Content: r.texts.README},
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.AddAll(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := wc.Commit(ctx, r.texts.BootstrapMessage, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.Push(ctx, r.defaultBranch, false); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	sha, err := wc.HeadSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &git.Commit{SHA: sha, Message: r.texts.BootstrapMessage}, nil
}

// ensureBranch creates the target branch from the first
// commit of the default branch and replays the bot commits
// of the default branch onto it, oldest first.
func ensureBranch(
	ctx context.Context,
	r *run,
	wc *git.WorkingCopy,
	first *git.Commit,
) error {
	const errCtx = "ensuring branch"

	br, err := r.p.Branch(ctx, r.req.Ref, r.req.Branch)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if br != nil {
		return nil
	}

	if _, err := r.p.CreateBranch(
		ctx, r.req.Ref, r.req.Branch, first.SHA,
	); err != nil {
		return fmt.Errorf("%s: create: %w", errCtx, err)
	}

	commits, err := r.p.BotCommits(ctx, r.req.Ref, r.defaultBranch)
	if err != nil {
		return fmt.Errorf("%s: bot commits: %w", errCtx, err)
	}

	r.log.Info(
		"created branch, replaying bot commits",
		"from", first.SHA,
		"commits", len(commits),
	)

	if err := wc.ReleaseLocks(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.Checkout(ctx, r.req.Branch); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	for i := len(commits) - 1; i >= 0; i-- {
		if commits[i].SHA == first.SHA {
			continue
		}

		if err := wc.CherryPick(ctx, commits[i].SHA); err != nil {
			return fmt.Errorf("%s: replay: %w", errCtx, err)
		}
	}

	if err := wc.Push(ctx, r.req.Branch, false); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// captureDiff returns the changes made on the branch since
// its newest bot commit. When there are some, the branch is
// reset to that commit locally and on the remote.
func captureDiff(
	ctx context.Context,
	r *run,
	wc *git.WorkingCopy,
) (string, error) {
	const errCtx = "capturing manual edits"

	if err := wc.Checkout(ctx, r.req.Branch); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	commits, err := r.p.BotCommits(ctx, r.req.Ref, r.req.Branch)
	if err != nil {
		return "", fmt.Errorf("%s: bot commits: %w", errCtx, err)
	}

	if len(commits) == 0 {
		r.log.Info("no bot commit on branch, nothing to preserve")

		return "", nil
	}

	latest := commits[0]

	if t, ok := commitmsg.Extract(latest.Message); ok && t.Digest == r.digest {
		r.log.Info(
			"generated files unchanged since previous run",
			"previous_run", t.RunID,
		)
	}

	diff, err := wc.Diff(ctx, latest.SHA)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if diff == "" {
		r.log.Info("no manual edits since last bot commit", "sha", latest.SHA)

		return "", nil
	}

	r.log.Info(
		"manual edits found, resetting branch",
		"sha", latest.SHA,
		"diff_bytes", len(diff),
	)

	if err := wc.Reset(ctx, latest.SHA); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.Push(ctx, r.req.Branch, true); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.ReleaseLocks(); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return diff, nil
}

// commitGenerated commits the file set as the bot and
// pushes it.
func commitGenerated(
	ctx context.Context,
	r *run,
	wc *git.WorkingCopy,
	bot git.Identity,
) error {
	const errCtx = "committing generated files"

	if err := wc.WriteFiles(r.files); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.AddAll(ctx); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	committed, err := wc.Commit(ctx, r.message, &bot)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if !committed {
		r.log.Info("generated files produce no change")
	}

	if err := wc.Push(ctx, r.req.Branch, false); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// restore writes diff to the run's artifact path, applies it
// three-way on top of the generated commit and commits the
// result as the restoration identity. The artifact is
// removed whatever the outcome.
func (s *Synchronizer) restore(
	ctx context.Context,
	r *run,
	wc *git.WorkingCopy,
	diff string,
) (_ bool, retErr error) {
	const errCtx = "restoring manual edits"

	runDir := filepath.Join(
		wc.GitDir(), diffDirName,
		string(r.p.Identity().Name), r.req.Ref.Namespace(), r.req.Ref.Name,
		r.id,
	)

	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			retErr = errors.Join(retErr, fmt.Errorf("%s: %w", errCtx, err))
		}
	}()

	patch := filepath.Join(runDir, diffFileName)

	if err := os.WriteFile(patch, []byte(diff), 0o600); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	r.log.Info("saved diff", "path", patch)

	if err := wc.ReleaseLocks(); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.ApplyPatch(ctx, patch, git.ApplyOptions{
		ThreeWay:         true,
		IgnoreWhitespace: true,
	}); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := wc.AddAll(ctx); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	restorer := s.cfg.RestorationIdentity

	committed, err := wc.Commit(ctx, r.texts.RestorationMessage, &restorer)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !committed {
		r.log.Info("manual edits already part of generated files")

		return false, nil
	}

	if err := wc.Push(ctx, r.req.Branch, false); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return true, nil
}

// pullRequest reuses the open pull request of the branch or
// opens one, then comments the run body on it.
func pullRequest(ctx context.Context, r *run) (string, error) {
	const errCtx = "managing pull request"

	pr, err := r.p.OpenPullRequest(ctx, r.req.Ref, r.req.Branch)
	if err != nil {
		return "", fmt.Errorf("%s: find: %w", errCtx, err)
	}

	if pr == nil {
		pr, err = r.p.CreatePullRequest(ctx, r.req.Ref, git.PullRequestInput{
			Branch: r.req.Branch,
			Base:   r.defaultBranch,
			Title:  r.texts.AccumulativeTitle,
			Body:   r.texts.AccumulativeBody,
		})
		if err != nil {
			return "", fmt.Errorf("%s: create: %w", errCtx, err)
		}
	} else {
		r.log.Info("reusing existing pull request", "url", pr.URL)
	}

	if err := r.p.CommentOnPullRequest(
		ctx, r.req.Ref, pr.Number, r.req.PullRequestBody,
	); err != nil {
		return "", fmt.Errorf("%s: comment: %w", errCtx, err)
	}

	return pr.URL, nil
}

// requiredCapabilities lists what each mode calls on the
// provider.
func requiredCapabilities(mode git.PullRequestMode) []git.Capability {
	caps := []git.Capability{git.CapRepository, git.CapFile}

	switch mode {
	case git.ModeBasic:
		return append(caps, git.CapFilesPullRequest)
	case git.ModeAccumulative:
		return append(caps,
			git.CapBotIdentity, git.CapCloneURL,
			git.CapFirstCommit, git.CapBranch, git.CapCreateBranch,
			git.CapBotCommits, git.CapOpenPullRequest,
			git.CapCreatePullRequest, git.CapComment,
		)
	}

	return caps
}

func checkCapabilities(p git.Provider, mode git.PullRequestMode) error {
	missing := git.Missing(p, requiredCapabilities(mode)...)
	if len(missing) == 0 {
		return nil
	}

	errs := make([]error, 0, len(missing))
	for _, c := range missing {
		errs = append(errs, git.NotSupported(p.Identity().Name, c))
	}

	return errors.Join(errs...)
}
