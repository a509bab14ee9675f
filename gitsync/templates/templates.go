package templates

import (
	"github.com/valyala/fasttemplate"
)

// Placeholder names.
const (
	VarRepository = "REPOSITORY"
	VarBranch     = "BRANCH"
	VarRunID      = "RUN_ID"
)

// Default texts.
const (
	DefaultREADME = "# {{REPOSITORY}}\n\n" +
		"This repository contains generated code published by " +
		"codepublish. Generated updates arrive as pull requests " +
		"from the `{{BRANCH}}` branch.\n"

	DefaultBootstrapMessage = "Initial commit"

	DefaultAccumulativeTitle = "codepublish: generated code updates"

	DefaultAccumulativeBody = "This pull request collects every generated " +
		"update published to `{{BRANCH}}`. Manual edits made on the " +
		"branch are preserved and re-applied after each regeneration. " +
		"Each publish adds a comment below.\n"

	DefaultRestorationMessage = "codepublish diff restoration\n\n" +
		"Re-applies manual edits on top of run {{RUN_ID}}.\n"
)

// Set holds the texts a publish run renders.
type Set struct {
	README             string
	BootstrapMessage   string
	AccumulativeTitle  string
	AccumulativeBody   string
	RestorationMessage string
}

// Default returns the built-in texts.
func Default() Set {
	return Set{
		README:             DefaultREADME,
		BootstrapMessage:   DefaultBootstrapMessage,
		AccumulativeTitle:  DefaultAccumulativeTitle,
		AccumulativeBody:   DefaultAccumulativeBody,
		RestorationMessage: DefaultRestorationMessage,
	}
}

// WithDefaults fills the empty texts of s from Default.
func (s Set) WithDefaults() Set {
	d := Default()

	for _, f := range []struct {
		dst *string
		def string
	}{
		{&s.README, d.README},
		{&s.BootstrapMessage, d.BootstrapMessage},
		{&s.AccumulativeTitle, d.AccumulativeTitle},
		{&s.AccumulativeBody, d.AccumulativeBody},
		{&s.RestorationMessage, d.RestorationMessage},
	} {
		if *f.dst == "" {
			*f.dst = f.def
		}
	}

	return s
}

// Vars are the values substituted into a Set.
type Vars struct {
	Repository string
	Branch     string
	RunID      string
}

func (v Vars) context() map[string]any {
	return map[string]any{
		VarRepository: v.Repository,
		VarBranch:     v.Branch,
		VarRunID:      v.RunID,
	}
}

// Render substitutes {{NAME}} placeholders of format with
// vars. Unknown placeholders are preserved.
func Render(format string, vars Vars) string {
	return fasttemplate.ExecuteStringStd(
		format, "{{", "}}", vars.context(),
	)
}

// Rendered is a Set with placeholders substituted.
func (s Set) Rendered(vars Vars) Set {
	return Set{
		README:             Render(s.README, vars),
		BootstrapMessage:   Render(s.BootstrapMessage, vars),
		AccumulativeTitle:  Render(s.AccumulativeTitle, vars),
		AccumulativeBody:   Render(s.AccumulativeBody, vars),
		RestorationMessage: Render(s.RestorationMessage, vars),
	}
}
