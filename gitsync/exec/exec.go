// Package exec provides blocking command execution helpers
// used by the working-copy driver.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
)

// redacted replaces the password part of URLs that appear in
// logged arguments.
const redacted = "xxxxx"

// Result holds the separated outputs of a command.
type Result struct {
	Stdout string
	Stderr string
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	return r.Stdout + r.Stderr
}

// Ex executes the named command in the given directory and
// returns combined stdout+stderr output. Pass empty dir to
// use the current working directory. Credentials embedded in
// URL arguments are never logged nor returned in errors.
func Ex(
	ctx context.Context,
	dir string,
	name string,
	arg ...string,
) (string, error) {
	res, err := Run(ctx, dir, name, arg...)

	return res.Combined(), err
}

// Run executes the named command like Ex but keeps stdout and
// stderr apart, which callers need when stdout is data (a
// patch, a sha) and stderr is diagnostics.
func Run(
	ctx context.Context,
	dir string,
	name string,
	arg ...string,
) (Result, error) {
	const errCtx = "executing command"

	shown := Redact(arg)

	slog.Info(
		"executing",
		"cmd", name,
		"args", strings.Join(shown, " "),
		"dir", dir,
	)

	//nolint:gosec // callers pass fixed git sub-commands
	cmd := exec.CommandContext(ctx, name, arg...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: redactText(stderr.String(), arg),
	}

	slog.Debug("output", "result", res.Combined())

	if err != nil {
		return res, fmt.Errorf(
			"%s: %s %s: %s: %w",
			errCtx,
			name,
			strings.Join(shown, " "),
			strings.TrimSpace(res.Stderr),
			err,
		)
	}

	return res, nil
}

// Redact returns a copy of args where the password of every
// URL with user info is replaced.
func Redact(args []string) []string {
	out := make([]string, len(args))

	for i, a := range args {
		out[i] = redactURL(a)
	}

	return out
}

func redactURL(s string) string {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return s
	}

	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}

	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	} else {
		u.User = url.User(redacted)
	}

	return u.String()
}

// redactText scrubs any secret URL from args out of free text
// such as git stderr, which echoes the remote URL on failure.
func redactText(text string, args []string) string {
	for _, a := range args {
		if r := redactURL(a); r != a {
			text = strings.ReplaceAll(text, a, r)
		}
	}

	return text
}
