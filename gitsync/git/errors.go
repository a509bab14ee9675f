package git

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	// ErrConfiguration marks missing or invalid provider
	// configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotSupported marks a capability the variant does not
	// implement.
	ErrNotSupported = errors.New("not supported")
	// ErrNotFound marks a missing organization, repository,
	// branch or file.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a resource that already exists.
	ErrConflict = errors.New("conflict")
	// ErrPatchConflict marks a three-way apply that left
	// conflict markers.
	ErrPatchConflict = errors.New("patch conflict")
	// ErrInvalidMode marks an unknown pull request mode.
	ErrInvalidMode = errors.New("invalid pull request mode")
	// ErrDirectoryPath marks a file lookup that resolved to a
	// directory.
	ErrDirectoryPath = errors.New(
		"path points to a directory, please provide a file path",
	)
	// ErrInvalidPath marks a generated file path that is
	// absolute or escapes the working copy.
	ErrInvalidPath = errors.New("invalid file path")
)

// OpError wraps a remote-call failure with the context a
// caller needs to log and decide on retry.
type OpError struct {
	Provider   Kind
	Op         string
	Owner      string
	Repository string
	Branch     string
	Err        error
}

// Error implements error.
func (e *OpError) Error() string {
	var sb strings.Builder

	sb.WriteString(string(e.Provider))
	sb.WriteString(": ")
	sb.WriteString(e.Op)

	if e.Owner != "" || e.Repository != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Owner)
		sb.WriteString("/")
		sb.WriteString(e.Repository)
	}

	if e.Branch != "" {
		sb.WriteString("@")
		sb.WriteString(e.Branch)
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

// Unwrap returns the wrapped error.
func (e *OpError) Unwrap() error { return e.Err }

// WrapOp wraps err with operation context. A nil err yields
// nil.
func WrapOp(
	kind Kind,
	op string,
	ref RepoRef,
	branch string,
	err error,
) error {
	if err == nil {
		return nil
	}

	return &OpError{
		Provider:   kind,
		Op:         op,
		Owner:      ref.Namespace(),
		Repository: ref.Name,
		Branch:     branch,
		Err:        err,
	}
}

// NotSupported returns the error a variant answers for a
// capability it does not implement.
func NotSupported(kind Kind, op Capability) error {
	return &OpError{
		Provider: kind,
		Op:       string(op),
		Err:      ErrNotSupported,
	}
}

// PatchConflictError reports the files a three-way patch
// apply left with conflict markers.
type PatchConflictError struct {
	Files []string
}

// Error implements error.
func (e *PatchConflictError) Error() string {
	return fmt.Sprintf(
		"%s in %s",
		ErrPatchConflict, strings.Join(e.Files, ", "),
	)
}

// Is matches ErrPatchConflict.
func (e *PatchConflictError) Is(target error) bool {
	return target == ErrPatchConflict
}
