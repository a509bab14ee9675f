// Package git provides the provider capability interface used to publish
// generated code into a user-owned repository, and the local working-copy
// driver the synchronizer runs git operations through.
//
// Provider abstracts one hosting backend. Implementations exist for GitHub,
// GitLab and Bitbucket Cloud in sub-packages; factory.New selects one by
// Kind. A variant that cannot perform an operation reports it through
// Supports and returns an error wrapping ErrNotSupported, never approximated
// data.
//
// WorkingCopy wraps one ephemeral local clone. Clone creates it; Clean
// removes it.
package git
