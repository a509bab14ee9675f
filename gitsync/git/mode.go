package git

import "fmt"

// PullRequestMode selects the publishing strategy.
type PullRequestMode string

// Publishing strategies. Basic commits the files through the
// provider API without a clone. Accumulative reconciles user
// edits through a local working copy.
const (
	ModeBasic        PullRequestMode = "basic"
	ModeAccumulative PullRequestMode = "accumulative"
)

// Validate fails with ErrInvalidMode for unknown modes.
func (m PullRequestMode) Validate() error {
	switch m {
	case ModeBasic, ModeAccumulative:
		return nil
	default:
		return fmt.Errorf(
			"pull request mode %q: %w", string(m), ErrInvalidMode,
		)
	}
}
