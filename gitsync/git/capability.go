package git

// Capability names one operation of the provider contract.
type Capability string

// Capabilities of the provider contract.
const (
	CapInstallationURL    Capability = "installation url"
	CapExchangeCode       Capability = "exchange code"
	CapRefreshCredential  Capability = "refresh credential"
	CapCurrentUser        Capability = "current user"
	CapListGroups         Capability = "list groups"
	CapOrganization       Capability = "organization"
	CapDeleteOrganization Capability = "delete organization"
	CapRepository         Capability = "get repository"
	CapListRepositories   Capability = "list repositories"
	CapCreateRepository   Capability = "create repository"
	CapFile               Capability = "get file"
	CapCreateCommit       Capability = "create commit"
	CapBranch             Capability = "get branch"
	CapCreateBranch       Capability = "create branch"
	CapFirstCommit        Capability = "first commit"
	CapBotCommits         Capability = "bot commits"
	CapOpenPullRequest    Capability = "open pull request"
	CapCreatePullRequest  Capability = "create pull request"
	CapComment            Capability = "comment on pull request"
	CapCloneURL           Capability = "clone url"
	CapBotIdentity        Capability = "bot identity"
	CapFilesPullRequest   Capability = "pull request from files"
)

// CapabilitySet is the set of capabilities a variant answers
// with real data.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}

	return set
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]

	return ok
}

// Without returns a copy of the set minus caps.
func (s CapabilitySet) Without(caps ...Capability) CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}

	for _, c := range caps {
		delete(out, c)
	}

	return out
}

// AllCapabilities lists the whole contract.
func AllCapabilities() []Capability {
	return []Capability{
		CapInstallationURL, CapExchangeCode,
		CapRefreshCredential, CapCurrentUser,
		CapListGroups, CapOrganization,
		CapDeleteOrganization, CapRepository,
		CapListRepositories, CapCreateRepository,
		CapFile, CapCreateCommit, CapBranch,
		CapCreateBranch, CapFirstCommit, CapBotCommits,
		CapOpenPullRequest, CapCreatePullRequest,
		CapComment, CapCloneURL, CapBotIdentity,
		CapFilesPullRequest,
	}
}

// Missing returns the capabilities of want that p does not
// support, in order.
func Missing(p Capable, want ...Capability) []Capability {
	var out []Capability

	for _, c := range want {
		if !p.Supports(c) {
			out = append(out, c)
		}
	}

	return out
}
