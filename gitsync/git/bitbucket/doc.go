// Package bitbucket implements git.Provider for Bitbucket Cloud through
// the REST API 2.0 and an OAuth consumer. Workspaces are the repository
// groups, and generated commits carry the configured bot identity.
package bitbucket
