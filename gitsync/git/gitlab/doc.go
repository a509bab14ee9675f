// Package gitlab implements git.Provider for GitLab (gitlab.com or self
// managed) through an OAuth application. The stored OAuth access token
// authenticates API calls and HTTPS clones, and the token owner is the bot
// identity.
package gitlab
