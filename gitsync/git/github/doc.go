// Package github implements git.Provider for GitHub (cloud or enterprise)
// through a GitHub App. The App JWT authenticates app-level calls, and a
// cached installation token authenticates repository calls and HTTPS clones.
// User OAuth (install flow) goes through the App's client id and secret.
package github
