// Package commitmsg generates and parses the run trailer
// embedded in generated commit messages. The trailer sits
// between marker lines so that later runs can tell which run
// produced a commit and which file set it carried.
package commitmsg
