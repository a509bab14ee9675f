// Package ignore parses the repository ignore file and filters
// generated file sets with it.
//
// The format follows .gitignore: one pattern per line, "#"
// starts a comment, "!" re-includes, a trailing "/" matches
// directories only, and a pattern containing a slash other
// than a trailing one is anchored at the repository root.
// Otherwise a pattern matches at any depth. Globs use
// doublestar syntax, so "**" spans directories. The last
// matching pattern wins, except that a file below an excluded
// directory cannot be re-included: "logs/" followed by
// "!logs/keep.txt" still excludes logs/keep.txt.
package ignore
