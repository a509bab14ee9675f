// Package templates renders the fixed texts of a publish run:
// the placeholder README of an empty repository, the title and
// body of the long-lived accumulative pull request, and the
// restoration commit message. Placeholders use {{NAME}} and
// valyala/fasttemplate; unknown placeholders are kept as-is.
package templates
