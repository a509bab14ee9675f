// Package digester computes SHA256 digests of generated file
// sets. The digest is order independent, so two runs that
// produce the same files yield the same value.
package digester
