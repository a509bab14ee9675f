// Package publisher orchestrates the publication of a
// generated file set into a hosted repository. The
// Synchronizer runs one publish against a provider in Basic
// or Accumulative mode; the Service resolves the stored
// organization, refreshes its credential when close to expiry
// and hands the provider to the Synchronizer.
package publisher
