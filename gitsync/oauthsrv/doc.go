// Package oauthsrv serves the HTTP endpoints completing a
// provider installation. The install endpoint redirects the
// browser to the provider; the callback stores the resulting
// organization record in a credstore.Store.
//
// Routes:
//
//	GET /health
//	GET /oauth/{provider}/install?organization=<id>
//	GET /oauth/{provider}/callback?code=<code>&state=<state>[&installation_id=<id>]
//
// The state is an HS256 token issued by the install endpoint.
// It carries the organization id, is bound to the provider
// and expires after DefaultStateTTL unless configured
// otherwise. A callback with installation_id follows the
// GitHub App flow; any other callback exchanges code for an
// OAuth credential. An existing record is never moved to
// another provider or installation.
package oauthsrv
