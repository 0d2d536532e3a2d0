// Package client implements the broker half of the SSO protocol: token
// lifecycle, attach URL construction and the authenticated login, profile
// and logout calls against the central server.
//
// A Client is configured once per broker application and scoped per browser
// session with Scope, which isolates the stored token. The server only ever
// sees the derived session id, never the broker secret.
package client
