// Package broker resolves broker ids to their shared secrets.
//
// The protocol never caches secrets: every checksum operation looks the
// broker up again so a rotated secret takes effect immediately, invalidating
// all session ids minted under the old one.
//
// Two drivers are provided. StaticStore serves a fixed list, typically
// loaded from a yaml registry file (optionally hot-reloaded by Watcher).
// SQLStore reads from a database table with configurable column names, which
// is how multi-broker deployments usually manage their registry.
package broker
