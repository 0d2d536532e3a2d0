// Package session provides the key/value stores that hold all mutable SSO
// state: the server-side binding of broker session ids to user payloads and
// the client-side bookkeeping of pending tokens.
//
// Two implementations share the Store interface:
//
//   - RedisStore backs the server so that attach, login, profile and logout
//     can be served by different processes.
//   - MemoryStore backs a single broker application process and the tests.
//
// Entries expire after the configured TTL (60 minutes by default). A zero
// TTL, or forever=true on an individual Set, disables expiry for the entry.
package session
