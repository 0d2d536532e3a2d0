// Package checksum implements the secret-keyed digests that bind broker
// sessions to their brokers.
//
// Every value on the wire is derived from a (purpose, token, secret) triple:
//
//	attach checksum: Generate("attach", token, secret)
//	session digest:  Generate("session", token, secret)
//
// The session id sent as a bearer credential is the compound key
// "SSO-<broker>-<token>-<digest>". It is deterministic and verifiable: the
// server re-derives the digest from the embedded broker id and token on every
// request, so a tampered or stale id is rejected before any session state is
// trusted.
package checksum
