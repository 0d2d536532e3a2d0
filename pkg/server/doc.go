// Package server implements the server half of the broker-mediated SSO
// protocol: the attach → login → profile → logout state machine over a
// shared session store.
//
// Each broker session id moves through three states:
//
//	UNATTACHED     no record in the session store
//	ATTACHED       record holds the empty payload "{}"
//	AUTHENTICATED  record holds the authenticated user's unique field
//
// A session id must prove its authenticity before its state is trusted:
// every operation re-derives the embedded checksum from the broker's current
// secret, so tampering or a rotated secret invalidates the id regardless of
// what the store holds.
package server
