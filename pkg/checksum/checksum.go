package checksum

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
)

const (
	// PurposeAttach keys the one-time checksum presented on attach
	PurposeAttach = "attach"
	// PurposeSession keys the digest embedded in session ids
	PurposeSession = "session"

	// tokenBytes is the entropy of a client token (160 bits)
	tokenBytes = 20
)

// sessionIDPattern matches "SSO-<broker>-<token>-<digest>". Broker id and
// token are word characters, the digest is lowercase hex.
var sessionIDPattern = regexp.MustCompile(`^SSO-(\w+)-(\w+)-([a-f0-9]+)$`)

// ErrMalformedSessionID is returned when a bearer credential does not match
// the session id wire format.
var ErrMalformedSessionID = fmt.Errorf("malformed session id")

// Engine derives and verifies protocol checksums. It is stateless and safe
// for concurrent use.
type Engine struct{}

// NewEngine creates a new checksum engine
func NewEngine() *Engine {
	return &Engine{}
}

// Generate returns the lowercase hex SHA-256 digest of purpose+token+secret.
// The concatenation order is part of the wire format and must not change.
func (e *Engine) Generate(purpose, token, secret string) string {
	sum := sha256.Sum256([]byte(purpose + token + secret))
	return hex.EncodeToString(sum[:])
}

// VerifyAttach reports whether candidate is the attach checksum for the given
// token and secret. An empty candidate never verifies. The comparison is
// constant time.
func (e *Engine) VerifyAttach(token, secret, candidate string) bool {
	if candidate == "" {
		return false
	}
	expected := e.Generate(PurposeAttach, token, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}

// SessionID composes the compound session id for a broker/token pair.
func (e *Engine) SessionID(brokerID, token, secret string) string {
	return fmt.Sprintf("SSO-%s-%s-%s", brokerID, token, e.Generate(PurposeSession, token, secret))
}

// RandomToken returns a fresh high-entropy token made of word characters
// only, so it can be embedded in a session id without escaping.
func (e *Engine) RandomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ParseSessionID splits a session id into its broker id and token. The
// embedded digest is not validated here; callers re-derive it against the
// broker's current secret.
func ParseSessionID(sid string) (brokerID, token string, err error) {
	matches := sessionIDPattern.FindStringSubmatch(sid)
	if matches == nil {
		return "", "", ErrMalformedSessionID
	}
	return matches[1], matches[2], nil
}
