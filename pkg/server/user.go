package server

import (
	"context"
	"time"

	"github.com/brexis/gosso/pkg/broker"
)

// User is the server-side user record exposed through the protocol.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProvider resolves users for the server. It is an external capability:
// the protocol never touches user storage directly.
type UserProvider interface {
	// FindByCredentials verifies a credential map (unique field + password)
	// and returns the matching user, or nil when the credentials are
	// rejected. An error means the backend failed, not that authentication
	// failed.
	FindByCredentials(ctx context.Context, credentials map[string]string) (*User, error)

	// FindByField resolves a user by a single unique field, e.g.
	// ("email", "admin@admin.com"). Returns nil when no user matches.
	FindByField(ctx context.Context, field, value string) (*User, error)
}

// RequestMeta carries informational request context (originating IP, user
// agent) into hooks and logs. It is never used for enforcement.
type RequestMeta struct {
	RemoteIP  string
	UserAgent string
}

// UserInfoProvider projects a user record into the payload returned by
// login and profile. The default projection is the full public record.
type UserInfoProvider interface {
	UserInfo(user *User, b *broker.Broker, meta RequestMeta) map[string]interface{}
}

// UserInfoFunc adapts a function to UserInfoProvider.
type UserInfoFunc func(user *User, b *broker.Broker, meta RequestMeta) map[string]interface{}

// UserInfo calls f.
func (f UserInfoFunc) UserInfo(user *User, b *broker.Broker, meta RequestMeta) map[string]interface{} {
	return f(user, b, meta)
}

// AfterAuthenticator can veto a login after the credentials verified, e.g.
// to restrict a broker to a subset of users.
type AfterAuthenticator interface {
	Verify(user *User, b *broker.Broker, meta RequestMeta) bool
}

// AfterAuthenticatorFunc adapts a function to AfterAuthenticator.
type AfterAuthenticatorFunc func(user *User, b *broker.Broker, meta RequestMeta) bool

// Verify calls f.
func (f AfterAuthenticatorFunc) Verify(user *User, b *broker.Broker, meta RequestMeta) bool {
	return f(user, b, meta)
}

// defaultUserInfo returns the full public user record.
func defaultUserInfo(user *User, _ *broker.Broker, _ RequestMeta) map[string]interface{} {
	return map[string]interface{}{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"full_name":  user.FullName,
		"is_active":  user.IsActive,
		"created_at": user.CreatedAt,
	}
}
