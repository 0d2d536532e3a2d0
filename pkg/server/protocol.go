package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brexis/gosso/pkg/broker"
	"github.com/brexis/gosso/pkg/checksum"
	"github.com/brexis/gosso/pkg/session"
)

// emptyPayload marks a session as attached with no authenticated user.
const emptyPayload = "{}"

// Protocol implements the server-side state machine. All state lives in the
// injected session store; Protocol itself is immutable after construction
// and safe for concurrent use.
type Protocol struct {
	brokers       broker.Store
	sessions      session.Store
	users         UserProvider
	engine        *checksum.Engine
	userInfo      UserInfoProvider
	verifier      AfterAuthenticator
	usernameField string
	logger        *logrus.Logger
}

// Config wires the protocol's collaborators. Brokers, Sessions and Users
// are required.
type Config struct {
	Brokers  broker.Store
	Sessions session.Store
	Users    UserProvider

	// UsernameField is the unique field logins key on. Defaults to "email";
	// a login request may override it per request via its "login" field.
	UsernameField string

	// UserInfo overrides the projection returned by login and profile.
	UserInfo UserInfoProvider

	// Verifier can veto logins after credential verification.
	Verifier AfterAuthenticator

	Logger *logrus.Logger
}

// NewProtocol validates the configuration and builds a Protocol.
func NewProtocol(cfg Config) (*Protocol, error) {
	if cfg.Brokers == nil {
		return nil, fmt.Errorf("broker store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user provider is required")
	}
	if cfg.UsernameField == "" {
		cfg.UsernameField = "email"
	}
	if cfg.UserInfo == nil {
		cfg.UserInfo = UserInfoFunc(defaultUserInfo)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Protocol{
		brokers:       cfg.Brokers,
		sessions:      cfg.Sessions,
		users:         cfg.Users,
		engine:        checksum.NewEngine(),
		userInfo:      cfg.UserInfo,
		verifier:      cfg.Verifier,
		usernameField: cfg.UsernameField,
		logger:        cfg.Logger,
	}, nil
}

// AttachRequest carries the three required attach fields.
type AttachRequest struct {
	BrokerID string
	Token    string
	Checksum string
}

// Attach validates the attach checksum and binds the derived session id to
// an empty payload. Re-attaching the same token overwrites the record with
// the same empty payload, so the operation is idempotent.
func (p *Protocol) Attach(ctx context.Context, req AttachRequest) (string, error) {
	if req.BrokerID == "" || req.Token == "" || req.Checksum == "" {
		return "", ErrMissingFields
	}

	b, err := p.brokers.FindByID(ctx, req.BrokerID)
	if errors.Is(err, broker.ErrUnknownBroker) {
		return "", ErrUnknownBroker
	}
	if err != nil {
		return "", fmt.Errorf("broker lookup: %w", err)
	}

	if !p.engine.VerifyAttach(req.Token, b.Secret, req.Checksum) {
		return "", ErrInvalidChecksum
	}

	sid := p.engine.SessionID(b.ID, req.Token, b.Secret)
	if err := p.sessions.Set(ctx, sid, emptyPayload, false); err != nil {
		return "", fmt.Errorf("failed to bind session: %w", err)
	}

	p.logger.WithField("broker", b.ID).Debug("broker session attached")
	return sid, nil
}

// LoginRequest carries the credentials submitted to Login. Remember asks
// for a session that outlives the configured TTL.
type LoginRequest struct {
	Credentials map[string]string
	Remember    bool
}

// Login authenticates the session id's user. The id's embedded checksum is
// validated against the broker's current secret before any state or
// credential check. On success the session payload transitions to the
// authenticated user's unique field and the user-info projection is
// returned.
func (p *Protocol) Login(ctx context.Context, sid string, req LoginRequest, meta RequestMeta) (map[string]interface{}, error) {
	b, err := p.validateSessionID(ctx, sid)
	if err != nil {
		return nil, err
	}

	payload, err := p.sessions.Get(ctx, sid, "")
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if payload == "" {
		return nil, ErrNotAttached
	}

	field := p.loginField(req.Credentials)
	user, err := p.users.FindByCredentials(ctx, req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("credential verification: %w", err)
	}
	if user != nil && p.verifier != nil && !p.verifier.Verify(user, b, meta) {
		user = nil
	}
	if user == nil {
		p.logger.WithFields(logrus.Fields{
			"broker":     b.ID,
			"remote_ip":  meta.RemoteIP,
			"user_agent": meta.UserAgent,
		}).Warn("login rejected")
		return nil, ErrAuthenticationFailed
	}

	attrs := map[string]string{field: req.Credentials[field]}
	serialized, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session payload: %w", err)
	}
	if err := p.sessions.Set(ctx, sid, string(serialized), req.Remember); err != nil {
		return nil, fmt.Errorf("failed to store session payload: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"broker":    b.ID,
		"user":      user.Username,
		"remote_ip": meta.RemoteIP,
	}).Info("user authenticated")

	return p.userInfo.UserInfo(user, b, meta), nil
}

// Profile returns the user-info projection for an authenticated session.
func (p *Protocol) Profile(ctx context.Context, sid string, meta RequestMeta) (map[string]interface{}, error) {
	b, err := p.validateSessionID(ctx, sid)
	if err != nil {
		return nil, err
	}

	user, err := p.sessionUser(ctx, sid)
	if err != nil {
		return nil, err
	}

	return p.userInfo.UserInfo(user, b, meta), nil
}

// Logout clears the session payload back to empty. It is idempotent and
// succeeds whether or not the session ever authenticated. A session with no
// attach record is left absent rather than resurrected.
func (p *Protocol) Logout(ctx context.Context, sid string) error {
	if _, err := p.validateSessionID(ctx, sid); err != nil {
		return err
	}

	payload, err := p.sessions.Get(ctx, sid, "")
	if err != nil {
		return fmt.Errorf("session lookup: %w", err)
	}
	if payload == "" {
		return nil
	}

	if err := p.sessions.Set(ctx, sid, emptyPayload, false); err != nil {
		return fmt.Errorf("failed to clear session payload: %w", err)
	}
	return nil
}

// validateSessionID proves a bearer credential authentic before any state
// derived from it is trusted. Checksum validation always precedes payload
// state checks.
func (p *Protocol) validateSessionID(ctx context.Context, sid string) (*broker.Broker, error) {
	brokerID, token, err := checksum.ParseSessionID(sid)
	if err != nil {
		return nil, ErrInvalidSessionID
	}

	b, err := p.brokers.FindByID(ctx, brokerID)
	if errors.Is(err, broker.ErrUnknownBroker) {
		return nil, ErrUnknownBroker
	}
	if err != nil {
		return nil, fmt.Errorf("broker lookup: %w", err)
	}

	if p.engine.SessionID(b.ID, token, b.Secret) != sid {
		return nil, ErrInvalidSessionID
	}

	return b, nil
}

// sessionUser resolves the authenticated user behind a session payload.
func (p *Protocol) sessionUser(ctx context.Context, sid string) (*User, error) {
	payload, err := p.sessions.Get(ctx, sid, "")
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if payload == "" || payload == emptyPayload {
		return nil, ErrUnauthorized
	}

	var attrs map[string]string
	if err := json.Unmarshal([]byte(payload), &attrs); err != nil || len(attrs) == 0 {
		return nil, ErrUnauthorized
	}

	for field, value := range attrs {
		user, err := p.users.FindByField(ctx, field, value)
		if err != nil {
			return nil, fmt.Errorf("user lookup: %w", err)
		}
		if user != nil {
			return user, nil
		}
	}

	return nil, ErrUnauthorized
}

// loginField returns the unique field this login keys on. A request may
// name its own field through the "login" credential.
func (p *Protocol) loginField(credentials map[string]string) string {
	if field := credentials["login"]; field != "" {
		return field
	}
	return p.usernameField
}
