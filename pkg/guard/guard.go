package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brexis/gosso/pkg/client"
)

// Payload is the user projection the SSO server returns.
type Payload map[string]interface{}

// User is the broker application's authenticated principal.
type User interface {
	// AuthID is the stable local identifier of the user.
	AuthID() string
}

// PayloadReceiver is an optional capability: user records implementing it
// receive the raw server payload after resolution.
type PayloadReceiver interface {
	SetPayload(payload Payload)
}

// UserResolver maps the server payload onto a local user record.
type UserResolver interface {
	// FindByField resolves a local user by a unique field value, e.g.
	// ("email", "admin@admin.com"). Returns nil when no user matches.
	FindByField(ctx context.Context, field, value string) (User, error)
}

// UserCreator is an optional UserResolver extension that provisions a local
// record the first time an SSO user shows up.
type UserCreator interface {
	CreateFromPayload(ctx context.Context, payload Payload) (User, error)
}

// ErrInvalidGuardConfig rejects a guard missing its client or resolver.
var ErrInvalidGuardConfig = errors.New("guard requires a client and a user resolver")

// Config wires a Guard.
type Config struct {
	Client   *client.Client
	Resolver UserResolver

	// UsernameField is the payload field users are resolved by.
	// Defaults to "email".
	UsernameField string

	// Events receives lifecycle notifications. Optional; a shared
	// dispatcher lets the application subscribe once for all scopes.
	Events *Dispatcher

	Logger *logrus.Logger
}

// Guard authenticates one request scope against the SSO server. The
// resolved user is cached for the guard's lifetime.
type Guard struct {
	client        *client.Client
	resolver      UserResolver
	usernameField string
	events        *Dispatcher
	logger        *logrus.Logger

	mu       sync.Mutex
	user     User
	resolved bool
}

// New validates the configuration and builds a Guard.
func New(cfg Config) (*Guard, error) {
	if cfg.Client == nil || cfg.Resolver == nil {
		return nil, ErrInvalidGuardConfig
	}
	if cfg.UsernameField == "" {
		cfg.UsernameField = "email"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Events == nil {
		cfg.Events = NewDispatcher(cfg.Logger)
	}

	return &Guard{
		client:        cfg.Client,
		resolver:      cfg.Resolver,
		usernameField: cfg.UsernameField,
		events:        cfg.Events,
		logger:        cfg.Logger,
	}, nil
}

// User returns the authenticated local user, resolving it through the
// server's profile endpoint on first call. An anonymous session returns
// (nil, nil).
func (g *Guard) User(ctx context.Context) (User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.resolved {
		return g.user, nil
	}

	payload, err := g.client.Profile(ctx, client.Metadata{})
	if errors.Is(err, client.ErrNotAttached) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if payload == nil {
		g.user, g.resolved = nil, true
		return nil, nil
	}

	user, err := g.resolve(ctx, payload)
	if err != nil {
		return nil, err
	}
	g.user, g.resolved = user, true

	if user != nil {
		g.events.dispatch(ctx, Event{Name: EventAuthenticated, User: user})
	}
	return user, nil
}

// Check reports whether the scope has an authenticated user.
func (g *Guard) Check(ctx context.Context) bool {
	user, err := g.User(ctx)
	return err == nil && user != nil
}

// Attempt authenticates the scope with the given credentials. Remember asks
// the server for a session that outlives the default TTL.
func (g *Guard) Attempt(ctx context.Context, credentials map[string]string, remember bool) (User, error) {
	params := make(map[string]string, len(credentials)+1)
	for key, value := range credentials {
		params[key] = value
	}
	if remember {
		params["remember"] = "1"
	}

	payload, err := g.client.Login(ctx, params, client.Metadata{})
	if errors.Is(err, client.ErrLoginFailed) {
		g.events.dispatch(ctx, Event{
			Name:        EventLoginFailed,
			Credentials: scrubCredentials(credentials),
			Remember:    remember,
		})
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	user, err := g.resolve(ctx, Payload(payload))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("no local user for sso payload")
	}

	g.mu.Lock()
	g.user, g.resolved = user, true
	g.mu.Unlock()

	scrubbed := scrubCredentials(credentials)
	g.events.dispatch(ctx, Event{Name: EventLoginSucceeded, User: user, Credentials: scrubbed, Remember: remember})
	g.events.dispatch(ctx, Event{Name: EventAuthenticated, User: user})
	return user, nil
}

// Validate reports whether the credentials authenticate, discarding the
// resolved user. The server session still transitions on success.
func (g *Guard) Validate(ctx context.Context, credentials map[string]string) bool {
	user, err := g.Attempt(ctx, credentials, false)
	return err == nil && user != nil
}

// Logout ends the server session and drops the cached user. The local cache
// clears even when the server call fails.
func (g *Guard) Logout(ctx context.Context) error {
	g.mu.Lock()
	user := g.user
	g.user, g.resolved = nil, true
	g.mu.Unlock()

	_, err := g.client.Logout(ctx, client.Metadata{})
	if err != nil && !errors.Is(err, client.ErrNotAttached) {
		return err
	}

	if user != nil {
		g.events.dispatch(ctx, Event{Name: EventLogout, User: user})
	}
	return nil
}

// resolve maps a server payload to a local user via the configured unique
// field, optionally provisioning one on first sight.
func (g *Guard) resolve(ctx context.Context, payload Payload) (User, error) {
	value, _ := payload[g.usernameField].(string)
	if value == "" {
		return nil, fmt.Errorf("sso payload has no %q field", g.usernameField)
	}

	user, err := g.resolver.FindByField(ctx, g.usernameField, value)
	if err != nil {
		return nil, fmt.Errorf("user resolution: %w", err)
	}

	if user == nil {
		creator, ok := g.resolver.(UserCreator)
		if !ok {
			return nil, nil
		}
		user, err = creator.CreateFromPayload(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("user provisioning: %w", err)
		}
	}

	if receiver, ok := user.(PayloadReceiver); ok && user != nil {
		receiver.SetPayload(payload)
	}
	return user, nil
}
