package guard

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brexis/gosso/pkg/broker"
	"github.com/brexis/gosso/pkg/client"
	"github.com/brexis/gosso/pkg/server"
	"github.com/brexis/gosso/pkg/session"
)

const testPassword = "secret"

type serverUsers struct{}

func (serverUsers) FindByCredentials(ctx context.Context, credentials map[string]string) (*server.User, error) {
	if credentials["email"] == "admin@admin.com" && credentials["password"] == testPassword {
		return &server.User{ID: 1, Username: "admin", Email: "admin@admin.com", IsActive: true}, nil
	}
	return nil, nil
}

func (serverUsers) FindByField(ctx context.Context, field, value string) (*server.User, error) {
	if field == "email" && value == "admin@admin.com" {
		return &server.User{ID: 1, Username: "admin", Email: "admin@admin.com", IsActive: true}, nil
	}
	return nil, nil
}

// localUser is the broker application's own user record.
type localUser struct {
	id      string
	email   string
	payload Payload
}

func (u *localUser) AuthID() string       { return u.id }
func (u *localUser) SetPayload(p Payload) { u.payload = p }

// memResolver resolves local users by email, optionally provisioning them.
type memResolver struct {
	users     map[string]*localUser
	provision bool

	lookups int
	created int
}

func (r *memResolver) FindByField(ctx context.Context, field, value string) (User, error) {
	r.lookups++
	if field != "email" {
		return nil, nil
	}
	u, ok := r.users[value]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (r *memResolver) CreateFromPayload(ctx context.Context, payload Payload) (User, error) {
	if !r.provision {
		return nil, nil
	}
	email, _ := payload["email"].(string)
	u := &localUser{id: "prov-" + email, email: email}
	r.users[email] = u
	r.created++
	return u, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixture runs a real protocol server and returns an attached client.
func fixture(t *testing.T) *client.Client {
	t.Helper()

	p, err := server.NewProtocol(server.Config{
		Brokers:  broker.NewStaticStore([]broker.Broker{{ID: "appid", Secret: "SeCrEt"}}),
		Sessions: session.NewMemoryStore(0),
		Users:    serverUsers{},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	router := mux.NewRouter()
	server.NewHandlers(p, quietLogger(), nil).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{
		ClientID:  "appid",
		Secret:    "SeCrEt",
		ServerURL: srv.URL,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	token, err := c.EnsureToken(ctx)
	require.NoError(t, err)

	req, err := http.NewRequest("GET", c.AttachURL(token, nil), nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return c
}

func testGuard(t *testing.T, c *client.Client, resolver UserResolver) (*Guard, *Dispatcher) {
	t.Helper()

	events := NewDispatcher(quietLogger())
	g, err := New(Config{
		Client:   c,
		Resolver: resolver,
		Events:   events,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	return g, events
}

func adminResolver() *memResolver {
	return &memResolver{users: map[string]*localUser{
		"admin@admin.com": {id: "42", email: "admin@admin.com"},
	}}
}

func record(events *Dispatcher) *[]Event {
	var seen []Event
	events.Subscribe(func(ctx context.Context, e Event) {
		seen = append(seen, e)
	})
	return &seen
}

func TestNewRequiresClientAndResolver(t *testing.T) {
	_, err := New(Config{})
	assert.Equal(t, ErrInvalidGuardConfig, err)
}

func TestAttempt(t *testing.T) {
	g, events := testGuard(t, fixture(t), adminResolver())
	seen := record(events)

	user, err := g.Attempt(context.Background(), map[string]string{
		"email":    "admin@admin.com",
		"password": testPassword,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "42", user.AuthID())
	assert.True(t, g.Check(context.Background()))

	require.Len(t, *seen, 2)
	assert.Equal(t, EventLoginSucceeded, (*seen)[0].Name)
	assert.Equal(t, EventAuthenticated, (*seen)[1].Name)

	// Passwords never reach listeners.
	_, hasPassword := (*seen)[0].Credentials["password"]
	assert.False(t, hasPassword)
	assert.Equal(t, "admin@admin.com", (*seen)[0].Credentials["email"])
}

func TestAttemptRejected(t *testing.T) {
	g, events := testGuard(t, fixture(t), adminResolver())
	seen := record(events)

	_, err := g.Attempt(context.Background(), map[string]string{
		"email":    "admin@admin.com",
		"password": "wrong",
	}, false)
	assert.Equal(t, client.ErrLoginFailed, err)
	assert.False(t, g.Check(context.Background()))

	require.Len(t, *seen, 1)
	assert.Equal(t, EventLoginFailed, (*seen)[0].Name)
	_, hasPassword := (*seen)[0].Credentials["password"]
	assert.False(t, hasPassword)
}

func TestUserIsLazyAndCached(t *testing.T) {
	c := fixture(t)
	resolver := adminResolver()

	login, _ := testGuard(t, c, resolver)
	_, err := login.Attempt(context.Background(), map[string]string{
		"email":    "admin@admin.com",
		"password": testPassword,
	}, false)
	require.NoError(t, err)
	lookupsAfterLogin := resolver.lookups

	// A fresh guard over the same scope resolves through /profile once.
	g, events := testGuard(t, c, resolver)
	seen := record(events)

	user, err := g.User(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "42", user.AuthID())

	again, err := g.User(context.Background())
	require.NoError(t, err)
	assert.Same(t, user.(*localUser), again.(*localUser))
	assert.Equal(t, lookupsAfterLogin+1, resolver.lookups)

	require.Len(t, *seen, 1)
	assert.Equal(t, EventAuthenticated, (*seen)[0].Name)
}

func TestUserAnonymous(t *testing.T) {
	g, _ := testGuard(t, fixture(t), adminResolver())

	user, err := g.User(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.False(t, g.Check(context.Background()))
}

func TestLogout(t *testing.T) {
	g, events := testGuard(t, fixture(t), adminResolver())
	ctx := context.Background()

	_, err := g.Attempt(ctx, map[string]string{
		"email":    "admin@admin.com",
		"password": testPassword,
	}, false)
	require.NoError(t, err)
	seen := record(events)

	require.NoError(t, g.Logout(ctx))
	assert.False(t, g.Check(ctx))

	require.Len(t, *seen, 1)
	assert.Equal(t, EventLogout, (*seen)[0].Name)
	assert.Equal(t, "42", (*seen)[0].User.AuthID())
}

func TestCreateOnFirstSight(t *testing.T) {
	resolver := &memResolver{users: map[string]*localUser{}, provision: true}
	g, _ := testGuard(t, fixture(t), resolver)

	user, err := g.Attempt(context.Background(), map[string]string{
		"email":    "admin@admin.com",
		"password": testPassword,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "prov-admin@admin.com", user.AuthID())
	assert.Equal(t, 1, resolver.created)
}

func TestPayloadReceiver(t *testing.T) {
	resolver := adminResolver()
	g, _ := testGuard(t, fixture(t), resolver)

	user, err := g.Attempt(context.Background(), map[string]string{
		"email":    "admin@admin.com",
		"password": testPassword,
	}, false)
	require.NoError(t, err)

	payload := user.(*localUser).payload
	require.NotNil(t, payload)
	assert.Equal(t, "admin", payload["username"])
}

func TestValidate(t *testing.T) {
	g, _ := testGuard(t, fixture(t), adminResolver())
	ctx := context.Background()

	assert.False(t, g.Validate(ctx, map[string]string{
		"email":    "admin@admin.com",
		"password": "wrong",
	}))
	assert.True(t, g.Validate(ctx, map[string]string{
		"email":    "admin@admin.com",
		"password": testPassword,
	}))
}

func TestListenerPanicIsContained(t *testing.T) {
	g, events := testGuard(t, fixture(t), adminResolver())
	events.Subscribe(func(ctx context.Context, e Event) {
		panic("listener bug")
	})
	seen := record(events)

	user, err := g.Attempt(context.Background(), map[string]string{
		"email":    "admin@admin.com",
		"password": testPassword,
	}, false)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Len(t, *seen, 2)
}
