package main

import (
	"context"
	"flag"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/brexis/gosso/pkg/client"
	"github.com/brexis/gosso/pkg/config"
	"github.com/brexis/gosso/pkg/guard"
	"github.com/brexis/gosso/pkg/httputil"
)

// scopeCookie carries the per-browser scope id that isolates SSO tokens.
const scopeCookie = "gosso_broker_scope"

// localUser is this demo application's user record, provisioned on first
// sight from the SSO payload.
type localUser struct {
	id      string
	email   string
	payload guard.Payload
}

func (u *localUser) AuthID() string             { return u.id }
func (u *localUser) SetPayload(p guard.Payload) { u.payload = p }

// memoryResolver provisions local users as SSO users show up.
type memoryResolver struct {
	mu    sync.Mutex
	users map[string]*localUser
}

func newMemoryResolver() *memoryResolver {
	return &memoryResolver{users: make(map[string]*localUser)}
}

func (r *memoryResolver) FindByField(ctx context.Context, field, value string) (guard.User, error) {
	if field != "email" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[value]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (r *memoryResolver) CreateFromPayload(ctx context.Context, payload guard.Payload) (guard.User, error) {
	email, _ := payload["email"].(string)
	if email == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u := &localUser{id: uuid.NewString(), email: email}
	r.users[email] = u
	return u, nil
}

// app holds the broker application's shared pieces.
type app struct {
	sso      *client.Client
	resolver *memoryResolver
	events   *guard.Dispatcher
	logger   *logrus.Logger
}

// scopeID extracts the browser scope id, minting a cookie when the browser
// has none yet.
func (a *app) scopeID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(scopeCookie)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     scopeCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return id
}

// scope returns the request's guard over the scoped client.
func (a *app) scope(w http.ResponseWriter, r *http.Request) (*guard.Guard, error) {
	return guard.New(guard.Config{
		Client:   a.sso.Scope(a.scopeID(w, r)),
		Resolver: a.resolver,
		Events:   a.events,
		Logger:   a.logger,
	})
}

func (a *app) attach(w http.ResponseWriter, r *http.Request) {
	a.sso.Scope(a.scopeID(w, r)).AttachHandler("/profile").ServeHTTP(w, r)
}

func (a *app) login(w http.ResponseWriter, r *http.Request) {
	g, err := a.scope(w, r)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	user, err := g.Attempt(r.Context(), map[string]string{
		"email":    r.FormValue("email"),
		"password": r.FormValue("password"),
	}, r.FormValue("remember") == "1")
	switch err {
	case nil:
	case client.ErrLoginFailed:
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false})
		return
	case client.ErrNotAttached:
		http.Redirect(w, r, "/attach?return_url=/profile", http.StatusFound)
		return
	default:
		a.logger.WithError(err).Error("login failed")
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"success": true, "id": user.AuthID()})
}

func (a *app) profile(w http.ResponseWriter, r *http.Request) {
	g, err := a.scope(w, r)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	user, err := g.User(r.Context())
	if err != nil {
		a.logger.WithError(err).Error("profile resolution failed")
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if user == nil {
		httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	local := user.(*localUser)
	httputil.WriteSuccess(w, map[string]interface{}{
		"id":      local.id,
		"email":   local.email,
		"payload": local.payload,
	})
}

func (a *app) logout(w http.ResponseWriter, r *http.Request) {
	g, err := a.scope(w, r)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	if err := g.Logout(r.Context()); err != nil {
		a.logger.WithError(err).Error("logout failed")
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"success": true})
}

func main() {
	port := flag.String("port", "8081", "Port to listen on")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	logger.SetLevel(cfg.Observability.LogLevel)

	sso, err := client.New(client.Config{
		ClientID:  cfg.Client.ID,
		Secret:    cfg.Client.Secret,
		ServerURL: cfg.Client.ServerURL,
		Debug:     cfg.Client.Debug,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to configure sso client")
	}

	events := guard.NewDispatcher(logger)
	events.Subscribe(func(ctx context.Context, e guard.Event) {
		entry := logger.WithField("event", e.Name)
		if e.User != nil {
			entry = entry.WithField("user", e.User.AuthID())
		}
		entry.Info("guard event")
	})

	a := &app{
		sso:      sso,
		resolver: newMemoryResolver(),
		events:   events,
		logger:   logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/attach", a.attach).Methods("GET")
	router.HandleFunc("/login", a.login).Methods("POST")
	router.HandleFunc("/profile", a.profile).Methods("GET")
	router.HandleFunc("/logout", a.logout).Methods("POST")

	logger.WithField("port", *port).Info("broker application listening")
	if err := http.ListenAndServe(":"+*port, router); err != nil {
		logger.WithError(err).Fatal("broker application exited")
	}
}
