package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brexis/gosso/pkg/checksum"
	"github.com/brexis/gosso/pkg/httputil"
	"github.com/brexis/gosso/pkg/session"
)

var (
	// ErrInvalidClientConfig rejects a client missing its id, secret or
	// server URL.
	ErrInvalidClientConfig = errors.New("client id, secret and server url are required")

	// ErrNotAttached means the broker holds no attached token for this scope.
	// The caller recovers by sending the browser through the attach redirect.
	ErrNotAttached = errors.New("client broker not attached to the sso server")

	// ErrLoginFailed reports rejected credentials.
	ErrLoginFailed = errors.New("authentication failed")
)

// ServerError is a protocol-level rejection from the server, carrying its
// machine-readable code.
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("sso server rejected request: %s (%s)", e.Message, e.Code)
}

// nonWord collapses to single underscores in session names.
var nonWord = regexp.MustCompile(`[_\W]+`)

// Config configures a broker-side client.
type Config struct {
	// ClientID and Secret identify this broker to the server. The server
	// must hold the same pair in its registry.
	ClientID  string
	Secret    string
	ServerURL string

	// Sessions stores the attach token per browser scope. Defaults to an
	// in-process memory store.
	Sessions session.Store

	// Requestor performs the HTTP calls. Defaults to an HTTPRequestor with
	// a 10 second timeout.
	Requestor Requestor

	// Debug surfaces transport errors instead of degrading to anonymous.
	Debug bool

	Logger *logrus.Logger
}

// Client is the broker-side protocol implementation. It is safe for
// concurrent use; per-browser isolation comes from Scope.
type Client struct {
	cfg    Config
	engine *checksum.Engine
	logger *logrus.Logger

	// tokenKey is where this scope's attach token lives in the store.
	tokenKey string
}

// New validates the configuration and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.Secret == "" || cfg.ServerURL == "" {
		return nil, ErrInvalidClientConfig
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewMemoryStore(session.DefaultTTL)
	}
	if cfg.Requestor == nil {
		cfg.Requestor = NewHTTPRequestor(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	c := &Client{
		cfg:    cfg,
		engine: checksum.NewEngine(),
		logger: cfg.Logger,
	}
	c.tokenKey = c.SessionName()
	return c, nil
}

// SessionName is the cookie/storage name for this broker's token, derived
// from the client id.
func (c *Client) SessionName() string {
	return "sso_token_" + nonWord.ReplaceAllString(strings.ToLower(c.cfg.ClientID), "_")
}

// Scope returns a copy of the client whose token storage is isolated under
// the given browser session id. The zero scope is the client itself.
func (c *Client) Scope(id string) *Client {
	if id == "" {
		return c
	}
	scoped := *c
	scoped.tokenKey = c.SessionName() + "/" + id
	return &scoped
}

// Token returns the stored attach token for this scope, or "".
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.cfg.Sessions.Get(ctx, c.tokenKey, "")
}

// EnsureToken returns the stored token, minting and storing a fresh one
// when the scope has none yet.
func (c *Client) EnsureToken(ctx context.Context) (string, error) {
	token, err := c.Token(ctx)
	if err != nil || token != "" {
		return token, err
	}

	token, err = c.engine.RandomToken()
	if err != nil {
		return "", err
	}
	if err := c.cfg.Sessions.Set(ctx, c.tokenKey, token, false); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// ClearToken forgets the scope's token, forcing a fresh attach.
func (c *Client) ClearToken(ctx context.Context) error {
	return c.cfg.Sessions.Forget(ctx, c.tokenKey)
}

// IsAttached reports whether this scope holds an attach token.
func (c *Client) IsAttached(ctx context.Context) bool {
	token, err := c.Token(ctx)
	return err == nil && token != ""
}

// SessionID derives the bearer session id for a token.
func (c *Client) SessionID(token string) string {
	return c.engine.SessionID(c.cfg.ClientID, token, c.cfg.Secret)
}

// AttachURL builds the absolute server attach URL for a token. Extra
// parameters (return_url, callback) are passed through; they cannot override
// the protocol fields.
func (c *Client) AttachURL(token string, extra url.Values) string {
	params := url.Values{
		"broker":   {c.cfg.ClientID},
		"token":    {token},
		"checksum": {c.engine.Generate(checksum.PurposeAttach, token, c.cfg.Secret)},
	}
	for key, values := range extra {
		if params.Get(key) == "" {
			params[key] = values
		}
	}
	return strings.TrimRight(c.cfg.ServerURL, "/") + "/attach?" + params.Encode()
}

// Login authenticates this scope's session with the given credentials and
// returns the server's user projection. Rejected credentials return
// ErrLoginFailed; an unattached scope returns ErrNotAttached.
func (c *Client) Login(ctx context.Context, credentials map[string]string, meta Metadata) (map[string]interface{}, error) {
	sid, err := c.sessionID(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	for key, value := range credentials {
		params.Set(key, value)
	}

	resp, err := c.request(ctx, sid, http.MethodPost, "/login", params, meta)
	if err != nil || resp == nil {
		if err == nil {
			err = ErrLoginFailed
		}
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		return nil, ErrLoginFailed
	}
	if err := c.serverError(ctx, resp); err != nil {
		return nil, err
	}

	var body struct {
		User map[string]interface{} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("malformed login response: %w", err)
	}
	return body.User, nil
}

// Profile returns the authenticated user behind this scope's session, or
// (nil, nil) when the session is anonymous.
func (c *Client) Profile(ctx context.Context, meta Metadata) (map[string]interface{}, error) {
	sid, err := c.sessionID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.request(ctx, sid, http.MethodGet, "/profile", nil, meta)
	if err != nil || resp == nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		return nil, nil
	}
	if err := c.serverError(ctx, resp); err != nil {
		return nil, err
	}

	var user map[string]interface{}
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, fmt.Errorf("malformed profile response: %w", err)
	}
	return user, nil
}

// Logout ends the authenticated session server-side. The attach token
// survives, so the scope stays attached.
func (c *Client) Logout(ctx context.Context, meta Metadata) (bool, error) {
	sid, err := c.sessionID(ctx)
	if err != nil {
		return false, err
	}

	resp, err := c.request(ctx, sid, http.MethodPost, "/logout", nil, meta)
	if err != nil || resp == nil {
		return false, err
	}
	if err := c.serverError(ctx, resp); err != nil {
		return false, err
	}
	return true, nil
}

// sessionID resolves the bearer id for this scope's stored token.
func (c *Client) sessionID(ctx context.Context) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNotAttached
	}
	return c.SessionID(token), nil
}

// request calls the server, degrading transport failures to a nil response
// unless debug mode surfaces them.
func (c *Client) request(ctx context.Context, sid, method, path string, params url.Values, meta Metadata) (*Response, error) {
	endpoint := strings.TrimRight(c.cfg.ServerURL, "/") + path
	resp, err := c.cfg.Requestor.Request(ctx, sid, method, endpoint, params, meta)
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) && !c.cfg.Debug {
			c.logger.WithError(err).WithField("endpoint", path).Warn("sso server unreachable")
			return nil, nil
		}
		return nil, err
	}
	return resp, nil
}

// serverError maps a non-2xx protocol response onto a typed error. A
// not_attached rejection also drops the local token so the next request
// re-attaches.
func (c *Client) serverError(ctx context.Context, resp *Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}

	var body httputil.ErrorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return &ServerError{Status: resp.Status, Code: "unknown", Message: string(resp.Body)}
	}

	if body.Code == "not_attached" {
		if err := c.ClearToken(ctx); err != nil {
			c.logger.WithError(err).Warn("failed to clear stale token")
		}
		return ErrNotAttached
	}
	return &ServerError{Status: resp.Status, Code: body.Code, Message: body.Message}
}
