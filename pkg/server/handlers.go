package server

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/brexis/gosso/pkg/httputil"
	"github.com/brexis/gosso/pkg/observability"
)

// attachPixel is the 1x1 transparent PNG served on image-channel attaches,
// so a broker can attach via a hidden <img> tag across origins.
var attachPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABAQMAAAAl21bKAAAAA1BMVEUAAACnej3aAAAAAXRSTlM" +
		"AQObYZgAAAApJREFUCNdjYAAAAAIAAeIhvDMAAAAASUVORK5CYII=")

// returnChannel is how an attach responds to the browser.
type returnChannel int

const (
	channelNone returnChannel = iota
	channelRedirect
	channelJSONP
	channelImage
	channelJSON
)

// Handlers exposes the protocol over HTTP.
type Handlers struct {
	protocol *Protocol
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// NewHandlers creates the HTTP layer over a protocol instance. Logger and
// metrics may be nil.
func NewHandlers(protocol *Protocol, logger *logrus.Logger, metrics *observability.Metrics) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handlers{protocol: protocol, logger: logger, metrics: metrics}
}

// RegisterRoutes registers the SSO server endpoints.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/attach", h.attach).Methods("GET", "POST")
	router.HandleFunc("/login", h.login).Methods("POST")
	router.HandleFunc("/profile", h.profile).Methods("GET")
	router.HandleFunc("/logout", h.logout).Methods("POST")
}

// attach handles GET|POST /attach
func (h *Handlers) attach(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := AttachRequest{
		BrokerID: r.FormValue("broker"),
		Token:    r.FormValue("token"),
		Checksum: r.FormValue("checksum"),
	}
	if req.BrokerID == "" || req.Token == "" || req.Checksum == "" {
		h.writeError(w, "attach", ErrMissingFields, start)
		return
	}

	channel := detectReturnChannel(r)
	if channel == channelNone {
		h.writeError(w, "attach", ErrNoReturnChannel, start)
		return
	}

	if _, err := h.protocol.Attach(r.Context(), req); err != nil {
		h.writeError(w, "attach", err, start)
		return
	}

	h.observe("attach", "success", start)
	if h.metrics != nil {
		h.metrics.SessionsAttached.Inc()
	}

	switch channel {
	case channelRedirect:
		http.Redirect(w, r, r.FormValue("return_url"), http.StatusFound)
	case channelJSONP:
		httputil.WriteJSONP(w, r.FormValue("callback"), http.StatusOK,
			map[string]string{"success": "attached"})
	case channelImage:
		w.Header().Set("Content-Type", "image/png")
		w.Write(attachPixel)
	default:
		httputil.WriteSuccess(w, map[string]string{"success": "attached"})
	}
}

// login handles POST /login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	sid := httputil.BearerSessionID(r)
	req := LoginRequest{
		Credentials: loginCredentials(r),
		Remember:    r.FormValue("remember") == "true" || r.FormValue("remember") == "1",
	}

	info, err := h.protocol.Login(r.Context(), sid, req, requestMeta(r))
	if err == ErrAuthenticationFailed {
		h.observe("login", "unauthorized", start)
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false})
		return
	}
	if err != nil {
		h.writeError(w, "login", err, start)
		return
	}

	h.observe("login", "success", start)
	if h.metrics != nil {
		h.metrics.SessionsAuthenticated.Inc()
	}
	httputil.WriteSuccess(w, map[string]interface{}{"success": true, "user": info})
}

// profile handles GET /profile
func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	info, err := h.protocol.Profile(r.Context(), httputil.BearerSessionID(r), requestMeta(r))
	if err != nil {
		h.writeError(w, "profile", err, start)
		return
	}

	h.observe("profile", "success", start)
	httputil.WriteSuccess(w, info)
}

// logout handles POST /logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := h.protocol.Logout(r.Context(), httputil.BearerSessionID(r)); err != nil {
		h.writeError(w, "logout", err, start)
		return
	}

	h.observe("logout", "success", start)
	httputil.WriteSuccess(w, map[string]interface{}{"success": true})
}

// writeError maps protocol errors onto the wire format. Anything that is
// not a ProtocolError is an internal failure and deliberately opaque.
func (h *Handlers) writeError(w http.ResponseWriter, operation string, err error, start time.Time) {
	if perr, ok := AsProtocolError(err); ok {
		h.observe(operation, perr.Code, start)
		httputil.WriteErrorCode(w, perr.Status, perr.Code, perr.Message)
		return
	}

	h.observe(operation, "internal_error", start)
	h.logger.WithError(err).WithField("operation", operation).Error("protocol operation failed")
	httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func (h *Handlers) observe(operation, outcome string, start time.Time) {
	h.metrics.ObserveOperation(operation, outcome, time.Since(start))
}

// detectReturnChannel picks how attach responds: explicit return URL, then
// JSONP callback, then image, then an explicit JSON accept. No channel
// means the attach is rejected.
func detectReturnChannel(r *http.Request) returnChannel {
	switch {
	case r.FormValue("return_url") != "":
		return channelRedirect
	case r.FormValue("callback") != "":
		return channelJSONP
	case httputil.AcceptsImage(r):
		return channelImage
	case httputil.AcceptsJSON(r):
		return channelJSON
	default:
		return channelNone
	}
}

// loginCredentials collects the submitted credential fields, leaving out
// the transport parameters that ride in the same form.
func loginCredentials(r *http.Request) map[string]string {
	r.ParseForm()

	credentials := make(map[string]string, len(r.Form))
	for key, values := range r.Form {
		switch key {
		case "access_token", "sso_session", "remember":
			continue
		}
		if len(values) > 0 {
			credentials[key] = values[0]
		}
	}
	return credentials
}

func requestMeta(r *http.Request) RequestMeta {
	return RequestMeta{
		RemoteIP:  httputil.RemoteIP(r),
		UserAgent: r.UserAgent(),
	}
}
