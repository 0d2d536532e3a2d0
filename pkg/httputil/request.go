package httputil

import (
	"net"
	"net/http"
	"strings"
)

// BearerSessionID extracts the broker session id from a request, trying the
// Authorization header first, then the access_token and sso_session
// form/query parameters. Returns "" when none is present.
func BearerSessionID(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	if token := r.FormValue("access_token"); token != "" {
		return token
	}
	return r.FormValue("sso_session")
}

// RemoteIP returns the originating client IP, honoring X-Forwarded-For set
// by the broker or a proxy. Informational only; never used as a security
// boundary.
func RemoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AcceptsJSON reports whether the request explicitly advertises a JSON
// response. Wildcard accepts do not count; attach uses this as the return
// channel of last resort and needs a deliberate signal.
func AcceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// AcceptsImage reports whether the request advertises an image response.
func AcceptsImage(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "image/")
}
