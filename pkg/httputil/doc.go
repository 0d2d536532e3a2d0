// Package httputil provides HTTP helpers shared by the SSO server and the
// broker-side handlers: JSON/JSONP encoding, the protocol's error body
// format, and bearer session id extraction.
package httputil
