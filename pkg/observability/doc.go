// Package observability provides Prometheus metrics and health probes for
// the SSO server and broker applications.
//
// Metrics cover the HTTP surface (request totals, durations) and the
// protocol itself (attach/login/profile/logout outcomes). Health probes
// expose liveness and a readiness check that pings the session store
// backends.
package observability
