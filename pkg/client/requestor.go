package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Metadata carries informational context about the end user the broker is
// acting for. It travels as headers so the server can log it.
type Metadata struct {
	UserAgent    string
	ForwardedFor string
}

// Response is a decoded protocol response.
type Response struct {
	Status int
	Body   []byte
}

// Requestor sends signed protocol requests to the SSO server. Implementations
// must attach the bearer session id and advertise a JSON accept.
type Requestor interface {
	Request(ctx context.Context, sid, method, endpoint string, params url.Values, meta Metadata) (*Response, error)
}

// TransportError wraps a network-level failure talking to the server, as
// opposed to a protocol-level rejection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sso server unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPRequestor is the standard Requestor over net/http.
type HTTPRequestor struct {
	client *http.Client
}

// NewHTTPRequestor creates a requestor. A nil httpClient gets a 10 second
// timeout default.
func NewHTTPRequestor(httpClient *http.Client) *HTTPRequestor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRequestor{client: httpClient}
}

// Request performs one protocol call. GET parameters travel in the query
// string, everything else as a form body.
func (r *HTTPRequestor) Request(ctx context.Context, sid, method, endpoint string, params url.Values, meta Metadata) (*Response, error) {
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+sid)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if meta.UserAgent != "" {
		req.Header.Set("User-Agent", meta.UserAgent)
	}
	if meta.ForwardedFor != "" {
		req.Header.Set("X-Forwarded-For", meta.ForwardedFor)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	return &Response{Status: resp.StatusCode, Body: data}, nil
}
