package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brexis/gosso/pkg/checksum"
	"github.com/brexis/gosso/pkg/httputil"
	"github.com/brexis/gosso/pkg/observability"
)

func testRouter(t *testing.T) (*mux.Router, *Protocol) {
	t.Helper()

	p, _, _ := testProtocol(t, Config{})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handlers := NewHandlers(p, quietLogger(), metrics)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router, p
}

func attachQuery() url.Values {
	engine := checksum.NewEngine()
	return url.Values{
		"broker":   {testBrokerID},
		"token":    {testToken},
		"checksum": {engine.Generate(checksum.PurposeAttach, testToken, testSecret)},
	}
}

func attachedSessionID(t *testing.T, p *Protocol) string {
	t.Helper()

	sid, err := p.Attach(context.Background(), attachRequest())
	require.NoError(t, err)
	return sid
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAttachEndpointJSON(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest("GET", "/attach?"+attachQuery().Encode(), nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":"attached"}`, rec.Body.String())
}

func TestAttachEndpointRedirect(t *testing.T) {
	router, _ := testRouter(t)

	query := attachQuery()
	query.Set("return_url", "https://broker.example.com/after")
	req := httptest.NewRequest("GET", "/attach?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://broker.example.com/after", rec.Header().Get("Location"))
}

func TestAttachEndpointJSONP(t *testing.T) {
	router, _ := testRouter(t)

	query := attachQuery()
	query.Set("callback", "cb")
	req := httptest.NewRequest("GET", "/attach?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Equal(t, `cb({"success":"attached"}, 200)`, rec.Body.String())
}

func TestAttachEndpointImage(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest("GET", "/attach?"+attachQuery().Encode(), nil)
	req.Header.Set("Accept", "image/png")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())
}

func TestAttachEndpointNoReturnChannel(t *testing.T) {
	router, _ := testRouter(t)

	// Browser-style wildcard accept is not an explicit channel.
	req := httptest.NewRequest("GET", "/attach?"+attachQuery().Encode(), nil)
	req.Header.Set("Accept", "text/html,*/*")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["code"])
}

func TestAttachEndpointErrors(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(url.Values)
		status   int
		wantCode string
	}{
		{
			name:     "missing token",
			mutate:   func(q url.Values) { q.Del("token") },
			status:   http.StatusBadRequest,
			wantCode: "invalid_request",
		},
		{
			name:     "unknown broker",
			mutate:   func(q url.Values) { q.Set("broker", "ghost") },
			status:   http.StatusForbidden,
			wantCode: "invalid_client_id",
		},
		{
			name:     "bad checksum",
			mutate:   func(q url.Values) { q.Set("checksum", "deadbeef") },
			status:   http.StatusBadRequest,
			wantCode: "invalid_checksum",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := testRouter(t)

			query := attachQuery()
			tc.mutate(query)
			req := httptest.NewRequest("GET", "/attach?"+query.Encode(), nil)
			req.Header.Set("Accept", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.wantCode, decodeBody(t, rec)["code"])
		})
	}
}

func loginForm(sid string) *http.Request {
	form := url.Values{
		"email":    {"admin@admin.com"},
		"password": {testPassword},
	}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+sid)
	return req
}

func TestLoginEndpoint(t *testing.T) {
	router, p := testRouter(t)
	sid := attachedSessionID(t, p)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, loginForm(sid))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "admin@admin.com", user["email"])
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	router, p := testRouter(t)
	sid := attachedSessionID(t, p)

	form := url.Values{
		"email":    {"admin@admin.com"},
		"password": {"wrong"},
	}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+sid)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestLoginEndpointNotAttached(t *testing.T) {
	router, _ := testRouter(t)

	engine := checksum.NewEngine()
	sid := engine.SessionID(testBrokerID, testToken, testSecret)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, loginForm(sid))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_attached", decodeBody(t, rec)["code"])
}

func TestLoginEndpointSessionIDFromForm(t *testing.T) {
	router, p := testRouter(t)
	sid := attachedSessionID(t, p)

	// No Authorization header; the id rides in the form instead and must
	// not leak into the credential map.
	form := url.Values{
		"access_token": {sid},
		"email":        {"admin@admin.com"},
		"password":     {testPassword},
	}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileEndpoint(t *testing.T) {
	router, p := testRouter(t)
	sid := attachedSessionID(t, p)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, loginForm(sid))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest("GET", "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+sid)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decodeBody(t, rec)["username"])
}

func TestProfileEndpointUnauthorized(t *testing.T) {
	router, p := testRouter(t)
	sid := attachedSessionID(t, p)

	req := httptest.NewRequest("GET", "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+sid)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"code":"unauthorized","message":"Unauthorized"}`, rec.Body.String())
}

func TestLogoutEndpoint(t *testing.T) {
	router, p := testRouter(t)
	sid := attachedSessionID(t, p)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, loginForm(sid))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest("POST", "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+sid)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	// Profile is gone after logout.
	req = httptest.NewRequest("GET", "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+sid)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpointTamperedSession(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest("POST", "/logout", nil)
	req.Header.Set("Authorization", "Bearer SSO-appid-tok123-"+strings.Repeat("0", 64))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid_session_id", decodeBody(t, rec)["code"])
}

func TestLoginCredentialsExcludeTransportParams(t *testing.T) {
	form := url.Values{
		"access_token": {"SSO-a-b-c"},
		"sso_session":  {"SSO-a-b-c"},
		"remember":     {"true"},
		"email":        {"admin@admin.com"},
		"password":     {"pw"},
	}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	credentials := loginCredentials(req)
	assert.Equal(t, map[string]string{
		"email":    "admin@admin.com",
		"password": "pw",
	}, credentials)
	assert.Equal(t, "SSO-a-b-c", httputil.BearerSessionID(req))
}
