package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmmetz/hn-tools/hn"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, raw string) (*oidc.IDToken, error) {
	if raw != "good-token" {
		return nil, errors.New("bad token")
	}
	return &oidc.IDToken{Subject: "user-1"}, nil
}

func do(t *testing.T, h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result {
	t.Helper()
	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Content, 1)
	return res
}

func TestServerToolRoutes(t *testing.T) {
	hs := newHarness(t)
	hs.backend.set(t, "/v0/item/1.json", hn.Item{ID: 1, Type: "story", Title: "one"})
	h := NewServer(hs.registry, hs.events, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/tools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	var catalogue struct {
		Tools []Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalogue))
	assert.Len(t, catalogue.Tools, len(hs.registry.Tools()))

	rec = do(t, h, http.MethodPost, "/api/tools/hn_get_item", `{"id":1}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
	res := decodeResult(t, rec)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, `"title": "one"`)

	// Tool failures still answer 200.
	rec = do(t, h, http.MethodPost, "/api/tools/hn_get_item", `{"id":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeResult(t, rec)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, `"error": "NOT_FOUND"`)

	// An empty body means no arguments.
	rec = do(t, h, http.MethodPost, "/api/tools/hn_auth_status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeResult(t, rec)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, `"loggedIn": false`)

	rec = do(t, h, http.MethodPost, "/api/tools/hn_missing", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, body := range []string{`not json`, `[1,2]`, `"id"`} {
		rec = do(t, h, http.MethodPost, "/api/tools/hn_get_item", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = do(t, h, http.MethodGet, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "auth routes are absent without OIDC")
}

func TestServerETag(t *testing.T) {
	hs := newHarness(t)
	h := NewServer(hs.registry, hs.events, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/tools", "", nil)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = do(t, h, http.MethodGet, "/api/tools", "", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestServerHealthAndMetrics(t *testing.T) {
	hs := newHarness(t)
	h := NewServer(hs.registry, hs.events, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","logged_in":false,"subscribers":0}`, rec.Body.String())

	hs.session.Login("pg", "user=pg&x")
	rec = do(t, h, http.MethodGet, "/api/health", "", nil)
	assert.JSONEq(t, `{"status":"ok","logged_in":true,"subscribers":0}`, rec.Body.String())

	do(t, h, http.MethodPost, "/api/tools/hn_auth_status", `{}`, nil)
	do(t, h, http.MethodPost, "/api/tools/hn_get_item", `{"id":0}`, nil)

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hn_tools_calls_total{outcome="ok",tool="hn_auth_status"} 1`)
	assert.Contains(t, string(body), `hn_tools_calls_total{outcome="INVALID_INPUT",tool="hn_get_item"} 1`)
	assert.Contains(t, string(body), `hn_tools_call_duration_seconds_count{tool="hn_get_item"} 1`)
}

func TestServerRequiresBearerWithOIDC(t *testing.T) {
	hs := newHarness(t)
	auth := &AuthHandler{verifier: fakeVerifier{}}
	h := NewServer(hs.registry, hs.events, auth).Handler()

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: http.Header{"Authorization": {"Basic good-token"}}, want: http.StatusUnauthorized},
		{name: "bad token", header: http.Header{"Authorization": {"Bearer nope"}}, want: http.StatusUnauthorized},
		{name: "good token", header: http.Header{"Authorization": {"Bearer good-token"}}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/tools", "", tt.header)
			assert.Equal(t, tt.want, rec.Code)
			rec = do(t, h, http.MethodPost, "/api/tools/hn_auth_status", "{}", tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := do(t, h, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")
}

func TestRequireBearerStoresSubject(t *testing.T) {
	var subject string
	h := RequireBearer(fakeVerifier{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
	}))
	do(t, h, http.MethodGet, "/", "", http.Header{"Authorization": {"Bearer good-token"}})
	assert.Equal(t, "user-1", subject)
}

func testProvider(ctx context.Context) *oidc.Provider {
	return (&oidc.ProviderConfig{
		IssuerURL: "https://issuer.example.com",
		AuthURL:   "https://issuer.example.com/authorize",
		TokenURL:  "https://issuer.example.com/token",
		JWKSURL:   "https://issuer.example.com/jwks",
	}).NewProvider(ctx)
}

func TestAuthLoginRedirect(t *testing.T) {
	auth := NewAuthHandler(testProvider(context.Background()), OIDCConfig{
		Issuer:       "https://issuer.example.com",
		ClientID:     "hn-tools",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:8080/api/auth/callback",
	})

	rec := do(t, http.HandlerFunc(auth.Login), http.MethodGet, "/api/auth/login", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "issuer.example.com", loc.Host)
	q := loc.Query()
	assert.Equal(t, "hn-tools", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	state, verifier, ok := strings.Cut(cookies[0].Value, "|")
	require.True(t, ok)
	assert.Equal(t, q.Get("state"), state)
	assert.Len(t, verifier, pkceVerifierLen)
}

func TestAuthCallbackRejects(t *testing.T) {
	auth := NewAuthHandler(testProvider(context.Background()), OIDCConfig{ClientID: "hn-tools"})
	stateCookie := http.Header{"Cookie": {stateCookieName + "=abc|verifier"}}

	tests := []struct {
		name   string
		target string
		header http.Header
	}{
		{name: "provider error", target: "/cb?error=access_denied"},
		{name: "missing code", target: "/cb?state=abc", header: stateCookie},
		{name: "missing cookie", target: "/cb?code=c&state=abc"},
		{name: "state mismatch", target: "/cb?code=c&state=xyz", header: stateCookie},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.HandlerFunc(auth.Callback), http.MethodGet, tt.target, "", tt.header)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestOIDCConfigEnabled(t *testing.T) {
	assert.False(t, OIDCConfig{}.Enabled())
	assert.False(t, OIDCConfig{Issuer: "i", ClientID: "c"}.Enabled())
	assert.True(t, OIDCConfig{Issuer: "i", ClientID: "c", ClientSecret: "s", RedirectURI: "r"}.Enabled())
}
