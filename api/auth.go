package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	stateCookieName = "hn_tools_oauth_state"
	pkceVerifierLen = 64
)

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Enabled reports whether every OIDC setting is present.
func (c OIDCConfig) Enabled() bool {
	return c.Issuer != "" && c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// IDTokenVerifier checks a raw ID token. *oidc.IDTokenVerifier implements it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// AuthHandler runs the authorization code flow with PKCE and hands the resulting ID
// token back to the caller, who presents it as a bearer token on tool calls.
type AuthHandler struct {
	verifier     IDTokenVerifier
	oauth2Config oauth2.Config
}

// NewAuthHandler creates an AuthHandler using go-oidc for discovery and token verification.
func NewAuthHandler(provider *oidc.Provider, cfg OIDCConfig) *AuthHandler {
	return &AuthHandler{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}
}

// SetupOIDCProvider performs OIDC discovery and returns the provider.
func SetupOIDCProvider(ctx context.Context, issuer string) (*oidc.Provider, error) {
	return oidc.NewProvider(ctx, issuer)
}

// Verifier returns the verifier bearer tokens are checked against.
func (h *AuthHandler) Verifier() IDTokenVerifier { return h.verifier }

// Login redirects to the OIDC authorization endpoint.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := randomString(32)
	verifier := randomString(pkceVerifierLen)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state + "|" + verifier,
		Path:     "/api/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.oauth2Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback exchanges the authorization code and returns the verified ID token.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "OAuth error: "+errParam+": "+desc, http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "missing state cookie", http.StatusBadRequest)
		return
	}
	stateValue, verifier, ok := strings.Cut(cookie.Value, "|")
	if !ok || stateValue != state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	oauth2Token, err := h.oauth2Config.Exchange(r.Context(), code, oauth2.VerifierOption(verifier))
	if err != nil {
		slog.Error("token exchange failed", "error", err)
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in response", http.StatusInternalServerError)
		return
	}

	idToken, err := h.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		slog.Error("ID token verification failed", "error", err)
		http.Error(w, "ID token verification failed", http.StatusInternalServerError)
		return
	}

	slog.Info("issued bearer token", "sub", idToken.Subject)
	writeJSON(w, r, map[string]any{
		"idToken":   rawIDToken,
		"subject":   idToken.Subject,
		"expiresAt": idToken.Expiry.UTC().Format(time.RFC3339),
	})
}

func randomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}
