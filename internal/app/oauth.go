package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/year-in-code/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// StateStore holds single-use OAuth state values.
type StateStore interface {
	PutState(ctx context.Context, state string, ttl time.Duration) error
	ConsumeState(ctx context.Context, state string) (bool, error)
}

// OAuthHandler runs the GitHub OAuth web flow and hands the access token
// back as JSON.
type OAuthHandler struct {
	cfg      oauth2.Config
	enabled  bool
	states   StateStore
	stateTTL time.Duration
	logger   *zap.Logger
	newState func() string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope,omitempty"`
}

// NewOAuthHandler builds the handler. Routes answer 500 when no client
// credentials are configured.
func NewOAuthHandler(cfg config.OAuthConfig, states StateStore, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &OAuthHandler{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		enabled:  cfg.Enabled() && states != nil,
		states:   states,
		stateTTL: stateTTL,
		logger:   logger,
		newState: uuid.NewString,
	}
}

func (h *OAuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		writeError(w, http.StatusInternalServerError, "GitHub OAuth not configured")
		return
	}

	state := h.newState()
	if err := h.states.PutState(r.Context(), state, h.stateTTL); err != nil {
		h.logger.Error("store oauth state failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "oauth_failed")
		return
	}
	oauthCfg := h.configFor(r)
	http.Redirect(w, r, oauthCfg.AuthCodeURL(state), http.StatusFound)
}

func (h *OAuthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		writeError(w, http.StatusInternalServerError, "GitHub OAuth not configured")
		return
	}

	query := r.URL.Query()
	if denied := strings.TrimSpace(query.Get("error")); denied != "" {
		writeError(w, http.StatusBadRequest, denied)
		return
	}
	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "no_code")
		return
	}
	state := strings.TrimSpace(query.Get("state"))
	if state == "" {
		writeError(w, http.StatusBadRequest, "invalid_state")
		return
	}
	live, err := h.states.ConsumeState(r.Context(), state)
	if err != nil {
		h.logger.Error("consume oauth state failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "oauth_failed")
		return
	}
	if !live {
		writeError(w, http.StatusBadRequest, "invalid_state")
		return
	}

	oauthCfg := h.configFor(r)
	token, err := oauthCfg.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "oauth_failed")
		return
	}

	scope, _ := token.Extra("scope").(string)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Scope:       scope,
	})
}

// configFor fills the redirect URL from the request origin when none is configured.
func (h *OAuthHandler) configFor(r *http.Request) *oauth2.Config {
	oauthCfg := h.cfg
	if oauthCfg.RedirectURL == "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		oauthCfg.RedirectURL = scheme + "://" + r.Host + RouteAuthCallback
	}
	return &oauthCfg
}
