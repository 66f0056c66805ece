package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/year-in-code/internal/cache"
	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"github.com/cam3ron2/year-in-code/internal/leaderboard"
	"github.com/cam3ron2/year-in-code/internal/stats"
	"go.uber.org/zap"
)

const maxRequestBody = 64 << 10

// Error messages returned to clients.
const (
	msgNotAuthenticated  = "Not authenticated"
	msgInvalidToken      = "Invalid token"
	msgFetchFailed       = "Failed to fetch GitHub data"
	msgUsernameRequired  = "Username is required"
	msgUserNotFound      = "User not found"
	msgTokenRequired     = "Token is required"
	msgValidationFailed  = "Failed to validate token"
	msgInvalidCommits    = "commits must be a non-negative integer"
	msgInvalidJSONBody   = "Invalid JSON body"
	msgRequestBodyTooBig = "Request body too large"
)

// StatsService computes reports and checks tokens.
type StatsService interface {
	GetStats(ctx context.Context, creds stats.Credentials) (stats.Result, error)
	ValidateToken(ctx context.Context, token string) (githubapi.User, error)
}

// Instrumentation receives API-level measurements.
type Instrumentation interface {
	CacheLookup(hit bool)
	HTTPResponse(route string, code int)
}

type nopInstrumentation struct{}

func (nopInstrumentation) CacheLookup(bool)          {}
func (nopInstrumentation) HTTPResponse(string, int) {}

// APIConfig wires an API.
type APIConfig struct {
	Stats           StatsService
	Cache           cache.Store
	ReportTTL       time.Duration
	Instrumentation Instrumentation
	Logger          *zap.Logger
}

// API serves the JSON report endpoints.
type API struct {
	stats     StatsService
	cache     cache.Store
	reportTTL time.Duration
	metrics   Instrumentation
	logger    *zap.Logger
}

// NewAPI creates the JSON API. A nil cache or non-positive ReportTTL disables report caching.
func NewAPI(cfg APIConfig) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var metrics Instrumentation = nopInstrumentation{}
	if cfg.Instrumentation != nil {
		metrics = cfg.Instrumentation
	}
	return &API{
		stats:     cfg.Stats,
		cache:     cfg.Cache,
		reportTTL: cfg.ReportTTL,
		metrics:   metrics,
		logger:    logger,
	}
}

// instrument counts responses per route and traces them unless traceMode is off.
func (a *API) instrument(traceMode, operation, route string, handler http.Handler) http.Handler {
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusCapturingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(recorder, r)
		a.metrics.HTTPResponse(route, recorder.status)
	})
	return wrapHTTPHandler(traceMode, operation, counted)
}

type errorResponse struct {
	Error string `json:"error"`
}

type statsResponse struct {
	User   githubapi.User    `json:"user"`
	Stats  stats.Report      `json:"stats"`
	Level  leaderboard.Level `json:"level"`
	Cached bool              `json:"cached"`
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type tokenUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type validateTokenResponse struct {
	Valid bool      `json:"valid"`
	User  tokenUser `json:"user"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, msgNotAuthenticated)
		return
	}

	result, cached, err := a.report(r, stats.Credentials{Token: token})
	if err != nil {
		if stats.IsAuthError(err) {
			writeError(w, http.StatusUnauthorized, msgInvalidToken)
			return
		}
		a.logger.Error("compute authenticated stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, newStatsResponse(result, cached))
}

func (a *API) handlePublicStats(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, msgUsernameRequired)
		return
	}

	result, cached, err := a.report(r, stats.Credentials{Username: username})
	if err != nil {
		if errors.Is(err, stats.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		a.logger.Error("compute public stats failed", zap.String("username", username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, newStatsResponse(result, cached))
}

func (a *API) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgRequestBodyTooBig)
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidJSONBody)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, msgTokenRequired)
		return
	}

	user, err := a.stats.ValidateToken(r.Context(), token)
	if err != nil {
		if stats.IsAuthError(err) {
			writeError(w, http.StatusUnauthorized, msgInvalidToken)
			return
		}
		a.logger.Warn("validate token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgValidationFailed)
		return
	}
	writeJSON(w, http.StatusOK, validateTokenResponse{
		Valid: true,
		User: tokenUser{
			Login:     user.Login,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
		},
	})
}

func (a *API) handleLevel(w http.ResponseWriter, r *http.Request) {
	commits, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("commits")))
	if err != nil || commits < 0 {
		writeError(w, http.StatusBadRequest, msgInvalidCommits)
		return
	}
	writeJSON(w, http.StatusOK, leaderboard.LevelFor(commits))
}

// report serves creds from the cache unless refresh=true, computing and
// storing complete reports on a miss.
func (a *API) report(r *http.Request, creds stats.Credentials) (stats.Result, bool, error) {
	ctx := r.Context()
	key := cache.ReportKey(creds.Token, creds.Username)
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	if a.cachingEnabled() && !refresh {
		if result, ok := a.cachedReport(ctx, key); ok {
			return result, true, nil
		}
	}

	result, err := a.stats.GetStats(ctx, creds)
	if err != nil {
		return stats.Result{}, false, err
	}
	if a.cachingEnabled() && result.Stats.Complete {
		a.storeReport(ctx, key, result)
	}
	return result, false, nil
}

func (a *API) cachingEnabled() bool {
	return a.cache != nil && a.reportTTL > 0
}

func (a *API) cachedReport(ctx context.Context, key string) (stats.Result, bool) {
	payload, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("report cache read failed", zap.Error(err))
		return stats.Result{}, false
	}
	a.metrics.CacheLookup(ok)
	if !ok {
		return stats.Result{}, false
	}
	var result stats.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		a.logger.Warn("discarding undecodable cached report", zap.Error(err))
		return stats.Result{}, false
	}
	return result, true
}

func (a *API) storeReport(ctx context.Context, key string, result stats.Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		a.logger.Warn("encode report for cache failed", zap.Error(err))
		return
	}
	if err := a.cache.Set(ctx, key, payload, a.reportTTL); err != nil {
		a.logger.Warn("report cache write failed", zap.Error(err))
	}
}

func newStatsResponse(result stats.Result, cached bool) statsResponse {
	return statsResponse{
		User:   result.User,
		Stats:  result.Stats,
		Level:  leaderboard.LevelFor(result.Stats.TotalCommits),
		Cached: cached,
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
