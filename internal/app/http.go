package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Routes served by the API.
const (
	RouteStats         = "/api/stats"
	RoutePublicStats   = "/api/public-stats"
	RouteValidateToken = "/api/validate-token"
	RouteLevel         = "/api/level"
	RouteAuthLogin     = "/api/auth/github"
	RouteAuthCallback  = "/api/auth/callback"
)

// NewHTTPHandler wires the JSON API, OAuth, metrics and health endpoints on one router.
func NewHTTPHandler(api *API, oauth *OAuthHandler, metricsHandler http.Handler, healthHandler http.Handler, traceMode string) http.Handler {
	router := chi.NewRouter()

	if api != nil {
		router.Method(http.MethodGet, RouteStats, api.instrument(traceMode, "stats", RouteStats, http.HandlerFunc(api.handleStats)))
		router.Method(http.MethodGet, RoutePublicStats, api.instrument(traceMode, "public_stats", RoutePublicStats, http.HandlerFunc(api.handlePublicStats)))
		router.Method(http.MethodPost, RouteValidateToken, api.instrument(traceMode, "validate_token", RouteValidateToken, http.HandlerFunc(api.handleValidateToken)))
		router.Method(http.MethodGet, RouteLevel, api.instrument(traceMode, "level", RouteLevel, http.HandlerFunc(api.handleLevel)))
	}
	if oauth != nil {
		router.Method(http.MethodGet, RouteAuthLogin, wrapHTTPHandler(traceMode, "auth_login", http.HandlerFunc(oauth.handleLogin)))
		router.Method(http.MethodGet, RouteAuthCallback, wrapHTTPHandler(traceMode, "auth_callback", http.HandlerFunc(oauth.handleCallback)))
	}

	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", metricsHandler))
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", healthHandler))
	router.Handle("/readyz", wrapHTTPHandler(traceMode, "readyz", healthHandler))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthHandler))
	return router
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("year-in-code/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
