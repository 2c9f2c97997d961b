// Package middleware provides always-on transport middleware for HTTP servers.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/realip"
)

// invitePrefix is the route family whose second segment is a bearer token.
const invitePrefix = "/api/invite/"

// LogPath returns path with invite tokens masked. The token is the only
// capability needed to accept an invite and must not reach the logs.
func LogPath(path string) string {
	rest, ok := strings.CutPrefix(path, invitePrefix)
	if !ok || rest == "" {
		return path
	}
	token, tail, _ := strings.Cut(rest, "/")
	if token == "network" {
		return path
	}
	masked := invitePrefix + "{token}"
	if tail != "" {
		masked += "/" + tail
	}
	return masked
}

// RequestLoggerMiddleware attaches a request-scoped logger to the request context.
//
// It must run after chimw.RequestID so the request id is set.
func RequestLoggerMiddleware(base *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Inherited by the access log and by appctx.GetLogger in handlers.
			reqLogger := base.With(baseFields(r, trustedProxies)...)
			ctx := appctx.WithLogger(r.Context(), reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// baseFields are the request fields shared by every request log line.
func baseFields(r *http.Request, trustedProxies *realip.TrustedProxies) []any {
	clientIP := "unknown"
	if trustedProxies != nil {
		clientIP = trustedProxies.GetClientIPString(r)
	}
	return []any{
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", LogPath(r.URL.Path), // path only, no query string
		"client_ip", clientIP,
	}
}
