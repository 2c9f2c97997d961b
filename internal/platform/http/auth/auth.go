// Package auth provides the wallet authentication gate for HTTP servers.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/identity"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

type contextKey string

const identityContextKey contextKey = "identity"

// AuthGateConfig configures the auth gate middleware.
type AuthGateConfig struct {
	// RequireAuth returns true if the given path requires a wallet identity.
	// Constructed by the server at router setup time using IsAuthRequired().
	RequireAuth func(path string) bool

	// Log is the base logger for auth-related warnings and errors.
	Log *slog.Logger

	// Resolver turns the request cookies into a wallet identity.
	// May be nil only if RequireAuth always returns false (tests only).
	Resolver identity.Resolver
}

// NewAuthGate returns a middleware that enforces wallet authentication.
// If RequireAuth returns false for the request path, the request passes through
// without identity resolution or context enrichment.
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if cfg.Resolver == nil {
				cfg.Log.Error("auth gate has no identity resolver", "path", r.URL.Path)
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, identity.UnauthenticatedMessage)
				return
			}

			id, err := cfg.Resolver.Resolve(r)
			if err != nil || id == nil || id.Wallet == "" {
				reason := api.ReasonUnauthenticated
				if errors.Is(err, identity.ErrInvalidSession) {
					reason = api.ReasonSessionExpired
				}
				api.WriteUnauthorized(w, reason, identity.UnauthenticatedMessage)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, identityContextKey, id)
			ctx = appctx.WithWallet(ctx, id.Wallet)

			// Enrich handler logger with the wallet (not used by access log, handler-only)
			reqLogger := appctx.GetLogger(ctx).With("wallet", id.Wallet)
			ctx = appctx.WithLogger(ctx, reqLogger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityFromContext returns the identity resolved by the gate.
func GetIdentityFromContext(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(identityContextKey).(*identity.Identity)
	return id
}
