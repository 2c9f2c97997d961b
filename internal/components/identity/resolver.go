package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

// Resolver resolves the caller of r. A caller without identity yields
// ErrNoIdentity.
type Resolver interface {
	Resolve(r *http.Request) (*Identity, error)
}

// Chain tries each resolver in order and returns the first identity.
type Chain struct {
	resolvers []Resolver
	logger    *slog.Logger
}

// NewChain returns a chain over the non-nil resolvers.
func NewChain(logger *slog.Logger, resolvers ...Resolver) *Chain {
	c := &Chain{logger: logutil.NoopIfNil(logger)}
	for _, r := range resolvers {
		if r != nil {
			c.resolvers = append(c.resolvers, r)
		}
	}
	return c
}

// Resolve implements Resolver. Lookup failures are logged and the next
// resolver is tried.
func (c *Chain) Resolve(r *http.Request) (*Identity, error) {
	for _, res := range c.resolvers {
		id, err := res.Resolve(r)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNoIdentity) {
			appctx.GetLogger(r.Context()).Warn("identity resolver failed", "error", err)
		}
	}
	return nil, ErrNoIdentity
}

// UnauthenticatedMessage is returned to callers without a session.
const UnauthenticatedMessage = "Non authentifié. Veuillez vous connecter."

// MeHandler serves GET /api/auth/me from the session cookie alone, so an
// instance can act as its own lookup endpoint.
func MeHandler(sessions *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			api.WriteMethodNotAllowed(w, http.MethodGet)
			return
		}
		if sessions == nil {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, UnauthenticatedMessage)
			return
		}
		id, err := sessions.Resolve(r)
		if err != nil {
			reason := api.ReasonUnauthenticated
			if errors.Is(err, ErrInvalidSession) {
				reason = api.ReasonSessionExpired
			}
			api.WriteUnauthorized(w, reason, UnauthenticatedMessage)
			return
		}
		api.WriteJSON(w, http.StatusOK, id)
	}
}
