// Package deps provides shared dependencies for all services.
package deps

import (
	"sync"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/identity"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/network"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/cache"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/config"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/events"
	httpclient "github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds the process-wide clients built once in main and shared by
// every service.
type Deps struct {
	// Identity
	Sessions *identity.Sessions
	Identity identity.Resolver

	// Ledger
	Ledger   chain.Reader
	Executor chain.Executor

	// Storage and delivery
	Store     store.Store
	Mailer    network.Mailer
	Publisher events.Publisher

	// HTTPClient is the outbound client behind every resty-based client.
	HTTPClient *httpclient.Client

	// Config (for handlers that need config values)
	Config *config.Config

	// Cache provides cache access for interceptors (rate limiting)
	Cache cache.CacheWithCounter

	// RealIP provides trusted-proxy-aware client IP extraction.
	// This is the single source of truth for client identity in logging and rate limiting.
	RealIP *realip.TrustedProxies
}

// SetDeps sets the shared dependencies. Must be called once at startup
// before any services are constructed.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies.
// Returns nil if SetDeps has not been called.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only. Resets the singleton.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
