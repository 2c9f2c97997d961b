// Package api provides the /api/* endpoints.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/company"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/email"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/identity"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/network"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/registry"
	"github.com/MahdiBaghbani/tanzanite-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/tanzanite-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/tanzanite-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/tanzanite-go/internal/interceptors"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/deps"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// Ratelimit holds rate limiting configuration for this service.
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`
}

// RatelimitConfig holds the per-service rate limiting opt-in.
type RatelimitConfig struct {
	// Profile is the name of the ratelimit profile applied to
	// POST /invite/network, from [http.interceptors.ratelimit.profiles.<name>].
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates a new API service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.Config == nil {
		return nil, errors.New("api: config not initialized")
	}
	if d.Store == nil {
		return nil, errors.New("api: store not initialized")
	}
	cfg := d.Config

	deployment := registry.Deployment{
		PackageID:  cfg.Ledger.PackageID,
		RegistryID: cfg.Ledger.RegistryID,
		GasBudget:  cfg.Ledger.GasBudget,
	}
	registryHandler := registry.NewHandler(d.Ledger, d.Executor, deployment, d.Publisher, log)
	companyLookup := company.NewLookup(d.Ledger, deployment, log)

	mailer := d.Mailer
	if mailer == nil {
		mailer = email.NewWithTransport(nil, cfg.Email.From, log)
	}
	networkHandler := network.NewHandler(
		network.NewManager(d.Store, cfg.Invites.DefaultRole),
		mailer,
		network.HandlerConfig{
			InviteURL: cfg.InviteURL,
			AoRName:   cfg.Invites.AoRName,
			TTL:       time.Duration(cfg.Invites.TTLDays) * 24 * time.Hour,
		},
		d.Publisher,
		log,
	)

	// Build ratelimit middleware for /invite/network if profile is configured
	var inviteMiddleware func(http.Handler) http.Handler
	if c.Ratelimit.Profile != "" {
		profileConfig, err := interceptors.GetProfileConfig(cfg.HTTP.Interceptors, "ratelimit", c.Ratelimit.Profile)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		newInterceptor, ok := interceptors.Get("ratelimit")
		if !ok {
			return nil, errors.New("api: ratelimit interceptor not registered")
		}
		inviteMiddleware, err = newInterceptor(profileConfig, log)
		if err != nil {
			return nil, fmt.Errorf("api: failed to create ratelimit interceptor: %w", err)
		}
	}

	r := chi.NewRouter()

	r.Get("/healthz", api.HealthHandler)
	r.HandleFunc("/auth/me", identity.MeHandler(d.Sessions))

	// Ledger writes and projections. The handlers answer 405 themselves.
	r.HandleFunc("/register-aor", registryHandler.HandleRegisterAoR)
	r.HandleFunc("/create-company", registryHandler.HandleCreateCompany)
	r.HandleFunc("/registry-status", registryHandler.HandleStatus)
	r.HandleFunc("/company-status", companyLookup.HandleStatus)

	// Vendor network
	r.HandleFunc("/vendors", networkHandler.HandleVendors)
	r.Route("/invite", func(r chi.Router) {
		if inviteMiddleware != nil {
			r.With(inviteMiddleware).HandleFunc("/network", networkHandler.HandleInviteNetwork)
		} else {
			r.HandleFunc("/network", networkHandler.HandleInviteNetwork)
		}
		r.Get("/{token}", networkHandler.HandleGetInvite)
		r.Post("/{token}/accept", networkHandler.HandleAccept)
		r.Post("/{token}/reject", networkHandler.HandleReject)
	})

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that don't require a wallet identity.
// /auth/me checks the session cookie itself and must stay outside the gate,
// since the identity lookup may point back at this instance.
func (s *Service) Unprotected() []string {
	return []string{"/healthz", "/auth/me", "/registry-status", "/company-status", "/invite"}
}

// Protected returns the paths under /invite that still require a wallet.
func (s *Service) Protected() []string {
	return []string{"/invite/network"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
