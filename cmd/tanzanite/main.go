// Package main is the entrypoint for the tanzanite server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/email"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/identity"
	"github.com/MahdiBaghbani/tanzanite-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/cache"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/config"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/deps"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/events"
	httpclient "github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/server"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"

	// Register drivers, interceptors and services
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/events/nats"
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/loader"
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/services/loader"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	envFile := flag.String("env-file", ".env", "Dotenv file loaded before the environment layer (ignored when missing)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin used in invite links (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, selfsigned, or acme (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: memory, json, sqlite, mirror, postgres (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	eventsDriver := flag.String("events-driver", "", "Events driver: none or nats (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := logutil.NewJSON("info")

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
			bootstrapLogger.Warn("failed to load env file", "path", *envFile, "error", err)
		}
	}

	// Precedence: mode preset -> TOML file -> environment -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			PublicOrigin: publicOrigin,
			SSRFMode:     ssrfMode,
			TLSMode:      tlsMode,
			LoggingLevel: loggingLevel,
			StoreDriver:  storeDriver,
			CacheDriver:  cacheDriver,
			EventsDriver: eventsDriver,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logutil.NewJSON(cfg.Logging.Level)
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	// Outbound HTTP: one SSRF-guarded client behind every upstream client
	rawHTTPClient := httpclient.New(&cfg.OutboundHTTP)
	hc := rawHTTPClient.StdClient()
	outboundTimeout := time.Duration(cfg.OutboundHTTP.TimeoutMS) * time.Millisecond

	// Ledger reader and sponsored executor
	ledger := chain.NewRPCClient(cfg.Ledger.RPCURL, hc, outboundTimeout)
	if cfg.Sponsor.URL == "" {
		logger.Warn("sponsor relay not configured, write endpoints will fail")
	}
	executor := chain.NewSponsorClient(cfg.Sponsor.URL, cfg.Sponsor.APIKey, hc,
		time.Duration(cfg.Sponsor.TimeoutMS)*time.Millisecond)

	// Identity: lookup endpoint first, then the session cookie
	var sessions *identity.Sessions
	var resolvers []identity.Resolver
	if cfg.Session.LookupURL != "" {
		resolvers = append(resolvers, identity.NewLookup(cfg.Session.LookupURL, hc, outboundTimeout))
	}
	if cfg.Session.Secret != "" {
		sessions, err = identity.NewSessions(cfg.Session.Secret, cfg.Session.CookieName)
		if err != nil {
			logger.Error("failed to initialize sessions", "error", err)
			os.Exit(1)
		}
		resolvers = append(resolvers, sessions)
	} else {
		logger.Warn("session secret not configured, session cookies are not accepted")
	}
	identityChain := identity.NewChain(logger, resolvers...)

	// Invitation email
	mailer, err := email.New(email.Config{
		APIKey:    cfg.Email.APIKey,
		From:      cfg.Email.From,
		FromName:  cfg.Email.FromName,
		SMTPLogin: cfg.Email.SMTPLogin,
		SMTPHost:  cfg.Email.SMTPHost,
		SMTPPort:  cfg.Email.SMTPPort,
		APIURL:    cfg.Email.APIURL,
		Timeout:   outboundTimeout,
	}, hc, logger)
	if err != nil {
		logger.Error("failed to initialize email", "error", err)
		os.Exit(1)
	}

	// Document store
	st, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		DSN:     cfg.Store.DSN,
		Mirror: store.MirrorConfig{
			IncludeSecrets: cfg.Store.Mirror.IncludeSecrets,
			SecretsScope:   cfg.Store.Mirror.SecretsScope,
		},
	})
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if err := st.Init(context.Background()); err != nil {
		logger.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Cache (defaults to in-memory if not configured)
	cacheDriverName := cfg.Cache.Driver
	if cacheDriverName == "" {
		cacheDriverName = "memory"
	}
	cacheInstance, err := cache.NewFromConfig(cacheDriverName, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}

	// Domain events
	publisher, err := events.New(cfg.Events.Driver, events.Config{
		URL:           cfg.Events.URL,
		SubjectPrefix: cfg.Events.SubjectPrefix,
	}, logger)
	if err != nil {
		logger.Error("failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	deps.SetDeps(&deps.Deps{
		Sessions:   sessions,
		Identity:   identityChain,
		Ledger:     ledger,
		Executor:   executor,
		Store:      st,
		Mailer:     mailer,
		Publisher:  publisher,
		HTTPClient: rawHTTPClient,
		Config:     cfg,
		Cache:      cacheInstance,
		RealIP:     realip.NewTrustedProxies(cfg.Server.TrustedProxies),
	})

	services, err := service.Build(cfg.HTTP.Services, logger)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
