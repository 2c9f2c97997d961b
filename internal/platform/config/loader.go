package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file and env mode).
	ModeFlag string

	// Environ replaces the process environment when non-nil (tests).
	Environ map[string]string

	// SkipEnv disables the environment layer entirely.
	SkipEnv bool

	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	PublicOrigin *string
	SSRFMode     *string
	TLSMode      *string
	LoggingLevel *string
	StoreDriver  *string
	CacheDriver  *string
	EventsDriver *string
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > MODE env > mode in config file > strict
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay environment variables
//  5. Overlay CLI flags
//  6. Validate
//
// A missing or malformed config file fails the load. Unknown TOML keys only warn.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var data string
	var fileMode struct {
		Mode string `toml:"mode"`
	}
	if opts.ConfigPath != "" {
		raw, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		data = string(raw)
		if _, err := toml.Decode(data, &fileMode); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
	}

	var env envOverrides
	if !opts.SkipEnv {
		var err error
		env, err = parseEnv(opts.Environ)
		if err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	modeStr := fileMode.Mode
	if env.Mode != "" {
		modeStr = env.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	// Decoding onto the preset keeps every value the file does not mention.
	if data != "" {
		md, err := toml.Decode(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}
	cfg.Mode = string(mode)

	env.apply(cfg)
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production-safe defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		PublicOrigin: "http://localhost:3000",
		ListenAddr:   ":3000",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		TLS: TLSConfig{
			Mode:          "off",
			HTTPPort:      80,
			HTTPSPort:     443,
			SelfSignedDir: ".tanzanite/certs",
			ACME: ACMEConfig{
				StorageDir: ".tanzanite/acme",
			},
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:         "strict",
			TimeoutMS:        15000,
			ConnectTimeoutMS: 3000,
			MaxRedirects:     1,
			MaxResponseBytes: 4 << 20,
		},
		Logging: LoggingConfig{Level: "info"},
		Ledger: LedgerConfig{
			RPCURL:    "https://fullnode.testnet.sui.io:443",
			GasBudget: 50_000_000,
		},
		Sponsor: SponsorConfig{TimeoutMS: 30000},
		Session: SessionConfig{CookieName: "zklogin-session"},
		Email: EmailConfig{
			FromName: "Tanzanite",
			SMTPHost: "smtp-relay.brevo.com",
			SMTPPort: 587,
			APIURL:   "https://api.brevo.com",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".tanzanite/data",
		},
		Cache:  CacheConfig{Driver: "memory"},
		Events: EventsConfig{Driver: "none", SubjectPrefix: "tanzanite"},
		Invites: InvitesConfig{
			TTLDays:     7,
			DefaultRole: "Subcontractor",
			AoRName:     "Authority of Record",
		},
	}
}

// DevConfig returns development defaults: in-memory store, verbose logs, relaxed outbound checks.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.OutboundHTTP.SSRFMode = "off"
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Logging.Level = "debug"
	cfg.Store.Driver = "memory"
	return cfg
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.PublicOrigin, f.PublicOrigin)
	set(&cfg.OutboundHTTP.SSRFMode, f.SSRFMode)
	set(&cfg.TLS.Mode, f.TLSMode)
	set(&cfg.Logging.Level, f.LoggingLevel)
	set(&cfg.Store.Driver, f.StoreDriver)
	set(&cfg.Cache.Driver, f.CacheDriver)
	set(&cfg.Events.Driver, f.EventsDriver)
}

// validate checks enum-like fields and cross-field requirements (fail fast).
func validate(cfg *Config) error {
	switch cfg.TLS.Mode {
	case "off", "static", "selfsigned", "acme":
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, selfsigned, acme", cfg.TLS.Mode)
	}

	switch cfg.OutboundHTTP.SSRFMode {
	case "strict", "off":
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be one of strict, off", cfg.OutboundHTTP.SSRFMode)
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Store.Driver {
	case "memory":
	case "json", "sqlite", "mirror":
		if cfg.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the %s driver", cfg.Store.Driver)
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of memory, json, sqlite, mirror, postgres", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory or redis", cfg.Cache.Driver)
	}

	switch cfg.Events.Driver {
	case "", "none":
	case "nats":
		if cfg.Events.URL == "" {
			return fmt.Errorf("events.url is required for the nats driver")
		}
	default:
		return fmt.Errorf("invalid events.driver %q: must be one of none, nats", cfg.Events.Driver)
	}

	key := cfg.Email.APIKey
	if key != "" && !strings.HasPrefix(key, "xkeysib-") && !strings.HasPrefix(key, "xsmtpsib-") {
		return fmt.Errorf("invalid email.api_key: expected an xkeysib- (API) or xsmtpsib- (SMTP) key")
	}

	if s := cfg.Session.Secret; s != "" && len(s) < 32 {
		return fmt.Errorf("session.secret must be at least 32 characters")
	}

	if cfg.Invites.TTLDays <= 0 {
		return fmt.Errorf("invites.ttl_days must be positive")
	}

	for name, raw := range map[string]string{
		"ledger.rpc_url":     cfg.Ledger.RPCURL,
		"sponsor.url":        cfg.Sponsor.URL,
		"session.lookup_url": cfg.Session.LookupURL,
		"email.api_url":      cfg.Email.APIURL,
	} {
		if err := validateHTTPURL(name, raw); err != nil {
			return err
		}
	}

	if err := validateRatelimitConfig(cfg); err != nil {
		return err
	}
	return validatePublicOrigin(cfg)
}

func validateHTTPURL(name, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid %s %q: must be an absolute http or https URL", name, raw)
	}
	return nil
}

// validateRatelimitConfig validates ratelimit interceptor configuration.
// Profiles are defined at [http.interceptors.ratelimit.profiles.<name>].
// If a service references a profile, that profile must exist.
func validateRatelimitConfig(cfg *Config) error {
	profiles := make(map[string]bool)
	if rlCfg, ok := cfg.HTTP.Interceptors["ratelimit"]; ok {
		if profilesRaw, ok := rlCfg["profiles"]; ok {
			profilesMap, ok := profilesRaw.(map[string]any)
			if !ok {
				return fmt.Errorf("http.interceptors.ratelimit.profiles must be a map")
			}
			for name, profile := range profilesMap {
				if _, ok := profile.(map[string]any); !ok {
					return fmt.Errorf("http.interceptors.ratelimit.profiles.%s must be a map", name)
				}
				profiles[name] = true
			}
		}
	}

	for svcName, svcCfg := range cfg.HTTP.Services {
		rlMap, ok := svcCfg["ratelimit"].(map[string]any)
		if !ok {
			continue
		}
		if profile, ok := rlMap["profile"].(string); ok && !profiles[profile] {
			return fmt.Errorf("http.services.%s.ratelimit references undefined profile %q", svcName, profile)
		}
	}
	return nil
}

// validatePublicOrigin requires an absolute http(s) origin without userinfo,
// query, fragment or path. Whitespace is rejected, not trimmed.
func validatePublicOrigin(cfg *Config) error {
	origin := cfg.PublicOrigin
	if origin == "" {
		return fmt.Errorf("public_origin is required")
	}
	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https", origin)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}
	if u.User != nil {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a query string or fragment", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path", origin)
	}
	return nil
}
