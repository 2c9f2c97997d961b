package config

import (
	"github.com/caarlos0/env/v11"
)

// envOverrides mirrors the deployment environment variables. Empty means unset.
type envOverrides struct {
	Mode         string `env:"TANZANITE_MODE"`
	ListenAddr   string `env:"LISTEN_ADDR"`
	PublicOrigin string `env:"BASE_URL"`
	LogLevel     string `env:"LOG_LEVEL"`

	RPCURL          string `env:"SUI_RPC_URL"`
	PackageID       string `env:"TANZANITE_PACKAGE_ID"`
	PublicPackageID string `env:"NEXT_PUBLIC_TANZANITE_PACKAGE_ID"`
	RegistryID      string `env:"GLOBAL_REGISTRY_ID"`

	SponsorURL    string `env:"SPONSOR_URL"`
	SponsorAPIKey string `env:"SPONSOR_API_KEY"`

	SessionSecret     string `env:"SESSION_SECRET"`
	IronSessionSecret string `env:"IRON_SESSION_SECRET"`
	IdentityLookupURL string `env:"IDENTITY_LOOKUP_URL"`

	BrevoAPIKey    string `env:"BREVO_API_KEY"`
	EmailFrom      string `env:"EMAIL_FROM"`
	BrevoEmailFrom string `env:"BREVO_EMAIL_FROM"`
	BrevoSMTPLogin string `env:"BREVO_SMTP_LOGIN"`

	StoreDriver  string `env:"STORE_DRIVER"`
	StoreDSN     string `env:"STORE_DSN"`
	StoreDataDir string `env:"STORE_DATA_DIR"`

	RedisAddr string `env:"REDIS_ADDR"`
	NATSURL   string `env:"NATS_URL"`
}

func parseEnv(environ map[string]string) (envOverrides, error) {
	var e envOverrides
	if environ == nil {
		err := env.Parse(&e)
		return e, err
	}
	err := env.ParseWithOptions(&e, env.Options{Environment: environ})
	return e, err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// apply overlays the set variables onto cfg.
func (e envOverrides) apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.ListenAddr, e.ListenAddr)
	set(&cfg.PublicOrigin, e.PublicOrigin)
	set(&cfg.Logging.Level, e.LogLevel)

	set(&cfg.Ledger.RPCURL, e.RPCURL)
	set(&cfg.Ledger.PackageID, firstNonEmpty(e.PackageID, e.PublicPackageID))
	set(&cfg.Ledger.RegistryID, e.RegistryID)

	set(&cfg.Sponsor.URL, e.SponsorURL)
	set(&cfg.Sponsor.APIKey, e.SponsorAPIKey)

	set(&cfg.Session.Secret, firstNonEmpty(e.SessionSecret, e.IronSessionSecret))
	set(&cfg.Session.LookupURL, e.IdentityLookupURL)

	set(&cfg.Email.APIKey, e.BrevoAPIKey)
	set(&cfg.Email.From, firstNonEmpty(e.EmailFrom, e.BrevoEmailFrom))
	set(&cfg.Email.SMTPLogin, e.BrevoSMTPLogin)

	set(&cfg.Store.Driver, e.StoreDriver)
	set(&cfg.Store.DSN, e.StoreDSN)
	set(&cfg.Store.DataDir, e.StoreDataDir)

	if e.RedisAddr != "" {
		cfg.Cache.Driver = "redis"
		if cfg.Cache.Drivers == nil {
			cfg.Cache.Drivers = make(map[string]any)
		}
		redisCfg := cfg.Cache.DriverConfig("redis")
		if redisCfg == nil {
			redisCfg = make(map[string]any)
			cfg.Cache.Drivers["redis"] = redisCfg
		}
		redisCfg["addr"] = e.RedisAddr
	}
	if e.NATSURL != "" {
		cfg.Events.Driver = "nats"
		cfg.Events.URL = e.NATSURL
	}
}
