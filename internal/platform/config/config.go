// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the externally visible origin used to build invite links.
	// Example: "https://app.tanzanite.example"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on.
	ListenAddr string `toml:"listen_addr"`

	Server       ServerConfig       `toml:"server"`
	TLS          TLSConfig          `toml:"tls"`
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`
	Logging      LoggingConfig      `toml:"logging"`

	// Ledger identifies the chain endpoint and the deployed registry package.
	Ledger LedgerConfig `toml:"ledger"`

	// Sponsor is the gas-sponsorship relay that executes built transactions.
	Sponsor SponsorConfig `toml:"sponsor"`

	// Session configures wallet identity resolution.
	Session SessionConfig `toml:"session"`

	Email   EmailConfig   `toml:"email"`
	Store   StoreConfig   `toml:"store"`
	Cache   CacheConfig   `toml:"cache"`
	Events  EventsConfig  `toml:"events"`
	Invites InvitesConfig `toml:"invites"`

	// HTTP holds per-service HTTP configuration.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	Services map[string]map[string]any `toml:"services"`

	// Ratelimit profiles live at [http.interceptors.ratelimit.profiles.<name>].
	// Per-service opt-in is [http.services.<svc>.ratelimit] with profile = "<name>".
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies lists CIDRs whose X-Forwarded-* headers are honored.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme
	Mode string `toml:"mode"`

	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// HTTPPort serves ACME challenges and redirects in acme mode.
	HTTPPort  int `toml:"http_port"`
	HTTPSPort int `toml:"https_port"`

	SelfSignedDir string `toml:"self_signed_dir"`

	ACME ACMEConfig `toml:"acme"`
}

// ACMEConfig holds ACME/Let's Encrypt settings.
type ACMEConfig struct {
	Email      string `toml:"email"`
	Domain     string `toml:"domain"`
	Directory  string `toml:"directory"`
	StorageDir string `toml:"storage_dir"`
	UseStaging bool   `toml:"use_staging"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	TimeoutMS        int   `toml:"timeout_ms"`
	ConnectTimeoutMS int   `toml:"connect_timeout_ms"`
	MaxRedirects     int   `toml:"max_redirects"`
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`

	// AllowedHosts bypass the SSRF private-address check (e.g. a sidecar relay).
	AllowedHosts []string `toml:"allowed_hosts"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `toml:"level"`
}

// LedgerConfig points at the chain RPC and the registry deployment.
type LedgerConfig struct {
	RPCURL     string `toml:"rpc_url"`
	PackageID  string `toml:"package_id"`
	RegistryID string `toml:"registry_id"`

	// GasBudget is attached to built transactions (MIST).
	GasBudget uint64 `toml:"gas_budget"`
}

// SponsorConfig configures the sponsored transaction relay.
type SponsorConfig struct {
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key"`
	TimeoutMS int    `toml:"timeout_ms"`
}

// SessionConfig configures wallet identity resolution.
type SessionConfig struct {
	// Secret keys the signed session cookie. At least 32 characters when set.
	Secret string `toml:"secret"`

	CookieName string `toml:"cookie_name"`

	// LookupURL is the identity endpoint base (GET <url>/api/auth/me).
	// Empty disables the lookup and only the session cookie is used.
	LookupURL string `toml:"lookup_url"`
}

// EmailConfig configures invitation email delivery.
type EmailConfig struct {
	// APIKey selects the transport by prefix: "" simulates, "xkeysib-" uses the
	// HTTP API, "xsmtpsib-" uses the SMTP relay.
	APIKey   string `toml:"api_key"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`

	// SMTPLogin defaults to From when empty.
	SMTPLogin string `toml:"smtp_login"`
	SMTPHost  string `toml:"smtp_host"`
	SMTPPort  int    `toml:"smtp_port"`

	APIURL string `toml:"api_url"`
}

// StoreConfig selects the document store driver.
type StoreConfig struct {
	// Driver is one of: memory, json, sqlite, mirror, postgres
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
	DSN     string `toml:"dsn"`

	Mirror MirrorConfig `toml:"mirror"`
}

// MirrorConfig controls the JSON export of the mirror driver.
type MirrorConfig struct {
	// IncludeSecrets exports invite tokens when "invite_tokens" is in SecretsScope.
	IncludeSecrets bool     `toml:"include_secrets"`
	SecretsScope   []string `toml:"secrets_scope"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is one of: memory, redis
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// EventsConfig selects the domain event publisher.
type EventsConfig struct {
	// Driver is one of: none, nats
	Driver        string `toml:"driver"`
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// InvitesConfig holds invitation defaults.
type InvitesConfig struct {
	TTLDays     int    `toml:"ttl_days"`
	DefaultRole string `toml:"default_role"`

	// AoRName is shown in invitation emails.
	AoRName string `toml:"aor_name"`
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// DriverConfig returns the [cache.drivers.<name>] table, or nil.
func (c *CacheConfig) DriverConfig(name string) map[string]any {
	if c.Drivers == nil {
		return nil
	}
	m, _ := c.Drivers[name].(map[string]any)
	return m
}

// InviteURL builds the onboarding link sent to invited vendors.
func (c *Config) InviteURL(token string) string {
	return strings.TrimSuffix(c.PublicOrigin, "/") + "/register-company?token=" + url.QueryEscape(token)
}

func redact(s string) string {
	if s == "" {
		return `""`
	}
	return "[REDACTED]"
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  PublicOrigin: %q,\n", c.PublicOrigin)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	fmt.Fprintf(&sb, "  Server: {TrustedProxies: %v},\n", c.Server.TrustedProxies)
	fmt.Fprintf(&sb, "  TLS: {Mode: %q, CertFile: %q, KeyFile: %q, ACME.Domain: %q},\n",
		c.TLS.Mode, c.TLS.CertFile, c.TLS.KeyFile, c.TLS.ACME.Domain)
	fmt.Fprintf(&sb, "  OutboundHTTP: {SSRFMode: %q, TimeoutMS: %d, MaxRedirects: %d, InsecureSkipVerify: %v},\n",
		c.OutboundHTTP.SSRFMode, c.OutboundHTTP.TimeoutMS, c.OutboundHTTP.MaxRedirects, c.OutboundHTTP.InsecureSkipVerify)
	fmt.Fprintf(&sb, "  Logging: {Level: %q},\n", c.Logging.Level)
	fmt.Fprintf(&sb, "  Ledger: {RPCURL: %q, PackageID: %q, RegistryID: %q, GasBudget: %d},\n",
		c.Ledger.RPCURL, c.Ledger.PackageID, c.Ledger.RegistryID, c.Ledger.GasBudget)
	fmt.Fprintf(&sb, "  Sponsor: {URL: %q, APIKey: %s},\n", c.Sponsor.URL, redact(c.Sponsor.APIKey))
	fmt.Fprintf(&sb, "  Session: {Secret: %s, CookieName: %q, LookupURL: %q},\n",
		redact(c.Session.Secret), c.Session.CookieName, c.Session.LookupURL)
	fmt.Fprintf(&sb, "  Email: {APIKey: %s, From: %q, SMTPHost: %q},\n",
		redact(c.Email.APIKey), c.Email.From, c.Email.SMTPHost)
	fmt.Fprintf(&sb, "  Store: {Driver: %q, DataDir: %q, DSN: %s},\n", c.Store.Driver, c.Store.DataDir, redact(c.Store.DSN))
	fmt.Fprintf(&sb, "  Cache: {Driver: %q},\n", c.Cache.Driver)
	fmt.Fprintf(&sb, "  Events: {Driver: %q, URL: %q, SubjectPrefix: %q},\n", c.Events.Driver, c.Events.URL, c.Events.SubjectPrefix)
	fmt.Fprintf(&sb, "  Invites: {TTLDays: %d, DefaultRole: %q},\n", c.Invites.TTLDays, c.Invites.DefaultRole)

	names := make([]string, 0, len(c.HTTP.Services))
	for name := range c.HTTP.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "  HTTP: {Services: %q},\n", names)
	sb.WriteString("}")
	return sb.String()
}
