// Package ratelimit provides a rate limiting interceptor using the cache subsystem.
package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/tanzanite-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/tanzanite-go/internal/interceptors"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/cache"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/deps"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Key strategies.
const (
	KeyByWallet = "wallet"
	KeyByIP     = "ip"
)

// MsgTooManyRequests is the 429 message.
const MsgTooManyRequests = "Trop de requêtes. Veuillez réessayer plus tard."

// Config defines rate limiting parameters decoded from interceptor config.
type Config struct {
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`

	// KeyBy is "wallet" (falls back to the client IP when the request
	// carries no wallet) or "ip".
	KeyBy string `mapstructure:"key_by"`

	// Scope namespaces the counters so profiles do not share buckets.
	Scope string `mapstructure:"scope"`
}

// ApplyDefaults sets reasonable defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
	if c.KeyBy == "" {
		c.KeyBy = KeyByWallet
	}
	if c.Scope == "" {
		c.Scope = "default"
	}
}

// Limiter provides rate limiting using a cache backend with trusted-proxy-aware keying.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	scope   string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New creates a new ratelimit interceptor from the given config.
// The config should be the profile config from [http.interceptors.ratelimit.profiles.<name>].
func New(conf map[string]any, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()

	d := deps.GetDeps()
	if d == nil || d.Cache == nil {
		return nil, errors.New("ratelimit: shared cache not initialized")
	}

	ipKey := func(r *http.Request) string { return "ip:" + r.RemoteAddr }
	if d.RealIP != nil {
		ipKey = func(r *http.Request) string { return "ip:" + d.RealIP.GetClientIPString(r) }
	}

	var keyFunc func(*http.Request) string
	switch c.KeyBy {
	case KeyByIP:
		keyFunc = ipKey
	case KeyByWallet:
		keyFunc = WalletOr(ipKey)
	default:
		return nil, errors.New("ratelimit: key_by must be wallet or ip")
	}

	limiter := &Limiter{
		cache:   d.Cache,
		keyFunc: keyFunc,
		scope:   c.Scope,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
	}

	return limiter.Wrap, nil
}

// WalletOr keys a request by the wallet set by the auth gate and uses
// fallback for anonymous requests.
func WalletOr(fallback func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		if wallet, ok := appctx.WalletFromContext(r.Context()); ok {
			return "wallet:" + wallet
		}
		return fallback(r)
	}
}

// Wrap is the middleware function that applies rate limiting.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)
		count, resetAt, err := l.cache.Increment(r.Context(), "ratelimit:"+l.scope+":"+key, 1, l.window)
		if err != nil {
			// On error, log and allow the request through
			l.log.Warn("rate limit check failed", "scope", l.scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			appctx.GetLogger(r.Context()).Warn("rate limited", "scope", l.scope, "count", count)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, MsgTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithKeyFunc returns a new Limiter with a custom key function.
// This allows services to use different keying strategies if needed.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	return &Limiter{
		cache:   l.cache,
		keyFunc: fn,
		scope:   l.scope,
		limit:   l.limit,
		window:  l.window,
		log:     l.log,
	}
}
