// Package appctx carries request-scoped values through context.Context:
// the enriched logger and the caller's wallet address.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type walletKey struct{}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// GetLogger returns the logger from the context, or slog.Default() if missing.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return slog.Default()
}

// WithWallet records the authenticated wallet address.
func WithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletKey{}, wallet)
}

// WalletFromContext returns the wallet set by the auth gate.
func WalletFromContext(ctx context.Context) (string, bool) {
	w, ok := ctx.Value(walletKey{}).(string)
	return w, ok && w != ""
}
