// Package service defines the HTTP service contract and the registry that
// constructs services by name.
package service

import (
	"log/slog"
	"net/http"
)

// Service represents an HTTP service that can be registered and mounted.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error

	// Unprotected lists paths, relative to the prefix, served without a
	// wallet identity. Each entry also covers its subpaths.
	Unprotected() []string
}

// ProtectedPaths is implemented by services whose unprotected subtrees
// contain paths that still need a wallet identity.
type ProtectedPaths interface {
	Protected() []string
}

// NewService is the constructor function type for services.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)
