// Package loader triggers service and interceptor registration via blank
// imports. Import this package to make every service constructible by name.
package loader

import (
	// Interceptors register before services that look them up.
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/interceptors/ratelimit"

	_ "github.com/MahdiBaghbani/tanzanite-go/internal/services/api"
)
