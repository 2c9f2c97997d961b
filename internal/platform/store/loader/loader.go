// Package loader registers store drivers via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/json"
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/postgres"
	_ "github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/sqlite"
)
