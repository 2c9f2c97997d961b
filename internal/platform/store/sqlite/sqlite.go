// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/gormstore"
)

// DBFile is the database file name inside the data directory.
const DBFile = "tanzanite.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return gormstore.New("sqlite", Opener(cfg.DataDir)), nil
}

// Opener creates dataDir and opens DBFile inside it.
func Opener(dataDir string) gormstore.Opener {
	return func() (gorm.Dialector, error) {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return sqlite.Open(filepath.Join(dataDir, DBFile)), nil
	}
}
