// Package postgres implements a PostgreSQL persistence driver using GORM and pgx.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/gormstore"
)

func init() {
	store.Register("postgres", NewDriver)
}

// NewDriver creates a new PostgreSQL driver instance. The connection is
// opened on Init.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required for postgres driver")
	}
	dsn := cfg.DSN
	return gormstore.New("postgres", func() (gorm.Dialector, error) {
		return postgres.Open(dsn), nil
	}), nil
}
