// Package mirror implements a SQLite + JSON mirror persistence driver.
// SQLite is the source of truth; JSON is a one-way export for operators.
// The program MUST NOT read JSON as input.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/gormstore"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store/sqlite"
)

// ScopeInviteTokens allows invite tokens in the export.
const ScopeInviteTokens = "invite_tokens"

func init() {
	store.Register("mirror", NewDriver)
}

// Driver is a sqlite store that re-exports both collections after each write.
type Driver struct {
	*gormstore.Store

	mirrorDir     string
	mirrorCfg     store.MirrorConfig
	secretsLookup map[string]bool
	mu            sync.Mutex // serializes exports
}

// NewDriver creates a new mirror driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for mirror driver")
	}

	lookup := make(map[string]bool)
	for _, scope := range cfg.Mirror.SecretsScope {
		lookup[scope] = true
	}

	d := &Driver{
		Store:         gormstore.New("mirror", sqlite.Opener(cfg.DataDir)),
		mirrorDir:     filepath.Join(cfg.DataDir, "mirror"),
		mirrorCfg:     cfg.Mirror,
		secretsLookup: lookup,
	}
	d.Store.AfterWrite = d.exportAll
	return d, nil
}

// Init opens the database and writes the initial export.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.mirrorDir, 0700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}
	if err := d.Store.Init(ctx); err != nil {
		return err
	}
	if err := d.exportAll(ctx); err != nil {
		return fmt.Errorf("failed to export mirror: %w", err)
	}
	return nil
}

func (d *Driver) shouldIncludeSecret(scope string) bool {
	if !d.mirrorCfg.IncludeSecrets {
		return false
	}
	return d.secretsLookup[scope]
}

func (d *Driver) exportAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var invites []*store.Invite
	if err := d.DB().WithContext(ctx).Order("created_at ASC, id ASC").Find(&invites).Error; err != nil {
		return err
	}
	if !d.shouldIncludeSecret(ScopeInviteTokens) {
		for _, inv := range invites {
			inv.Token = ""
		}
	}
	if err := store.WriteJSONAtomic(filepath.Join(d.mirrorDir, "invites.json"), invites); err != nil {
		return err
	}

	var vendors []*store.Vendor
	if err := d.DB().WithContext(ctx).Order("created_at ASC, id ASC").Find(&vendors).Error; err != nil {
		return err
	}
	return store.WriteJSONAtomic(filepath.Join(d.mirrorDir, "vendors.json"), vendors)
}

var _ store.Store = (*Driver)(nil)
