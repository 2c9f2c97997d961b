// Package json implements a JSON file-based persistence driver.
// Every write rewrites the affected collection file atomically.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
)

const (
	invitesFile = "invites.json"
	vendorsFile = "vendors.json"
)

func init() {
	store.Register("json", NewDriver)
}

// Driver implements store.Store on two JSON files.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	invites map[string]*store.Invite // keyed by id
	vendors map[string]*store.Vendor // keyed by id

	// Secondary indexes, rebuilt on load
	byToken  map[string]string
	byInvite map[string]string
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir:  cfg.DataDir,
		invites:  make(map[string]*store.Invite),
		vendors:  make(map[string]*store.Vendor),
		byToken:  make(map[string]string),
		byInvite: make(map[string]string),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from the JSON files, if present.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	if err := d.loadFile(invitesFile, &d.invites); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load invites: %w", err)
	}
	if err := d.loadFile(vendorsFile, &d.vendors); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load vendors: %w", err)
	}

	d.rebuildIndexes()
	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) loadFile(filename string, target any) error {
	data, err := os.ReadFile(filepath.Join(d.dataDir, filename))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func (d *Driver) save(filename string, data any) error {
	return store.WriteJSONAtomic(filepath.Join(d.dataDir, filename), data)
}

func (d *Driver) rebuildIndexes() {
	if d.invites == nil {
		d.invites = make(map[string]*store.Invite)
	}
	if d.vendors == nil {
		d.vendors = make(map[string]*store.Vendor)
	}
	d.byToken = make(map[string]string, len(d.invites))
	d.byInvite = make(map[string]string, len(d.vendors))
	for id, inv := range d.invites {
		d.byToken[inv.Token] = id
	}
	for id, v := range d.vendors {
		d.byInvite[v.InviteID] = id
	}
}

// CreateInvite adds an invite and persists the invite file.
func (d *Driver) CreateInvite(ctx context.Context, invite *store.Invite) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	if _, exists := d.invites[invite.ID]; exists {
		return store.ErrAlreadyExists
	}
	if _, exists := d.byToken[invite.Token]; exists {
		return store.ErrAlreadyExists
	}

	d.invites[invite.ID] = invite.Clone()
	d.byToken[invite.Token] = invite.ID

	if err := d.save(invitesFile, d.invites); err != nil {
		delete(d.invites, invite.ID)
		delete(d.byToken, invite.Token)
		return err
	}
	return nil
}

// GetInvite retrieves an invite by id.
func (d *Driver) GetInvite(ctx context.Context, id string) (*store.Invite, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	inv, ok := d.invites[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return inv.Clone(), nil
}

// GetInviteByToken retrieves an invite by its token.
func (d *Driver) GetInviteByToken(ctx context.Context, token string) (*store.Invite, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	id, ok := d.byToken[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	inv, ok := d.invites[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return inv.Clone(), nil
}

// UpdateInviteStatus sets the status of an existing invite.
func (d *Driver) UpdateInviteStatus(ctx context.Context, id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	inv, ok := d.invites[id]
	if !ok {
		return store.ErrNotFound
	}

	prev := inv.Status
	inv.Status = status
	if err := d.save(invitesFile, d.invites); err != nil {
		inv.Status = prev
		return err
	}
	return nil
}

// ListInvitesByAoR returns the invites sent by an AoR admin.
func (d *Driver) ListInvitesByAoR(ctx context.Context, aorAdmin string) ([]*store.Invite, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	invites := make([]*store.Invite, 0)
	for _, inv := range d.invites {
		if inv.AoRAdmin == aorAdmin {
			invites = append(invites, inv.Clone())
		}
	}
	store.SortInvites(invites)
	return invites, nil
}

// CreateVendor adds a vendor. A second vendor for the same invite is rejected.
func (d *Driver) CreateVendor(ctx context.Context, vendor *store.Vendor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	if _, exists := d.byInvite[vendor.InviteID]; exists {
		return store.ErrVendorExists
	}
	if _, exists := d.vendors[vendor.ID]; exists {
		return store.ErrAlreadyExists
	}

	d.vendors[vendor.ID] = vendor.Clone()
	d.byInvite[vendor.InviteID] = vendor.ID

	if err := d.save(vendorsFile, d.vendors); err != nil {
		delete(d.vendors, vendor.ID)
		delete(d.byInvite, vendor.InviteID)
		return err
	}
	return nil
}

// GetVendor retrieves a vendor by id.
func (d *Driver) GetVendor(ctx context.Context, id string) (*store.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	v, ok := d.vendors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v.Clone(), nil
}

// GetVendorByInviteID retrieves the vendor created from an invite.
func (d *Driver) GetVendorByInviteID(ctx context.Context, inviteID string) (*store.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	id, ok := d.byInvite[inviteID]
	if !ok {
		return nil, store.ErrNotFound
	}
	v, ok := d.vendors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v.Clone(), nil
}

// DeleteVendor removes a vendor and frees its invite.
func (d *Driver) DeleteVendor(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	v, ok := d.vendors[id]
	if !ok {
		return store.ErrNotFound
	}

	delete(d.vendors, id)
	delete(d.byInvite, v.InviteID)
	if err := d.save(vendorsFile, d.vendors); err != nil {
		d.vendors[id] = v
		d.byInvite[v.InviteID] = id
		return err
	}
	return nil
}

// UpdateVendorStatus sets the status of an existing vendor.
func (d *Driver) UpdateVendorStatus(ctx context.Context, id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	v, ok := d.vendors[id]
	if !ok {
		return store.ErrNotFound
	}

	prev := v.Status
	v.Status = status
	if err := d.save(vendorsFile, d.vendors); err != nil {
		v.Status = prev
		return err
	}
	return nil
}

// ListVendorsByAoR returns the vendors onboarded by an AoR admin.
func (d *Driver) ListVendorsByAoR(ctx context.Context, aorAdmin string) ([]*store.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	vendors := make([]*store.Vendor, 0)
	for _, v := range d.vendors {
		if v.AoRAdmin == aorAdmin {
			vendors = append(vendors, v.Clone())
		}
	}
	store.SortVendors(vendors)
	return vendors, nil
}

// Compile-time interface check
var _ store.Store = (*Driver)(nil)
