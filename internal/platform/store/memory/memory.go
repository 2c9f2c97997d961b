// Package memory implements an in-process store driver. Data is lost on exit.
package memory

import (
	"context"
	"sync"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
)

func init() {
	store.Register("memory", func(*store.DriverConfig) (store.Store, error) {
		return New(), nil
	})
}

// Driver keeps invites and vendors in maps guarded by a RWMutex.
type Driver struct {
	mu     sync.RWMutex
	closed bool

	invites map[string]*store.Invite // keyed by id
	vendors map[string]*store.Vendor // keyed by id

	byToken  map[string]string // token -> invite id
	byInvite map[string]string // invite id -> vendor id
}

// New returns an empty driver. Init is a no-op.
func New() *Driver {
	return &Driver{
		invites:  make(map[string]*store.Invite),
		vendors:  make(map[string]*store.Vendor),
		byToken:  make(map[string]string),
		byInvite: make(map[string]string),
	}
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op.
func (d *Driver) Init(ctx context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) CreateInvite(ctx context.Context, invite *store.Invite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}
	if _, ok := d.invites[invite.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := d.byToken[invite.Token]; ok {
		return store.ErrAlreadyExists
	}
	d.invites[invite.ID] = invite.Clone()
	d.byToken[invite.Token] = invite.ID
	return nil
}

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
	return d.invites[id].Clone(), nil
}

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
	inv.Status = status
	return nil
}

func (d *Driver) ListInvitesByAoR(ctx context.Context, aorAdmin string) ([]*store.Invite, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}
	out := make([]*store.Invite, 0)
	for _, inv := range d.invites {
		if inv.AoRAdmin == aorAdmin {
			out = append(out, inv.Clone())
		}
	}
	store.SortInvites(out)
	return out, nil
}

func (d *Driver) CreateVendor(ctx context.Context, vendor *store.Vendor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}
	if _, ok := d.byInvite[vendor.InviteID]; ok {
		return store.ErrVendorExists
	}
	if _, ok := d.vendors[vendor.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.vendors[vendor.ID] = vendor.Clone()
	d.byInvite[vendor.InviteID] = vendor.ID
	return nil
}

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
	return d.vendors[id].Clone(), nil
}

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
	v.Status = status
	return nil
}

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
	return nil
}

func (d *Driver) ListVendorsByAoR(ctx context.Context, aorAdmin string) ([]*store.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}
	out := make([]*store.Vendor, 0)
	for _, v := range d.vendors {
		if v.AoRAdmin == aorAdmin {
			out = append(out, v.Clone())
		}
	}
	store.SortVendors(out)
	return out, nil
}

var _ store.Store = (*Driver)(nil)
