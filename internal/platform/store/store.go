// Package store provides persistence primitives and driver abstractions for
// invites and vendors.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")

	// ErrVendorExists is returned when a vendor already exists for an invite.
	ErrVendorExists = errors.New("vendor already exists for invite")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, json, sqlite, mirror, postgres).
	Name() string
}

// InviteStore persists invites. Tokens are unique across all invites.
type InviteStore interface {
	CreateInvite(ctx context.Context, invite *Invite) error
	GetInvite(ctx context.Context, id string) (*Invite, error)
	GetInviteByToken(ctx context.Context, token string) (*Invite, error)
	UpdateInviteStatus(ctx context.Context, id, status string) error
	ListInvitesByAoR(ctx context.Context, aorAdmin string) ([]*Invite, error)
}

// VendorStore persists vendors. At most one vendor exists per invite.
type VendorStore interface {
	CreateVendor(ctx context.Context, vendor *Vendor) error
	GetVendor(ctx context.Context, id string) (*Vendor, error)
	GetVendorByInviteID(ctx context.Context, inviteID string) (*Vendor, error)
	UpdateVendorStatus(ctx context.Context, id, status string) error
	DeleteVendor(ctx context.Context, id string) error
	ListVendorsByAoR(ctx context.Context, aorAdmin string) ([]*Vendor, error)
}

// Store is a driver serving both collections.
type Store interface {
	Driver
	InviteStore
	VendorStore
}

// Invite is a network onboarding invitation. Timestamps are Unix milliseconds.
type Invite struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Token     string `json:"token,omitempty" gorm:"uniqueIndex"`
	OrderID   string `json:"order_id,omitempty"`
	Type      string `json:"type"`
	AoRAdmin  string `json:"aor_admin" gorm:"column:aor_admin;index"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// Vendor is an onboarded organisation created by accepting an invite.
type Vendor struct {
	ID              string `json:"id" gorm:"primaryKey"`
	InviteID        string `json:"invite_id" gorm:"uniqueIndex"`
	Email           string `json:"email"`
	OrgObjectID     string `json:"org_object_id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	ReputationScore int    `json:"reputation_score"`
	AoRAdmin        string `json:"aor_admin" gorm:"column:aor_admin;index"`
	CreatedAt       int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

// Clone returns a copy safe to hand out from in-process drivers.
func (i *Invite) Clone() *Invite {
	c := *i
	return &c
}

// Clone returns a copy safe to hand out from in-process drivers.
func (v *Vendor) Clone() *Vendor {
	c := *v
	return &c
}
