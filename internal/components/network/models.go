// Package network manages the vendor network of an Authority of Record:
// invitations sent by email, their acceptance or rejection, and the vendors
// onboarded from them.
package network

import (
	"errors"
	"time"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
)

// Invite statuses.
const (
	StatusInvited  = "Invited"
	StatusActive   = "Active"
	StatusRejected = "Rejected"
)

// Vendor statuses.
const (
	VendorActive   = "Active"
	VendorInactive = "Inactive"
)

// Invite defaults.
const (
	DefaultRole      = "Subcontractor"
	TypeOnboarding   = "NETWORK_ONBOARDING"
	DefaultInviteTTL = 7 * 24 * time.Hour
)

var (
	ErrInviteNotFound   = errors.New("invite not found")
	ErrVendorNotFound   = errors.New("vendor not found")
	ErrInviteExpired    = errors.New("invite has expired")
	ErrInviteNotPending = errors.New("invite is no longer pending")
	ErrInvalidStatus    = errors.New("invalid status")

	// ErrVendorExists aliases the store sentinel so callers need one import.
	ErrVendorExists = store.ErrVendorExists
)

// NewInvite is the input of CreateInvite.
type NewInvite struct {
	Email    string
	AoRAdmin string
	Role     string
	Type     string
	OrderID  string

	// TTL of zero means DefaultInviteTTL.
	TTL time.Duration
}

// NewVendor is the input of CreateVendor.
type NewVendor struct {
	InviteID    string
	Email       string
	OrgObjectID string
	Name        string
	AoRAdmin    string
}

// AcceptRequest is the body of POST /api/invite/{token}/accept.
type AcceptRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	OrgObjectID string `json:"org_object_id" validate:"required"`
}

// Entry is one row of the merged vendor list.
type Entry struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Name        *string `json:"name"`
	Status      string  `json:"status"`
	OrgObjectID *string `json:"org_object_id"`
	InviteID    string  `json:"invite_id"`
}

// InviteView is the public projection of an invite. The token is omitted.
type InviteView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	AoRAdmin  string `json:"aor_admin"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt *int64 `json:"expires_at"`
	Expired   bool   `json:"expired"`
}

func viewOf(inv *store.Invite, now time.Time) InviteView {
	v := InviteView{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		Status:    inv.Status,
		Type:      inv.Type,
		AoRAdmin:  inv.AoRAdmin,
		CreatedAt: inv.CreatedAt,
		Expired:   expired(inv, now),
	}
	if inv.ExpiresAt > 0 {
		exp := inv.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

func expired(inv *store.Invite, now time.Time) bool {
	return inv.ExpiresAt > 0 && now.UnixMilli() > inv.ExpiresAt
}

// inviteEvent is the payload of invite events. Tokens never leave the store.
type inviteEvent struct {
	InviteID string `json:"invite_id"`
	Email    string `json:"email"`
	AoRAdmin string `json:"aor_admin"`
	Status   string `json:"status"`
	VendorID string `json:"vendor_id,omitempty"`
}
