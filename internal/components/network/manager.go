package network

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
)

// Manager owns invite and vendor records.
type Manager struct {
	store       store.Store
	defaultRole string
	now         func() time.Time
}

// NewManager returns a manager over st. An empty defaultRole means DefaultRole.
func NewManager(st store.Store, defaultRole string) *Manager {
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	return &Manager{store: st, defaultRole: defaultRole, now: time.Now}
}

// GenerateToken returns 32 random bytes, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// PrepareInvite builds an Invited record with a fresh id and token without
// writing it.
func (m *Manager) PrepareInvite(in NewInvite) (*store.Invite, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	role := in.Role
	if role == "" {
		role = m.defaultRole
	}
	typ := in.Type
	if typ == "" {
		typ = TypeOnboarding
	}
	now := m.now()
	return &store.Invite{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Role:      role,
		Status:    StatusInvited,
		Token:     token,
		OrderID:   in.OrderID,
		Type:      typ,
		AoRAdmin:  in.AoRAdmin,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}, nil
}

// SaveInvite writes a prepared invite.
func (m *Manager) SaveInvite(ctx context.Context, inv *store.Invite) error {
	if err := m.store.CreateInvite(ctx, inv); err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// CreateInvite prepares and writes an invite.
func (m *Manager) CreateInvite(ctx context.Context, in NewInvite) (*store.Invite, error) {
	inv, err := m.PrepareInvite(in)
	if err != nil {
		return nil, err
	}
	if err := m.SaveInvite(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// FindInviteByToken returns the invite holding token. Unknown and mismatched
// tokens both yield ErrInviteNotFound.
func (m *Manager) FindInviteByToken(ctx context.Context, token string) (*store.Invite, error) {
	if token == "" {
		return nil, ErrInviteNotFound
	}
	inv, err := m.store.GetInviteByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invite by token: %w", err)
	}
	if inv.Token != token {
		return nil, ErrInviteNotFound
	}
	return inv, nil
}

// FindInviteByID returns the invite with id.
func (m *Manager) FindInviteByID(ctx context.Context, id string) (*store.Invite, error) {
	inv, err := m.store.GetInvite(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invite: %w", err)
	}
	return inv, nil
}

// UpdateInviteStatus sets the status of invite id. The prior status is not
// checked; AcceptInvite and RejectInvite do that.
func (m *Manager) UpdateInviteStatus(ctx context.Context, id, status string) error {
	switch status {
	case StatusInvited, StatusActive, StatusRejected:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	err := m.store.UpdateInviteStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInviteNotFound
	}
	if err != nil {
		return fmt.Errorf("update invite status: %w", err)
	}
	return nil
}

// FindInvitesByAoR lists the invites sent by aorAdmin.
func (m *Manager) FindInvitesByAoR(ctx context.Context, aorAdmin string) ([]*store.Invite, error) {
	invites, err := m.store.ListInvitesByAoR(ctx, aorAdmin)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}

// FindVendorsByAoR lists the vendors onboarded by aorAdmin.
func (m *Manager) FindVendorsByAoR(ctx context.Context, aorAdmin string) ([]*store.Vendor, error) {
	vendors, err := m.store.ListVendorsByAoR(ctx, aorAdmin)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	return vendors, nil
}

// CreateVendor writes an Active vendor with a zero reputation score.
func (m *Manager) CreateVendor(ctx context.Context, in NewVendor) (*store.Vendor, error) {
	v := &store.Vendor{
		ID:          uuid.NewString(),
		InviteID:    in.InviteID,
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		OrgObjectID: in.OrgObjectID,
		Name:        in.Name,
		Status:      VendorActive,
		AoRAdmin:    in.AoRAdmin,
		CreatedAt:   m.now().UnixMilli(),
	}
	if err := m.store.CreateVendor(ctx, v); err != nil {
		if errors.Is(err, store.ErrVendorExists) {
			return nil, ErrVendorExists
		}
		return nil, fmt.Errorf("failed to create vendor: %w", err)
	}
	return v, nil
}

// FindVendorByID returns the vendor with id.
func (m *Manager) FindVendorByID(ctx context.Context, id string) (*store.Vendor, error) {
	v, err := m.store.GetVendor(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	return v, nil
}

// FindVendorByInviteID returns the vendor onboarded from invite inviteID.
func (m *Manager) FindVendorByInviteID(ctx context.Context, inviteID string) (*store.Vendor, error) {
	v, err := m.store.GetVendorByInviteID(ctx, inviteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vendor by invite: %w", err)
	}
	return v, nil
}

// UpdateVendorStatus sets a vendor Active or Inactive.
func (m *Manager) UpdateVendorStatus(ctx context.Context, id, status string) error {
	if status != VendorActive && status != VendorInactive {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	err := m.store.UpdateVendorStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return ErrVendorNotFound
	}
	if err != nil {
		return fmt.Errorf("update vendor status: %w", err)
	}
	return nil
}

// AcceptInvite onboards a vendor against the invite holding token and
// flips the invite to Active.
func (m *Manager) AcceptInvite(ctx context.Context, token string, req AcceptRequest) (*store.Vendor, *store.Invite, error) {
	inv, err := m.FindInviteByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if expired(inv, m.now()) {
		return nil, nil, ErrInviteExpired
	}
	if inv.Status != StatusInvited {
		return nil, nil, ErrInviteNotPending
	}
	if _, err := m.FindVendorByInviteID(ctx, inv.ID); err == nil {
		return nil, nil, ErrVendorExists
	} else if !errors.Is(err, ErrVendorNotFound) {
		return nil, nil, err
	}

	v, err := m.CreateVendor(ctx, NewVendor{
		InviteID:    inv.ID,
		Email:       inv.Email,
		OrgObjectID: req.OrgObjectID,
		Name:        req.Name,
		AoRAdmin:    inv.AoRAdmin,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := m.UpdateInviteStatus(ctx, inv.ID, StatusActive); err != nil {
		// Roll the vendor back so the invite can be accepted again.
		if derr := m.store.DeleteVendor(ctx, v.ID); derr != nil {
			return nil, nil, fmt.Errorf("%w (vendor rollback: %v)", err, derr)
		}
		return nil, nil, err
	}
	inv.Status = StatusActive
	return v, inv, nil
}

// RejectInvite flips a pending invite to Rejected.
func (m *Manager) RejectInvite(ctx context.Context, token string) (*store.Invite, error) {
	inv, err := m.FindInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusInvited {
		return nil, ErrInviteNotPending
	}
	if err := m.UpdateInviteStatus(ctx, inv.ID, StatusRejected); err != nil {
		return nil, err
	}
	inv.Status = StatusRejected
	return inv, nil
}

// ListNetwork merges the pending invites and the vendors of aorAdmin. Every
// Invited entry precedes every vendor entry.
func (m *Manager) ListNetwork(ctx context.Context, aorAdmin string) ([]Entry, error) {
	invites, err := m.FindInvitesByAoR(ctx, aorAdmin)
	if err != nil {
		return nil, err
	}
	vendors, err := m.FindVendorsByAoR(ctx, aorAdmin)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(invites)+len(vendors))
	for _, inv := range invites {
		if inv.Status != StatusInvited {
			continue
		}
		entries = append(entries, Entry{
			ID:       inv.ID,
			Email:    inv.Email,
			Status:   StatusInvited,
			InviteID: inv.ID,
		})
	}
	for _, v := range vendors {
		name, org := v.Name, v.OrgObjectID
		entries = append(entries, Entry{
			ID:          v.ID,
			Email:       v.Email,
			Name:        &name,
			Status:      v.Status,
			OrgObjectID: &org,
			InviteID:    v.InviteID,
		})
	}
	return entries, nil
}
