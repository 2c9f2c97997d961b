// Package storetest provides the conformance suite every store driver runs.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
)

// NewInvite returns an invite fixture owned by aor.
func NewInvite(id, token, aor string, createdAt int64) *store.Invite {
	return &store.Invite{
		ID:        id,
		Email:     id + "@vendor.example",
		Role:      "Subcontractor",
		Status:    "Invited",
		Token:     token,
		Type:      "NETWORK_ONBOARDING",
		AoRAdmin:  aor,
		CreatedAt: createdAt,
		ExpiresAt: createdAt + 7*24*60*60*1000,
	}
}

// NewVendor returns a vendor fixture for an invite.
func NewVendor(id, inviteID, aor string, createdAt int64) *store.Vendor {
	return &store.Vendor{
		ID:          id,
		InviteID:    inviteID,
		Email:       inviteID + "@vendor.example",
		OrgObjectID: "0xorg-" + id,
		Name:        "Vendor " + id,
		Status:      "Active",
		AoRAdmin:    aor,
		CreatedAt:   createdAt,
	}
}

// RunDriverTests creates the named driver from cfg and runs the suite on it.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	t.Helper()
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("InviteCRUD", func(t *testing.T) {
		testInviteCRUD(t, ctx, driver)
	})
	t.Run("InviteUniqueness", func(t *testing.T) {
		testInviteUniqueness(t, ctx, driver)
	})
	t.Run("InvitesScopedByAoR", func(t *testing.T) {
		testInvitesScopedByAoR(t, ctx, driver)
	})
	t.Run("VendorCRUD", func(t *testing.T) {
		testVendorCRUD(t, ctx, driver)
	})
	t.Run("OneVendorPerInvite", func(t *testing.T) {
		testOneVendorPerInvite(t, ctx, driver)
	})
}

func testInviteCRUD(t *testing.T, ctx context.Context, s store.Store) {
	inv := NewInvite("inv-crud", "tok-crud", "0xaor-crud", 1_700_000_000_000)
	inv.OrderID = "order-7"

	if err := s.CreateInvite(ctx, inv); err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}

	got, err := s.GetInvite(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvite failed: %v", err)
	}
	if *got != *inv {
		t.Errorf("GetInvite = %+v, want %+v", got, inv)
	}

	got, err = s.GetInviteByToken(ctx, inv.Token)
	if err != nil {
		t.Fatalf("GetInviteByToken failed: %v", err)
	}
	if got.ID != inv.ID {
		t.Errorf("GetInviteByToken returned id %q, want %q", got.ID, inv.ID)
	}

	if err := s.UpdateInviteStatus(ctx, inv.ID, "Active"); err != nil {
		t.Fatalf("UpdateInviteStatus failed: %v", err)
	}
	got, _ = s.GetInvite(ctx, inv.ID)
	if got.Status != "Active" {
		t.Errorf("expected status Active, got %q", got.Status)
	}

	if _, err := s.GetInvite(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetInvite(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetInviteByToken(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetInviteByToken(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateInviteStatus(ctx, "missing", "Active"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateInviteStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func testInviteUniqueness(t *testing.T, ctx context.Context, s store.Store) {
	if err := s.CreateInvite(ctx, NewInvite("inv-u1", "tok-u", "0xaor-u", 1)); err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}
	if err := s.CreateInvite(ctx, NewInvite("inv-u2", "tok-u", "0xaor-u", 2)); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate token error = %v, want ErrAlreadyExists", err)
	}
	if err := s.CreateInvite(ctx, NewInvite("inv-u1", "tok-u3", "0xaor-u", 3)); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate id error = %v, want ErrAlreadyExists", err)
	}
}

func testInvitesScopedByAoR(t *testing.T, ctx context.Context, s store.Store) {
	for _, inv := range []*store.Invite{
		NewInvite("inv-s2", "tok-s2", "0xaor-s", 200),
		NewInvite("inv-s1", "tok-s1", "0xaor-s", 100),
		NewInvite("inv-other", "tok-other", "0xaor-other", 150),
	} {
		if err := s.CreateInvite(ctx, inv); err != nil {
			t.Fatalf("CreateInvite(%s) failed: %v", inv.ID, err)
		}
	}

	got, err := s.ListInvitesByAoR(ctx, "0xaor-s")
	if err != nil {
		t.Fatalf("ListInvitesByAoR failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 invites, got %d", len(got))
	}
	if got[0].ID != "inv-s1" || got[1].ID != "inv-s2" {
		t.Errorf("expected oldest first, got %s, %s", got[0].ID, got[1].ID)
	}

	empty, err := s.ListInvitesByAoR(ctx, "0xnobody")
	if err != nil {
		t.Fatalf("ListInvitesByAoR failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no invites, got %d", len(empty))
	}
}

func testVendorCRUD(t *testing.T, ctx context.Context, s store.Store) {
	v := NewVendor("ven-crud", "inv-crud", "0xaor-crud", 1_700_000_000_500)
	if err := s.CreateVendor(ctx, v); err != nil {
		t.Fatalf("CreateVendor failed: %v", err)
	}

	got, err := s.GetVendor(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVendor failed: %v", err)
	}
	if *got != *v {
		t.Errorf("GetVendor = %+v, want %+v", got, v)
	}

	got, err = s.GetVendorByInviteID(ctx, v.InviteID)
	if err != nil {
		t.Fatalf("GetVendorByInviteID failed: %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("GetVendorByInviteID returned id %q, want %q", got.ID, v.ID)
	}

	if err := s.UpdateVendorStatus(ctx, v.ID, "Inactive"); err != nil {
		t.Fatalf("UpdateVendorStatus failed: %v", err)
	}
	got, _ = s.GetVendor(ctx, v.ID)
	if got.Status != "Inactive" {
		t.Errorf("expected status Inactive, got %q", got.Status)
	}

	list, err := s.ListVendorsByAoR(ctx, "0xaor-crud")
	if err != nil {
		t.Fatalf("ListVendorsByAoR failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != v.ID {
		t.Errorf("ListVendorsByAoR = %+v, want [%s]", list, v.ID)
	}

	if _, err := s.GetVendor(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetVendor(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateVendorStatus(ctx, "missing", "Active"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateVendorStatus(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteVendor(ctx, v.ID); err != nil {
		t.Fatalf("DeleteVendor failed: %v", err)
	}
	if _, err := s.GetVendorByInviteID(ctx, v.InviteID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetVendorByInviteID after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteVendor(ctx, v.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteVendor(deleted) error = %v, want ErrNotFound", err)
	}
	// The invite is free again once its vendor is gone.
	if err := s.CreateVendor(ctx, NewVendor("ven-crud-2", v.InviteID, "0xaor-crud", 1_700_000_000_600)); err != nil {
		t.Errorf("CreateVendor after delete failed: %v", err)
	}
}

func testOneVendorPerInvite(t *testing.T, ctx context.Context, s store.Store) {
	if err := s.CreateVendor(ctx, NewVendor("ven-a", "inv-one", "0xaor-one", 1)); err != nil {
		t.Fatalf("CreateVendor failed: %v", err)
	}
	err := s.CreateVendor(ctx, NewVendor("ven-b", "inv-one", "0xaor-one", 2))
	if !errors.Is(err, store.ErrVendorExists) {
		t.Errorf("second vendor error = %v, want ErrVendorExists", err)
	}
}
