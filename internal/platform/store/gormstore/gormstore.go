// Package gormstore implements store.Store on GORM. The sqlite, mirror and
// postgres drivers share it and differ in dialector and write hooks.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/store"
)

// Opener returns the dialector to connect with. It runs during Init.
type Opener func() (gorm.Dialector, error)

// Store is a GORM-backed store.Store.
type Store struct {
	name string
	open Opener
	db   *gorm.DB

	// AfterWrite runs after every successful write. An error is returned to
	// the caller; the write itself is not undone.
	AfterWrite func(ctx context.Context) error
}

// New returns a store that connects on Init.
func New(name string, open Opener) *Store {
	return &Store{name: name, open: open}
}

// Name returns the driver name.
func (s *Store) Name() string {
	return s.name
}

// DB exposes the handle for driver-specific work (exports, tests).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Init opens the database and runs AutoMigrate.
func (s *Store) Init(ctx context.Context) error {
	dialector, err := s.open()
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.WithContext(ctx).AutoMigrate(&store.Invite{}, &store.Vendor{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) written(ctx context.Context) error {
	if s.AfterWrite == nil {
		return nil
	}
	return s.AfterWrite(ctx)
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrAlreadyExists
	}
	return err
}

// CreateInvite inserts an invite. Id and token collisions return ErrAlreadyExists.
func (s *Store) CreateInvite(ctx context.Context, invite *store.Invite) error {
	if err := s.db.WithContext(ctx).Create(invite).Error; err != nil {
		return mapErr(err)
	}
	return s.written(ctx)
}

// GetInvite retrieves an invite by id.
func (s *Store) GetInvite(ctx context.Context, id string) (*store.Invite, error) {
	var inv store.Invite
	if err := s.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

// GetInviteByToken retrieves an invite by token.
func (s *Store) GetInviteByToken(ctx context.Context, token string) (*store.Invite, error) {
	var inv store.Invite
	if err := s.db.WithContext(ctx).First(&inv, "token = ?", token).Error; err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

// UpdateInviteStatus sets the status of an existing invite.
func (s *Store) UpdateInviteStatus(ctx context.Context, id, status string) error {
	result := s.db.WithContext(ctx).Model(&store.Invite{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return mapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return s.written(ctx)
}

// ListInvitesByAoR returns the invites sent by an AoR admin, oldest first.
func (s *Store) ListInvitesByAoR(ctx context.Context, aorAdmin string) ([]*store.Invite, error) {
	var invites []*store.Invite
	err := s.db.WithContext(ctx).
		Where("aor_admin = ?", aorAdmin).
		Order("created_at ASC, id ASC").
		Find(&invites).Error
	if err != nil {
		return nil, err
	}
	return invites, nil
}

// CreateVendor inserts a vendor. A second vendor for the same invite returns ErrVendorExists.
func (s *Store) CreateVendor(ctx context.Context, vendor *store.Vendor) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&store.Vendor{}).Where("invite_id = ?", vendor.InviteID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return store.ErrVendorExists
		}
		return tx.Create(vendor).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race on the unique invite_id index.
			return store.ErrVendorExists
		}
		return mapErr(err)
	}
	return s.written(ctx)
}

// GetVendor retrieves a vendor by id.
func (s *Store) GetVendor(ctx context.Context, id string) (*store.Vendor, error) {
	var v store.Vendor
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

// GetVendorByInviteID retrieves the vendor created from an invite.
func (s *Store) GetVendorByInviteID(ctx context.Context, inviteID string) (*store.Vendor, error) {
	var v store.Vendor
	if err := s.db.WithContext(ctx).First(&v, "invite_id = ?", inviteID).Error; err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

// UpdateVendorStatus sets the status of an existing vendor.
func (s *Store) UpdateVendorStatus(ctx context.Context, id, status string) error {
	result := s.db.WithContext(ctx).Model(&store.Vendor{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return mapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return s.written(ctx)
}

// DeleteVendor removes a vendor by id.
func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&store.Vendor{})
	if result.Error != nil {
		return mapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return s.written(ctx)
}

// ListVendorsByAoR returns the vendors onboarded by an AoR admin, oldest first.
func (s *Store) ListVendorsByAoR(ctx context.Context, aorAdmin string) ([]*store.Vendor, error) {
	var vendors []*store.Vendor
	err := s.db.WithContext(ctx).
		Where("aor_admin = ?", aorAdmin).
		Order("created_at ASC, id ASC").
		Find(&vendors).Error
	if err != nil {
		return nil, err
	}
	return vendors, nil
}

var _ store.Store = (*Store)(nil)
