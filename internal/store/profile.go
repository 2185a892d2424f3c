package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/airsense/airsense/internal/profile"
)

// ProfileVersion is one saved household profile. Every save appends a
// new row; readers project the latest one. Deleting the profile removes
// all versions.
type ProfileVersion struct {
	ID                   uint             `gorm:"primaryKey"`
	OwnerName            string           `gorm:"column:owner_name"`
	Members              []profile.Member `gorm:"serializer:json"`
	ShareWithExternal    bool             `gorm:"column:share_with_external"`
	ReceiveNotifications bool             `gorm:"column:receive_notifications"`
	UpdatedAt            time.Time        `gorm:"index"`
}

// TableName specifies the table name for the ProfileVersion model.
func (ProfileVersion) TableName() string {
	return "profile_versions"
}

// ProfileStore is the append-only version log of household profiles.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore creates a ProfileStore on an opened database.
func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Save appends a new profile version.
func (s *ProfileStore) Save(ctx context.Context, p *profile.Profile) error {
	v := ProfileVersion{
		OwnerName:            p.OwnerName,
		Members:              p.Members,
		ShareWithExternal:    p.Preferences.ShareWithExternal,
		ReceiveNotifications: p.Preferences.ReceiveNotifications,
		UpdatedAt:            time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&v).Error; err != nil {
		return &StorageError{Op: "save profile", Err: err}
	}
	return nil
}

// Latest returns the most recently saved profile version, or
// ErrNotFound when no version exists.
func (s *ProfileStore) Latest(ctx context.Context) (*profile.Profile, error) {
	var v ProfileVersion
	err := s.db.WithContext(ctx).Order("id DESC").First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "latest profile", Err: err}
	}

	return &profile.Profile{
		OwnerName: v.OwnerName,
		Members:   v.Members,
		Preferences: profile.Preferences{
			ShareWithExternal:    v.ShareWithExternal,
			ReceiveNotifications: v.ReceiveNotifications,
		},
		UpdatedAt: v.UpdatedAt,
	}, nil
}

// Delete removes every stored version. After deletion Latest returns
// ErrNotFound.
func (s *ProfileStore) Delete(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&ProfileVersion{}).Error; err != nil {
		return &StorageError{Op: "delete profile", Err: err}
	}
	return nil
}
