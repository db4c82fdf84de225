// Package domain defines the back-office persistence models (brands,
// restaurants, menus, discounts, tables, staff) and the descriptors that
// tell the list endpoints which columns can be searched, sorted and filtered.
package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entity is implemented by every model served as a resource.
type Entity interface {
	EntityID() string
}

// Base carries the identity, activity flag and timestamps shared by every
// resource.
type Base struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	IsActive  bool           `json:"isActive"  gorm:"not null;index"`
	CreatedAt time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// EntityID returns the record's primary key.
func (b Base) EntityID() string { return b.ID }

// BeforeCreate assigns a UUID when the caller did not.
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
