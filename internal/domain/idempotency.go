package domain

import "time"

// Idempotency records the outcome of a create request, keyed by
// (user_id, scope, key), so a retried POST replays the stored record instead
// of creating another one. Scope is the route the key was used on.
type Idempotency struct {
	ID     string `gorm:"size:36;primaryKey"`
	UserID string `gorm:"size:128;not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope  string `gorm:"size:255;not null;uniqueIndex:ux_user_scope_key,priority:2"`
	// KEY is reserved in MySQL.
	Key       string    `gorm:"column:idem_key;size:200;not null;uniqueIndex:ux_user_scope_key,priority:3"`
	RecordID  string    `gorm:"size:36;not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
