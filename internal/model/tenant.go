// Package model defines data structures for the concierge platform.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant is a business using the platform. It owns every conversation
// and knowledge entry created under it.
type Tenant struct {
	ID        string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	Slug      string            `json:"slug" gorm:"type:varchar(64);uniqueIndex;not null"`
	Name      string            `json:"name" gorm:"type:varchar(255)"`
	IsActive  bool              `json:"is_active" gorm:"index;default:true"`
	Settings  datatypes.JSONMap `json:"settings,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (Tenant) TableName() string { return "tenants" }

// Setting returns a tenant setting, or nil when unset.
func (t *Tenant) Setting(key string) any {
	if t == nil || t.Settings == nil {
		return nil
	}
	return t.Settings[key]
}
