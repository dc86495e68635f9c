package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Device struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string     `json:"name"`
	GroupID   *string    `gorm:"index;type:varchar(64)" json:"group_id,omitempty"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BeforeCreate keeps hardware-assigned ids and generates one otherwise.
func (d *Device) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	return
}

// DisplayName falls back to the id for devices registered without a name.
func (d *Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
