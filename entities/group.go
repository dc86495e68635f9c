package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceGroup is a named set of devices. Group and device ids share one namespace
// when a submission target is resolved.
type DeviceGroup struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *DeviceGroup) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return
}
