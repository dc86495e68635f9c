package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"signage-server/db"
	"signage-server/entities"
)

type devicePgRepository struct {
	db db.Database
}

func NewDevicePgRepository(database db.Database) DeviceRepository {
	return &devicePgRepository{db: database}
}

func (r *devicePgRepository) Create(device *entities.Device) error {
	return r.db.GetDB().Create(device).Error
}

func (r *devicePgRepository) GetByID(id string) (*entities.Device, error) {
	var device entities.Device
	err := r.db.GetDB().Where("id = ?", id).First(&device).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &device, nil
}

func (r *devicePgRepository) GetByIDs(ids []string) ([]entities.Device, error) {
	var devices []entities.Device
	if len(ids) == 0 {
		return devices, nil
	}
	err := r.db.GetDB().Where("id IN ?", ids).Find(&devices).Error
	return devices, err
}

func (r *devicePgRepository) GetAll() ([]entities.Device, error) {
	var devices []entities.Device
	err := r.db.GetDB().Order("id ASC").Find(&devices).Error
	return devices, err
}

func (r *devicePgRepository) GetByGroupID(groupID string) ([]entities.Device, error) {
	var devices []entities.Device
	err := r.db.GetDB().Where("group_id = ?", groupID).Order("id ASC").Find(&devices).Error
	return devices, err
}

func (r *devicePgRepository) SetGroup(id string, groupID *string) error {
	res := r.db.GetDB().Model(&entities.Device{}).Where("id = ?", id).Update("group_id", groupID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *devicePgRepository) SetPresence(id string, online bool, seen time.Time) error {
	return r.db.GetDB().Model(&entities.Device{}).Where("id = ?", id).Updates(map[string]interface{}{
		"online":    online,
		"last_seen": seen,
	}).Error
}

func (r *devicePgRepository) Delete(id string) error {
	return r.db.GetDB().Where("id = ?", id).Delete(&entities.Device{}).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
