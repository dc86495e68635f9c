package repositories

import (
	"gorm.io/gorm"

	"signage-server/db"
	"signage-server/entities"
)

type groupPgRepository struct {
	db db.Database
}

func NewGroupPgRepository(database db.Database) GroupRepository {
	return &groupPgRepository{db: database}
}

func (r *groupPgRepository) Create(group *entities.DeviceGroup) error {
	return r.db.GetDB().Create(group).Error
}

func (r *groupPgRepository) GetByID(id string) (*entities.DeviceGroup, error) {
	var group entities.DeviceGroup
	err := r.db.GetDB().Where("id = ?", id).First(&group).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &group, nil
}

func (r *groupPgRepository) GetAll() ([]entities.DeviceGroup, error) {
	var groups []entities.DeviceGroup
	err := r.db.GetDB().Order("name ASC").Find(&groups).Error
	return groups, err
}

// Delete removes the group and detaches its members.
func (r *groupPgRepository) Delete(id string) error {
	return r.db.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entities.Device{}).Where("group_id = ?", id).Update("group_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.DeviceGroup{}).Error
	})
}
