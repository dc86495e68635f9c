package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"signage-server/db"
	"signage-server/entities"
)

var terminalStates = []entities.State{entities.StateCompleted, entities.StateFailed}

type commandPgRepository struct {
	db db.Database
}

func NewCommandPgRepository(database db.Database) CommandRepository {
	return &commandPgRepository{db: database}
}

// CreateBatch stores every record of one submission or none of them.
func (r *commandPgRepository) CreateBatch(cmds []entities.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	err := r.db.GetDB().Transaction(func(tx *gorm.DB) error {
		return tx.Create(&cmds).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *commandPgRepository) GetByID(id string) (*entities.Command, error) {
	var cmd entities.Command
	err := r.db.GetDB().Where("id = ?", id).First(&cmd).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &cmd, nil
}

func (r *commandPgRepository) GetBySubmission(submissionID string) ([]entities.Command, error) {
	var cmds []entities.Command
	err := r.db.GetDB().Where("submission_id = ?", submissionID).Order("device_id ASC").Find(&cmds).Error
	return cmds, err
}

func (r *commandPgRepository) ListByDevice(deviceID string, limit int) ([]entities.Command, error) {
	if limit <= 0 {
		limit = 50
	}
	var cmds []entities.Command
	err := r.db.GetDB().Where("device_id = ?", deviceID).Order("seq DESC").Limit(limit).Find(&cmds).Error
	return cmds, err
}

// NextInLane returns the oldest open command of the device, or nil when the lane is empty.
func (r *commandPgRepository) NextInLane(deviceID string) (*entities.Command, error) {
	var cmds []entities.Command
	err := r.db.GetDB().
		Where("device_id = ? AND state IN ?", deviceID, entities.OpenStates).
		Order("seq ASC").Limit(1).Find(&cmds).Error
	if err != nil || len(cmds) == 0 {
		return nil, err
	}
	return &cmds[0], nil
}

func (r *commandPgRepository) Transition(id string, from []entities.State, update map[string]interface{}) (bool, error) {
	res := r.db.GetDB().Model(&entities.Command{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(update)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *commandPgRepository) DevicesWithOpenWork() ([]string, error) {
	var ids []string
	err := r.db.GetDB().Model(&entities.Command{}).
		Where("state IN ?", entities.OpenStates).
		Distinct().Pluck("device_id", &ids).Error
	return ids, err
}

// ListVisible returns open commands plus those finished at or after since.
func (r *commandPgRepository) ListVisible(since time.Time) ([]entities.Command, error) {
	var cmds []entities.Command
	err := r.db.GetDB().
		Where("state IN ? OR executed_at >= ?", entities.OpenStates, since).
		Order("created_at DESC").Find(&cmds).Error
	return cmds, err
}

func (r *commandPgRepository) DeleteFinishedBefore(cutoff time.Time) (int64, error) {
	res := r.db.GetDB().
		Where("state IN ? AND executed_at < ?", terminalStates, cutoff).
		Delete(&entities.Command{})
	return res.RowsAffected, res.Error
}
