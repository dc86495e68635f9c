package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"signage-server/db"
	"signage-server/entities"
)

type pushJobPgRepository struct {
	db db.Database
}

func NewPushJobPgRepository(database db.Database) PushJobRepository {
	return &pushJobPgRepository{db: database}
}

func (r *pushJobPgRepository) CreateBatch(jobs []entities.PushJob) error {
	if len(jobs) == 0 {
		return nil
	}
	err := r.db.GetDB().Transaction(func(tx *gorm.DB) error {
		return tx.Create(&jobs).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *pushJobPgRepository) GetByID(id string) (*entities.PushJob, error) {
	var job entities.PushJob
	err := r.db.GetDB().Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *pushJobPgRepository) GetBySubmission(submissionID string) ([]entities.PushJob, error) {
	var jobs []entities.PushJob
	err := r.db.GetDB().Where("submission_id = ?", submissionID).Order("device_id ASC").Find(&jobs).Error
	return jobs, err
}

func (r *pushJobPgRepository) GetByPushID(pushID string) ([]entities.PushJob, error) {
	var jobs []entities.PushJob
	err := r.db.GetDB().Where("push_id = ?", pushID).Order("device_id ASC").Find(&jobs).Error
	return jobs, err
}

func (r *pushJobPgRepository) NextInLane(deviceID string) (*entities.PushJob, error) {
	var jobs []entities.PushJob
	err := r.db.GetDB().
		Where("device_id = ? AND state IN ?", deviceID, entities.OpenStates).
		Order("seq ASC").Limit(1).Find(&jobs).Error
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return &jobs[0], nil
}

func (r *pushJobPgRepository) Transition(id string, from []entities.State, update map[string]interface{}) (bool, error) {
	res := r.db.GetDB().Model(&entities.PushJob{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(update)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *pushJobPgRepository) RecordProgress(id string, transferred int64, at time.Time) (bool, error) {
	res := r.db.GetDB().Model(&entities.PushJob{}).
		Where("id = ? AND state IN ? AND transferred_bytes <= ?", id, entities.OpenStates, transferred).
		Updates(map[string]interface{}{
			"state":             entities.StateDelivering,
			"transferred_bytes": transferred,
			"last_progress_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *pushJobPgRepository) DevicesWithOpenWork() ([]string, error) {
	var ids []string
	err := r.db.GetDB().Model(&entities.PushJob{}).
		Where("state IN ?", entities.OpenStates).
		Distinct().Pluck("device_id", &ids).Error
	return ids, err
}

func (r *pushJobPgRepository) ListVisible(since time.Time) ([]entities.PushJob, error) {
	var jobs []entities.PushJob
	err := r.db.GetDB().
		Where("state IN ? OR executed_at >= ?", entities.OpenStates, since).
		Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

func (r *pushJobPgRepository) DeleteFinishedBefore(cutoff time.Time) (int64, error) {
	res := r.db.GetDB().
		Where("state IN ? AND executed_at < ?", terminalStates, cutoff).
		Delete(&entities.PushJob{})
	return res.RowsAffected, res.Error
}
