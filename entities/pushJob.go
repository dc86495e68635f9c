package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushJob is one device's copy of a content push.
type PushJob struct {
	ID               string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PushID           string     `json:"push_id" gorm:"type:varchar(36);index"`
	SubmissionID     string     `json:"submission_id" gorm:"type:varchar(64);uniqueIndex:idx_push_submission_device"`
	DeviceID         string     `json:"device_id" gorm:"type:varchar(64);uniqueIndex:idx_push_submission_device;index:idx_push_lane"`
	DeviceName       string     `json:"device_name"`
	ContentID        string     `json:"content_id" gorm:"type:varchar(128)"`
	ContentName      string     `json:"content_name"`
	ContentType      string     `json:"content_type" gorm:"type:varchar(64)"`
	TotalBytes       *int64     `json:"total_bytes,omitempty"`
	TransferredBytes int64      `json:"transferred_bytes"`
	State            State      `json:"state" gorm:"type:varchar(16);index"`
	Seq              int64      `json:"-" gorm:"index:idx_push_lane"`
	Attempts         int        `json:"attempts"`
	FailureReason    string     `json:"failure_reason,omitempty" gorm:"type:varchar(64)"`
	CreatedAt        time.Time  `json:"created_at"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	LastProgressAt   *time.Time `json:"last_progress_at,omitempty"`
	ExecutedAt       *time.Time `json:"executed_at,omitempty" gorm:"index"`
}

func (j *PushJob) BeforeCreate(tx *gorm.DB) (err error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.State == "" {
		j.State = StateQueued
	}
	if j.Seq == 0 {
		j.Seq = NextSeq()
	}
	return nil
}

// Progress returns the completion percentage. known is false when the size is
// unknown and the job has not finished.
func (j *PushJob) Progress() (pct int, known bool) {
	if j.State == StateCompleted {
		return 100, true
	}
	if j.TotalBytes == nil || *j.TotalBytes <= 0 {
		if j.State == StateFailed {
			return 100, true
		}
		return 0, false
	}
	transferred := j.TransferredBytes
	if transferred > *j.TotalBytes {
		transferred = *j.TotalBytes
	}
	return int(transferred * 100 / *j.TotalBytes), true
}
