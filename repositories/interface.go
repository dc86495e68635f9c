package repositories

import (
	"errors"
	"time"

	"signage-server/entities"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a batch collides with records of the same submission.
var ErrDuplicate = errors.New("duplicate submission")

type DeviceRepository interface {
	Create(device *entities.Device) error
	GetByID(id string) (*entities.Device, error)
	GetByIDs(ids []string) ([]entities.Device, error)
	GetAll() ([]entities.Device, error)
	GetByGroupID(groupID string) ([]entities.Device, error)
	SetGroup(id string, groupID *string) error
	SetPresence(id string, online bool, seen time.Time) error
	Delete(id string) error
}

type GroupRepository interface {
	Create(group *entities.DeviceGroup) error
	GetByID(id string) (*entities.DeviceGroup, error)
	GetAll() ([]entities.DeviceGroup, error)
	Delete(id string) error
}

// CommandRepository persists command records. Transition is the only way to change
// state: it applies update only while the record is still in one of from, and reports
// whether it did.
type CommandRepository interface {
	CreateBatch(cmds []entities.Command) error
	GetByID(id string) (*entities.Command, error)
	GetBySubmission(submissionID string) ([]entities.Command, error)
	ListByDevice(deviceID string, limit int) ([]entities.Command, error)
	NextInLane(deviceID string) (*entities.Command, error)
	Transition(id string, from []entities.State, update map[string]interface{}) (bool, error)
	DevicesWithOpenWork() ([]string, error)
	ListVisible(since time.Time) ([]entities.Command, error)
	DeleteFinishedBefore(cutoff time.Time) (int64, error)
}

type PushJobRepository interface {
	CreateBatch(jobs []entities.PushJob) error
	GetByID(id string) (*entities.PushJob, error)
	GetBySubmission(submissionID string) ([]entities.PushJob, error)
	GetByPushID(pushID string) ([]entities.PushJob, error)
	NextInLane(deviceID string) (*entities.PushJob, error)
	Transition(id string, from []entities.State, update map[string]interface{}) (bool, error)
	// RecordProgress raises transferred_bytes of an open job and never lowers it.
	RecordProgress(id string, transferred int64, at time.Time) (bool, error)
	DevicesWithOpenWork() ([]string, error)
	ListVisible(since time.Time) ([]entities.PushJob, error)
	DeleteFinishedBefore(cutoff time.Time) (int64, error)
}
