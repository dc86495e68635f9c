package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommandType string

const (
	CommandSetBrightness CommandType = "SET_BRIGHTNESS"
	CommandSetVolume     CommandType = "SET_VOLUME"
	CommandMute          CommandType = "MUTE"
	CommandUnmute        CommandType = "UNMUTE"
	CommandRestartApp    CommandType = "RESTART_APP"
	CommandScreenOff     CommandType = "SCREEN_OFF"
	CommandScreenOn      CommandType = "SCREEN_ON"
	CommandPlayContent   CommandType = "PLAY_CONTENT"
)

var commandTypes = map[CommandType]struct{}{
	CommandSetBrightness: {},
	CommandSetVolume:     {},
	CommandMute:          {},
	CommandUnmute:        {},
	CommandRestartApp:    {},
	CommandScreenOff:     {},
	CommandScreenOn:      {},
	CommandPlayContent:   {},
}

// ParseCommandType accepts the enum name in any case.
func ParseCommandType(s string) (CommandType, bool) {
	t := CommandType(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := commandTypes[t]
	return t, ok
}

// TakesLevel reports whether the command carries a 0-100 value.
func (t CommandType) TakesLevel() bool {
	return t == CommandSetBrightness || t == CommandSetVolume
}

type Command struct {
	ID            string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SubmissionID  string      `json:"submission_id" gorm:"type:varchar(64);uniqueIndex:idx_command_submission_device"`
	DeviceID      string      `json:"device_id" gorm:"type:varchar(64);uniqueIndex:idx_command_submission_device;index:idx_command_lane"`
	Type          CommandType `json:"type" gorm:"type:varchar(32)"`
	Value         *int        `json:"value,omitempty"`
	ContentID     string      `json:"content_id,omitempty" gorm:"type:varchar(128)"`
	State         State       `json:"state" gorm:"type:varchar(16);index"`
	Seq           int64       `json:"-" gorm:"index:idx_command_lane"`
	Attempts      int         `json:"attempts"`
	FailureReason string      `json:"failure_reason,omitempty" gorm:"type:varchar(64)"`
	Response      string      `json:"response,omitempty" gorm:"type:text"`
	CreatedAt     time.Time   `json:"created_at"`
	DeliveredAt   *time.Time  `json:"delivered_at,omitempty"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty" gorm:"index"`
}

func (c *Command) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.State == "" {
		c.State = StateQueued
	}
	if c.Seq == 0 {
		c.Seq = NextSeq()
	}
	return nil
}
