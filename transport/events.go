package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEvent is returned for device events that cannot be routed.
var ErrInvalidEvent = errors.New("invalid device event")

const (
	EventHeartbeat    = "heartbeat"
	EventCommandAck   = "command_ack"
	EventPushProgress = "push_progress"
	EventPushAck      = "push_ack"
)

// Event is what devices send back, over a socket, MQTT or HTTP.
type Event struct {
	Type             string `json:"type"`
	CommandID        string `json:"command_id,omitempty"`
	JobID            string `json:"job_id,omitempty"`
	Status           string `json:"status,omitempty"`
	TransferredBytes *int64 `json:"transferred_bytes,omitempty"`
	Message          string `json:"message,omitempty"`
}

// Sink consumes routed device events. deviceID is the device that sent the event.
type Sink interface {
	CommandResult(deviceID, commandID string, applied bool, message string) error
	PushProgress(deviceID, jobID string, transferred int64) error
	PushResult(deviceID, jobID string, ok bool, transferred *int64, message string) error
	Seen(deviceID string)
}

// ParseResult maps a device result status to success or failure.
func ParseResult(status string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "applied", "completed", "success", "ok", "executed":
		return true, nil
	case "failed", "error", "rejected":
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, status)
}

func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}

// Route hands ev to sink. Every event, heartbeat included, counts as a sign of life.
func Route(sink Sink, deviceID string, ev Event) error {
	sink.Seen(deviceID)

	switch ev.Type {
	case EventHeartbeat:
		return nil
	case EventCommandAck:
		if ev.CommandID == "" {
			return fmt.Errorf("%w: command_ack without command_id", ErrInvalidEvent)
		}
		applied, err := ParseResult(ev.Status)
		if err != nil {
			return err
		}
		return sink.CommandResult(deviceID, ev.CommandID, applied, ev.Message)
	case EventPushProgress:
		if ev.JobID == "" || ev.TransferredBytes == nil {
			return fmt.Errorf("%w: push_progress needs job_id and transferred_bytes", ErrInvalidEvent)
		}
		return sink.PushProgress(deviceID, ev.JobID, *ev.TransferredBytes)
	case EventPushAck:
		if ev.JobID == "" {
			return fmt.Errorf("%w: push_ack without job_id", ErrInvalidEvent)
		}
		ok, err := ParseResult(ev.Status)
		if err != nil {
			return err
		}
		return sink.PushResult(deviceID, ev.JobID, ok, ev.TransferredBytes, ev.Message)
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
}
