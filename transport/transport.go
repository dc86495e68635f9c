package transport

import (
	"context"
	"errors"
	"time"
)

// ErrUnreachable means the device cannot take a delivery right now. It is not a
// failure: the work stays queued.
var ErrUnreachable = errors.New("device unreachable")

const (
	KindCommand = "command"
	KindPush    = "push"
)

// Envelope is the message a device receives, identical on every transport.
type Envelope struct {
	Kind        string    `json:"type"`
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Command     string    `json:"command,omitempty"`
	Value       *int      `json:"value,omitempty"`
	ContentID   string    `json:"content_id,omitempty"`
	ContentName string    `json:"content_name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	URL         string    `json:"url,omitempty"`
	TotalBytes  *int64    `json:"total_bytes,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Transport hands envelopes to devices. Deliver returns nil once the transport has
// accepted the envelope for the device; it does not wait for execution.
type Transport interface {
	Name() string
	Reachable(deviceID string) bool
	Deliver(ctx context.Context, deviceID string, env Envelope) error
}
