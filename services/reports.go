package services

import (
	"errors"
	"fmt"

	"signage-server/entities"
)

var (
	// ErrWrongDevice is returned when a device reports on a record addressed to another device.
	ErrWrongDevice = errors.New("record belongs to another device")
	// ErrNotLaneHead is returned for a report on a queued record its lane has not reached.
	ErrNotLaneHead = errors.New("record is not next in its device lane")
)

// checkReporter decides whether deviceID may report on a record. Only the addressed
// device may, and a queued record only once it heads its lane: a report can overtake
// the delivering write, but never the records submitted before it.
func checkReporter(deviceID, recordID, recordDevice string, state entities.State, head func() (string, error)) error {
	if deviceID != recordDevice {
		return fmt.Errorf("%w: %s is addressed to %s, not %s", ErrWrongDevice, recordID, recordDevice, deviceID)
	}
	if state != entities.StateQueued {
		return nil
	}
	headID, err := head()
	if err != nil {
		return err
	}
	if headID != recordID {
		return fmt.Errorf("%w: %s", ErrNotLaneHead, recordID)
	}
	return nil
}
