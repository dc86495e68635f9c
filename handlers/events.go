package handlers

import (
	"signage-server/services"
	"signage-server/usecases"
)

// EventSink routes device events to the component that owns each record.
type EventSink struct {
	dispatcher *services.Dispatcher
	tracker    *services.Tracker
	registry   *usecases.DeviceUseCase
}

func NewEventSink(dispatcher *services.Dispatcher, tracker *services.Tracker, registry *usecases.DeviceUseCase) *EventSink {
	return &EventSink{dispatcher: dispatcher, tracker: tracker, registry: registry}
}

func (s *EventSink) CommandResult(deviceID, commandID string, applied bool, message string) error {
	return s.dispatcher.Acknowledge(deviceID, commandID, applied, message)
}

func (s *EventSink) PushProgress(deviceID, jobID string, transferred int64) error {
	return s.tracker.Report(deviceID, jobID, transferred)
}

func (s *EventSink) PushResult(deviceID, jobID string, ok bool, transferred *int64, message string) error {
	return s.tracker.Finish(deviceID, jobID, ok, transferred, message)
}

func (s *EventSink) Seen(deviceID string) {
	s.registry.Touch(deviceID)
}
