package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signage-server/entities"
	"signage-server/repositories"
	"signage-server/transport"
	"signage-server/usecases"
)

func newTestDispatcher(h *harness, tr transport.Transport, deliveryTimeout time.Duration) (*Dispatcher, *usecases.CommandsUseCase) {
	d := NewDispatcher(h.commands, tr, h.pool, DispatcherConfig{
		AttemptTimeout:  time.Second,
		DeliveryTimeout: deliveryTimeout,
		SweepInterval:   time.Hour,
	}, h.logger)
	return d, usecases.NewCommandsUseCase(h.commands, h.resolver, d)
}

func submit(t *testing.T, uc *usecases.CommandsUseCase, target, cmdType string, value *int) string {
	t.Helper()
	res, err := uc.Submit(usecases.CommandSubmission{Target: target, Type: cmdType, Value: value})
	require.NoError(t, err)
	require.Len(t, res.Commands, 1)
	return res.Commands[0].ID
}

func TestDispatcher_BrightnessToOnlineDeviceCompletes(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport("D1")
	d, uc := newTestDispatcher(h, tr, time.Minute)

	id := submit(t, uc, "D1", "SET_BRIGHTNESS", intPtr(40))
	h.eventuallyCommand(t, id, entities.StateDelivering)

	sent := tr.sentTo("D1")
	require.Len(t, sent, 1)
	assert.Equal(t, transport.KindCommand, sent[0].Kind)
	assert.Equal(t, id, sent[0].ID)
	assert.Equal(t, "SET_BRIGHTNESS", sent[0].Command)
	require.NotNil(t, sent[0].Value)
	assert.Equal(t, 40, *sent[0].Value)

	delivering := h.command(t, id)
	assert.NotNil(t, delivering.DeliveredAt)
	assert.Nil(t, delivering.ExecutedAt)
	assert.Equal(t, 1, delivering.Attempts)

	require.NoError(t, d.Acknowledge("D1", id, true, "ok"))

	done := h.command(t, id)
	assert.Equal(t, entities.StateCompleted, done.State)
	assert.NotNil(t, done.ExecutedAt)
	assert.Empty(t, done.FailureReason)
	assert.Equal(t, "ok", done.Response)
}

func TestDispatcher_UnreachableStaysQueuedUntilOnline(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D3", "")
	tr := newFakeTransport()
	d, uc := newTestDispatcher(h, tr, time.Minute)

	id := submit(t, uc, "D3", "MUTE", nil)
	d.Sweep()
	time.Sleep(50 * time.Millisecond)

	cmd := h.command(t, id)
	assert.Equal(t, entities.StateQueued, cmd.State)
	assert.Nil(t, cmd.ExecutedAt)
	assert.Empty(t, tr.envelopes())

	tr.setReachable("D3", true)
	d.Enqueue("D3")
	h.eventuallyCommand(t, id, entities.StateDelivering)
}

func TestDispatcher_PerDeviceOrderFollowsSubmission(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport("D1")
	d, uc := newTestDispatcher(h, tr, time.Minute)

	off := submit(t, uc, "D1", "SCREEN_OFF", nil)
	on := submit(t, uc, "D1", "SCREEN_ON", nil)

	h.eventuallyCommand(t, off, entities.StateDelivering)
	d.Sweep()
	time.Sleep(50 * time.Millisecond)
	require.Len(t, tr.sentTo("D1"), 1, "second command must wait for the first to finish")
	assert.Equal(t, entities.StateQueued, h.command(t, on).State)

	require.NoError(t, d.Acknowledge("D1", off, true, ""))
	h.eventuallyCommand(t, on, entities.StateDelivering)

	sent := tr.sentTo("D1")
	require.Len(t, sent, 2)
	assert.Equal(t, "SCREEN_OFF", sent[0].Command)
	assert.Equal(t, "SCREEN_ON", sent[1].Command)
}

func TestDispatcher_DevicesDoNotBlockEachOther(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, "G1")
	h.addDevice(t, "D2", "G1")
	h.addDevice(t, "D3", "G1")
	tr := newFakeTransport("D2")
	_, uc := newTestDispatcher(h, tr, time.Minute)

	res, err := uc.Submit(usecases.CommandSubmission{Target: "G1", Type: "RESTART_APP"})
	require.NoError(t, err)
	require.Len(t, res.Commands, 2)

	byDevice := map[string]string{}
	for _, c := range res.Commands {
		byDevice[c.DeviceID] = c.ID
	}
	h.eventuallyCommand(t, byDevice["D2"], entities.StateDelivering)
	assert.Equal(t, entities.StateQueued, h.command(t, byDevice["D3"]).State)
}

func TestDispatcher_DeliveryTimeoutFailsAndUnblocksLane(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport("D1")
	_, uc := newTestDispatcher(h, tr, 100*time.Millisecond)

	first := submit(t, uc, "D1", "SCREEN_OFF", nil)
	second := submit(t, uc, "D1", "SCREEN_ON", nil)

	h.eventuallyCommand(t, first, entities.StateFailed)
	failed := h.command(t, first)
	assert.Equal(t, entities.ReasonDeliveryTimeout, failed.FailureReason)
	assert.NotNil(t, failed.ExecutedAt)

	h.eventuallyCommand(t, second, entities.StateDelivering)
}

func TestDispatcher_ExecutionFailure(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport("D1")
	d, uc := newTestDispatcher(h, tr, time.Minute)

	id := submit(t, uc, "D1", "SET_VOLUME", intPtr(10))
	h.eventuallyCommand(t, id, entities.StateDelivering)

	require.NoError(t, d.Acknowledge("D1", id, false, "speaker missing"))
	cmd := h.command(t, id)
	assert.Equal(t, entities.StateFailed, cmd.State)
	assert.Equal(t, entities.ReasonExecutionFailed, cmd.FailureReason)
	assert.Equal(t, "speaker missing", cmd.Response)
}

func TestDispatcher_AcknowledgeIsFinal(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport()
	d, uc := newTestDispatcher(h, tr, time.Minute)

	// The report may overtake the delivering write, so queued accepts it too.
	id := submit(t, uc, "D1", "UNMUTE", nil)
	require.NoError(t, d.Acknowledge("D1", id, true, ""))
	first := h.command(t, id)
	assert.Equal(t, entities.StateCompleted, first.State)

	require.NoError(t, d.Acknowledge("D1", id, false, "late duplicate"))
	again := h.command(t, id)
	assert.Equal(t, entities.StateCompleted, again.State)
	assert.Empty(t, again.FailureReason)
	assert.Equal(t, first.ExecutedAt.UnixNano(), again.ExecutedAt.UnixNano())
}

func TestDispatcher_AcknowledgeUnknownCommand(t *testing.T) {
	h := newHarness(t)
	d, _ := newTestDispatcher(h, newFakeTransport(), time.Minute)

	err := d.Acknowledge("D1", "missing", true, "")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDispatcher_AcknowledgeFromAnotherDeviceIsRejected(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	h.addDevice(t, "D2", "")
	d, uc := newTestDispatcher(h, newFakeTransport("D2"), time.Minute)

	id := submit(t, uc, "D1", "SCREEN_OFF", nil)

	err := d.Acknowledge("D2", id, true, "")
	assert.ErrorIs(t, err, ErrWrongDevice)
	cmd := h.command(t, id)
	assert.Equal(t, entities.StateQueued, cmd.State)
	assert.Nil(t, cmd.ExecutedAt)
}

func TestDispatcher_AcknowledgeCannotSkipTheLane(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	d, uc := newTestDispatcher(h, newFakeTransport(), time.Minute)

	first := submit(t, uc, "D1", "SCREEN_OFF", nil)
	second := submit(t, uc, "D1", "SCREEN_ON", nil)

	assert.ErrorIs(t, d.Acknowledge("D1", second, true, ""), ErrNotLaneHead)
	assert.Equal(t, entities.StateQueued, h.command(t, second).State)

	require.NoError(t, d.Acknowledge("D1", first, true, ""))
	require.NoError(t, d.Acknowledge("D1", second, true, ""))
	assert.Equal(t, entities.StateCompleted, h.command(t, second).State)
}

func TestDispatcher_TransportErrorKeepsCommandQueued(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport("D1")
	tr.setErr(errors.New("socket write failed"))
	d, uc := newTestDispatcher(h, tr, time.Minute)

	id := submit(t, uc, "D1", "SCREEN_ON", nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, entities.StateQueued, h.command(t, id).State)

	tr.setErr(nil)
	d.Sweep()
	h.eventuallyCommand(t, id, entities.StateDelivering)
}

func TestDispatcher_RecoversFromPanickingTransport(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport("D1")
	tr.panics = 1
	d, uc := newTestDispatcher(h, tr, time.Minute)

	id := submit(t, uc, "D1", "RESTART_APP", nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, entities.StateQueued, h.command(t, id).State)

	d.Enqueue("D1")
	h.eventuallyCommand(t, id, entities.StateDelivering)
}

func TestDispatcher_StartStop(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "D1", "")
	tr := newFakeTransport()
	d := NewDispatcher(h.commands, tr, h.pool, DispatcherConfig{
		AttemptTimeout:  time.Second,
		DeliveryTimeout: time.Minute,
		SweepInterval:   20 * time.Millisecond,
	}, h.logger)
	uc := usecases.NewCommandsUseCase(h.commands, h.resolver, nil)

	id := submit(t, uc, "D1", "MUTE", nil)

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())

	// Nobody kicks the lane; the sweep finds the work once the device is reachable.
	tr.setReachable("D1", true)
	h.eventuallyCommand(t, id, entities.StateDelivering)

	require.NoError(t, d.Stop())
	assert.Error(t, d.Stop())
}
