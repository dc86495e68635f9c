package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"signage-server/db"
	"signage-server/entities"
	"signage-server/repositories"
	"signage-server/transport"
	"signage-server/usecases"
	"signage-server/utils"
)

type harness struct {
	devices  repositories.DeviceRepository
	groups   repositories.GroupRepository
	commands repositories.CommandRepository
	jobs     repositories.PushJobRepository
	resolver *usecases.Resolver
	pool     *utils.WorkerPool
	logger   zerolog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database, err := db.OpenMemory(uuid.New().String())
	require.NoError(t, err)

	pool := utils.NewWorkerPool(4, 16)
	t.Cleanup(func() {
		pool.Shutdown()
		_ = database.Close()
	})

	devices := repositories.NewDevicePgRepository(database)
	groups := repositories.NewGroupPgRepository(database)
	return &harness{
		devices:  devices,
		groups:   groups,
		commands: repositories.NewCommandPgRepository(database),
		jobs:     repositories.NewPushJobPgRepository(database),
		resolver: usecases.NewResolver(devices, groups),
		pool:     pool,
		logger:   zerolog.Nop(),
	}
}

func (h *harness) addGroup(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.groups.Create(&entities.DeviceGroup{ID: id, Name: id}))
}

func (h *harness) addDevice(t *testing.T, id, groupID string) {
	t.Helper()
	d := &entities.Device{ID: id, Name: "screen " + id}
	if groupID != "" {
		d.GroupID = &groupID
	}
	require.NoError(t, h.devices.Create(d))
}

func (h *harness) command(t *testing.T, id string) *entities.Command {
	t.Helper()
	cmd, err := h.commands.GetByID(id)
	require.NoError(t, err)
	return cmd
}

func (h *harness) job(t *testing.T, id string) *entities.PushJob {
	t.Helper()
	job, err := h.jobs.GetByID(id)
	require.NoError(t, err)
	return job
}

func (h *harness) eventuallyCommand(t *testing.T, id string, state entities.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		cmd, err := h.commands.GetByID(id)
		return err == nil && cmd.State == state
	}, 3*time.Second, 10*time.Millisecond, "command %s never reached %s", id, state)
}

func (h *harness) eventuallyJob(t *testing.T, id string, state entities.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := h.jobs.GetByID(id)
		return err == nil && job.State == state
	}, 3*time.Second, 10*time.Millisecond, "push job %s never reached %s", id, state)
}

// fakeTransport records hand-offs and lets tests flip reachability per device.
type fakeTransport struct {
	mu        sync.Mutex
	reachable map[string]bool
	sent      []transport.Envelope
	err       error
	panics    int
}

func newFakeTransport(reachable ...string) *fakeTransport {
	f := &fakeTransport{reachable: make(map[string]bool)}
	for _, id := range reachable {
		f.reachable[id] = true
	}
	return f
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Reachable(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable[deviceID]
}

func (f *fakeTransport) Deliver(_ context.Context, deviceID string, env transport.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics > 0 {
		f.panics--
		panic("transport exploded")
	}
	if !f.reachable[deviceID] {
		return transport.ErrUnreachable
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) setReachable(deviceID string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachable[deviceID] = ok
}

func (f *fakeTransport) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTransport) envelopes() []transport.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) sentTo(deviceID string) []transport.Envelope {
	var out []transport.Envelope
	for _, env := range f.envelopes() {
		if env.DeviceID == deviceID {
			out = append(out, env)
		}
	}
	return out
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
