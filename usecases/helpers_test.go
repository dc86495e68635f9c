package usecases

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"signage-server/db"
	"signage-server/entities"
	"signage-server/repositories"
)

type store struct {
	devices  repositories.DeviceRepository
	groups   repositories.GroupRepository
	commands repositories.CommandRepository
	jobs     repositories.PushJobRepository
	fleet    *DeviceUseCase
	resolver *Resolver
}

func newStore(t *testing.T) *store {
	t.Helper()
	database, err := db.OpenMemory(uuid.New().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	devices := repositories.NewDevicePgRepository(database)
	groups := repositories.NewGroupPgRepository(database)
	return &store{
		devices:  devices,
		groups:   groups,
		commands: repositories.NewCommandPgRepository(database),
		jobs:     repositories.NewPushJobPgRepository(database),
		fleet:    NewDeviceUseCase(devices, groups, zerolog.Nop()),
		resolver: NewResolver(devices, groups),
	}
}

func (s *store) group(t *testing.T, id string, members ...string) {
	t.Helper()
	require.NoError(t, s.fleet.CreateGroup(&entities.DeviceGroup{ID: id, Name: "group " + id}))
	for _, m := range members {
		gid := id
		require.NoError(t, s.fleet.CreateDevice(&entities.Device{ID: m, Name: "screen " + m, GroupID: &gid}))
	}
}

func (s *store) device(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, s.fleet.CreateDevice(&entities.Device{ID: id, Name: "screen " + id}))
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(deviceIDs ...string) {
	m.Called(deviceIDs)
}

type mockWaker struct {
	mock.Mock
}

func (m *mockWaker) Wake(deviceIDs ...string) {
	m.Called(deviceIDs)
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
