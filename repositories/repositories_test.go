package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signage-server/db"
	"signage-server/entities"
)

func openTestDB(t *testing.T) db.Database {
	t.Helper()
	database, err := db.OpenMemory(uuid.New().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestCommandRepository_DuplicateSubmissionIsRejectedWhole(t *testing.T) {
	repo := NewCommandPgRepository(openTestDB(t))

	require.NoError(t, repo.CreateBatch([]entities.Command{
		{SubmissionID: "s1", DeviceID: "D1", Type: entities.CommandMute},
	}))
	err := repo.CreateBatch([]entities.Command{
		{SubmissionID: "s1", DeviceID: "D2", Type: entities.CommandMute},
		{SubmissionID: "s1", DeviceID: "D1", Type: entities.CommandMute},
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	cmds, err := repo.GetBySubmission("s1")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "D1", cmds[0].DeviceID)
}

func TestCommandRepository_LaneOrderAndTransitions(t *testing.T) {
	repo := NewCommandPgRepository(openTestDB(t))
	cmds := []entities.Command{
		{SubmissionID: "s1", DeviceID: "D1", Type: entities.CommandScreenOff},
		{SubmissionID: "s2", DeviceID: "D1", Type: entities.CommandScreenOn},
	}
	require.NoError(t, repo.CreateBatch(cmds[:1]))
	require.NoError(t, repo.CreateBatch(cmds[1:]))

	head, err := repo.NextInLane("D1")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, cmds[0].ID, head.ID)

	ok, err := repo.Transition(head.ID, []entities.State{entities.StateQueued}, map[string]interface{}{"state": entities.StateDelivering})
	require.NoError(t, err)
	assert.True(t, ok)

	// A second transition from the old state loses.
	ok, err = repo.Transition(head.ID, []entities.State{entities.StateQueued}, map[string]interface{}{"state": entities.StateFailed})
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Now()
	ok, err = repo.Transition(head.ID, entities.OpenStates, map[string]interface{}{"state": entities.StateCompleted, "executed_at": now})
	require.NoError(t, err)
	assert.True(t, ok)

	head, err = repo.NextInLane("D1")
	require.NoError(t, err)
	assert.Equal(t, cmds[1].ID, head.ID)

	open, err := repo.DevicesWithOpenWork()
	require.NoError(t, err)
	assert.Equal(t, []string{"D1"}, open)

	empty, err := repo.NextInLane("D9")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = repo.GetByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommandRepository_RetentionQueries(t *testing.T) {
	repo := NewCommandPgRepository(openTestDB(t))
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)

	require.NoError(t, repo.CreateBatch([]entities.Command{
		{ID: "open", SubmissionID: "a", DeviceID: "D1", Type: entities.CommandMute, CreatedAt: old},
		{ID: "old", SubmissionID: "b", DeviceID: "D1", Type: entities.CommandMute, State: entities.StateCompleted, CreatedAt: old, ExecutedAt: &old},
		{ID: "recent", SubmissionID: "c", DeviceID: "D1", Type: entities.CommandMute, State: entities.StateFailed, CreatedAt: recent, ExecutedAt: &recent},
	}))

	visible, err := repo.ListVisible(now.Add(-time.Hour))
	require.NoError(t, err)
	ids := []string{}
	for _, c := range visible {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"open", "recent"}, ids)

	n, err := repo.DeleteFinishedBefore(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = repo.GetByID("old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPushJobRepository_RecordProgressNeverLowers(t *testing.T) {
	repo := NewPushJobPgRepository(openTestDB(t))
	total := int64(1000)
	jobs := []entities.PushJob{{PushID: "p1", SubmissionID: "s1", DeviceID: "D1", ContentID: "C1", TotalBytes: &total}}
	require.NoError(t, repo.CreateBatch(jobs))
	id := jobs[0].ID

	at := time.Now()
	ok, err := repo.RecordProgress(id, 600, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RecordProgress(id, 100, at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	job, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, int64(600), job.TransferredBytes)
	assert.Equal(t, entities.StateDelivering, job.State)
	require.NotNil(t, job.LastProgressAt)

	_, err = repo.Transition(id, entities.OpenStates, map[string]interface{}{"state": entities.StateFailed})
	require.NoError(t, err)
	ok, err = repo.RecordProgress(id, 900, at)
	require.NoError(t, err)
	assert.False(t, ok)

	byPush, err := repo.GetByPushID("p1")
	require.NoError(t, err)
	assert.Len(t, byPush, 1)
}

func TestGroupRepository_DeleteDetachesMembers(t *testing.T) {
	database := openTestDB(t)
	groups := NewGroupPgRepository(database)
	devices := NewDevicePgRepository(database)

	require.NoError(t, groups.Create(&entities.DeviceGroup{ID: "G1", Name: "Lobby"}))
	gid := "G1"
	require.NoError(t, devices.Create(&entities.Device{ID: "D1", GroupID: &gid}))
	require.NoError(t, devices.Create(&entities.Device{ID: "D2"}))

	members, err := devices.GetByGroupID("G1")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, groups.Delete("G1"))
	d, err := devices.GetByID("D1")
	require.NoError(t, err)
	assert.Nil(t, d.GroupID)
	assert.Equal(t, "D1", d.Name)

	assert.ErrorIs(t, devices.SetGroup("D404", &gid), ErrNotFound)

	got, err := devices.GetByIDs([]string{"D1", "D2", "D3"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
