package services

import (
	"fmt"
	"sort"
	"time"

	"signage-server/cache"
	"signage-server/entities"
	"signage-server/repositories"
)

const (
	KindCommand = "command"
	KindPushJob = "push_job"
)

// StatusItem is one row of the operator status feed.
type StatusItem struct {
	Kind          string         `json:"kind"`
	ID            string         `json:"id"`
	DeviceID      string         `json:"device_id"`
	DeviceName    string         `json:"device_name"`
	Label         string         `json:"label"`
	State         entities.State `json:"state"`
	Progress      int            `json:"progress"`
	Indeterminate bool           `json:"indeterminate,omitempty"`
	Stale         bool           `json:"stale,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExecutedAt    *time.Time     `json:"executed_at,omitempty"`
}

type StatusConfig struct {
	Retention  time.Duration
	StaleAfter time.Duration
}

// StatusAggregator serves the merged command and push feed. Reads never change records;
// per-viewer visibility lives in the viewer table.
type StatusAggregator struct {
	commands repositories.CommandRepository
	jobs     repositories.PushJobRepository
	devices  repositories.DeviceRepository
	viewers  *cache.ViewerTable
	cfg      StatusConfig
	now      func() time.Time
}

func NewStatusAggregator(commands repositories.CommandRepository, jobs repositories.PushJobRepository, devices repositories.DeviceRepository, viewers *cache.ViewerTable, cfg StatusConfig) *StatusAggregator {
	return &StatusAggregator{
		commands: commands,
		jobs:     jobs,
		devices:  devices,
		viewers:  viewers,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ListActive returns what viewer should see right now, newest first.
func (a *StatusAggregator) ListActive(viewer string) ([]StatusItem, error) {
	now := a.now()
	items, err := a.snapshot(now)
	if err != nil {
		return nil, err
	}

	visible := a.viewers.Observe(viewer, observations(items), now)
	out := make([]StatusItem, 0, len(visible))
	for _, it := range items {
		if _, ok := visible[it.ID]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// Dismiss hides one item for viewer. It always succeeds.
func (a *StatusAggregator) Dismiss(viewer, id string) {
	a.viewers.Dismiss(viewer, id, a.now())
}

// DismissAll hides everything currently visible to viewer.
func (a *StatusAggregator) DismissAll(viewer string) (int, error) {
	now := a.now()
	items, err := a.snapshot(now)
	if err != nil {
		return 0, err
	}
	return a.viewers.DismissAll(viewer, observations(items), now), nil
}

func observations(items []StatusItem) []cache.Observation {
	obs := make([]cache.Observation, 0, len(items))
	for _, it := range items {
		obs = append(obs, cache.Observation{ID: it.ID, Terminal: it.State.Terminal()})
	}
	return obs
}

func (a *StatusAggregator) snapshot(now time.Time) ([]StatusItem, error) {
	since := now.Add(-a.cfg.Retention)
	cmds, err := a.commands.ListVisible(since)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	jobs, err := a.jobs.ListVisible(since)
	if err != nil {
		return nil, fmt.Errorf("list push jobs: %w", err)
	}

	names, err := a.deviceNames(cmds)
	if err != nil {
		return nil, err
	}

	items := make([]StatusItem, 0, len(cmds)+len(jobs))
	for i := range cmds {
		items = append(items, a.commandItem(&cmds[i], names, now))
	}
	for i := range jobs {
		items = append(items, a.jobItem(&jobs[i], now))
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (a *StatusAggregator) deviceNames(cmds []entities.Command) (map[string]string, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, c := range cmds {
		if _, ok := seen[c.DeviceID]; ok {
			continue
		}
		seen[c.DeviceID] = struct{}{}
		ids = append(ids, c.DeviceID)
	}
	devices, err := a.devices.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("load device names: %w", err)
	}
	names := make(map[string]string, len(devices))
	for i := range devices {
		names[devices[i].ID] = devices[i].DisplayName()
	}
	return names, nil
}

func (a *StatusAggregator) stale(state entities.State, created, now time.Time) bool {
	return state == entities.StateQueued && a.cfg.StaleAfter > 0 && now.Sub(created) >= a.cfg.StaleAfter
}

func (a *StatusAggregator) commandItem(c *entities.Command, names map[string]string, now time.Time) StatusItem {
	name, ok := names[c.DeviceID]
	if !ok {
		name = c.DeviceID
	}
	return StatusItem{
		Kind:          KindCommand,
		ID:            c.ID,
		DeviceID:      c.DeviceID,
		DeviceName:    name,
		Label:         commandLabel(c),
		State:         c.State,
		Progress:      commandProgress(c.State),
		Stale:         a.stale(c.State, c.CreatedAt, now),
		FailureReason: c.FailureReason,
		CreatedAt:     c.CreatedAt,
		ExecutedAt:    c.ExecutedAt,
	}
}

func (a *StatusAggregator) jobItem(j *entities.PushJob, now time.Time) StatusItem {
	pct, known := j.Progress()
	label := j.ContentName
	if label == "" {
		label = j.ContentID
	}
	return StatusItem{
		Kind:          KindPushJob,
		ID:            j.ID,
		DeviceID:      j.DeviceID,
		DeviceName:    j.DeviceName,
		Label:         label,
		State:         j.State,
		Progress:      pct,
		Indeterminate: !known,
		Stale:         a.stale(j.State, j.CreatedAt, now),
		FailureReason: j.FailureReason,
		CreatedAt:     j.CreatedAt,
		ExecutedAt:    j.ExecutedAt,
	}
}

func commandLabel(c *entities.Command) string {
	switch {
	case c.Value != nil:
		return fmt.Sprintf("%s %d", c.Type, *c.Value)
	case c.ContentID != "":
		return fmt.Sprintf("%s %s", c.Type, c.ContentID)
	}
	return string(c.Type)
}

// commandProgress has no byte channel, so it reports lifecycle position.
func commandProgress(s entities.State) int {
	switch s {
	case entities.StateDelivering:
		return 50
	case entities.StateCompleted, entities.StateFailed:
		return 100
	}
	return 0
}
