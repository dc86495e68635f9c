package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"signage-server/entities"
	"signage-server/repositories"
	"signage-server/storage"
	"signage-server/transport"
	"signage-server/utils"
)

// ErrInvalidProgress is returned for negative byte counts.
var ErrInvalidProgress = errors.New("invalid transfer progress")

type TrackerConfig struct {
	AttemptTimeout  time.Duration
	ProgressTimeout time.Duration
	SweepInterval   time.Duration
}

// Tracker drives push jobs. Jobs of one device are handed off in submission order;
// jobs of different devices never wait on each other.
type Tracker struct {
	jobs      repositories.PushJobRepository
	transport transport.Transport
	locator   storage.ContentLocator
	lanes     *laneScheduler
	cfg       TrackerConfig
	logger    zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTracker(jobs repositories.PushJobRepository, t transport.Transport, locator storage.ContentLocator, pool *utils.WorkerPool, cfg TrackerConfig, logger zerolog.Logger) *Tracker {
	tr := &Tracker{
		jobs:      jobs,
		transport: t,
		locator:   locator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	tr.lanes = newLaneScheduler("pushes", pool, tr.step, logger)
	return tr
}

func (t *Tracker) Start() error {
	if t.ctx != nil {
		return errors.New("tracker is already running")
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Sweep()
			case <-t.ctx.Done():
				return
			}
		}
	}()

	t.logger.Info().Msg("Push tracker started")
	t.Sweep()
	return nil
}

func (t *Tracker) Stop() error {
	if t.ctx == nil {
		return errors.New("tracker is not running")
	}
	t.cancel()
	t.wg.Wait()
	t.ctx = nil
	t.cancel = nil
	t.logger.Info().Msg("Push tracker stopped")
	return nil
}

func (t *Tracker) Enqueue(deviceIDs ...string) {
	for _, id := range deviceIDs {
		t.lanes.Kick(id)
	}
}

// Wake is Enqueue for callers that must not block.
func (t *Tracker) Wake(deviceIDs ...string) {
	for _, id := range deviceIDs {
		t.lanes.Nudge(id)
	}
}

// Sweep wakes every lane that still has open jobs.
func (t *Tracker) Sweep() {
	ids, err := t.jobs.DevicesWithOpenWork()
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to list devices with open push jobs")
		return
	}
	t.Enqueue(ids...)
}

// Report records transfer progress from deviceID. Lower values than already recorded
// are ignored and values past the known size are clamped to it. Reaching the known size
// completes the job.
func (t *Tracker) Report(deviceID, jobID string, transferred int64) error {
	if transferred < 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidProgress, transferred)
	}
	job, err := t.jobs.GetByID(jobID)
	if err != nil {
		return err
	}
	if err := checkReporter(deviceID, job.ID, job.DeviceID, job.State, t.headID(job.DeviceID)); err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}
	if job.TotalBytes != nil && transferred > *job.TotalBytes {
		transferred = *job.TotalBytes
	}

	now := t.now()
	advanced, err := t.jobs.RecordProgress(job.ID, transferred, now)
	if err != nil || !advanced {
		return err
	}

	if job.TotalBytes != nil && transferred == *job.TotalBytes {
		ok, err := t.jobs.Transition(job.ID, entities.OpenStates, map[string]interface{}{
			"state":       entities.StateCompleted,
			"executed_at": now,
		})
		if err != nil {
			return err
		}
		if ok {
			t.logger.Info().Str("job_id", job.ID).Str("device_id", job.DeviceID).Msg("Push transfer complete")
			t.lanes.Nudge(job.DeviceID)
		}
	}
	return nil
}

// Finish applies the final report of deviceID for a job. A success with fewer bytes
// than the known size fails the job as incomplete.
func (t *Tracker) Finish(deviceID, jobID string, success bool, transferred *int64, message string) error {
	job, err := t.jobs.GetByID(jobID)
	if err != nil {
		return err
	}
	if err := checkReporter(deviceID, job.ID, job.DeviceID, job.State, t.headID(job.DeviceID)); err != nil {
		return err
	}
	if job.State.Terminal() {
		t.logger.Debug().Str("job_id", jobID).Str("state", string(job.State)).Msg("Ignoring report for finished push job")
		return nil
	}

	bytes := job.TransferredBytes
	if transferred != nil {
		if *transferred < 0 {
			return fmt.Errorf("%w: %d bytes", ErrInvalidProgress, *transferred)
		}
		if *transferred > bytes {
			bytes = *transferred
		}
	}
	if job.TotalBytes != nil && bytes > *job.TotalBytes {
		bytes = *job.TotalBytes
	}

	update := map[string]interface{}{
		"executed_at":       t.now(),
		"transferred_bytes": bytes,
	}
	switch {
	case !success:
		update["state"] = entities.StateFailed
		update["failure_reason"] = entities.ReasonExecutionFailed
	case job.TotalBytes != nil && bytes < *job.TotalBytes:
		update["state"] = entities.StateFailed
		update["failure_reason"] = entities.ReasonIncompleteTransfer
	default:
		update["state"] = entities.StateCompleted
	}

	ok, err := t.jobs.Transition(job.ID, entities.OpenStates, update)
	if err != nil {
		return err
	}
	if ok {
		t.logger.Info().Str("job_id", job.ID).Str("device_id", job.DeviceID).
			Interface("state", update["state"]).Str("message", message).Msg("Push job finished")
	}
	t.lanes.Nudge(job.DeviceID)
	return nil
}

func (t *Tracker) headID(deviceID string) func() (string, error) {
	return func() (string, error) {
		head, err := t.jobs.NextInLane(deviceID)
		if err != nil || head == nil {
			return "", err
		}
		return head.ID, nil
	}
}

func (t *Tracker) fail(job *entities.PushJob, from entities.State, reason string) bool {
	ok, err := t.jobs.Transition(job.ID, []entities.State{from}, map[string]interface{}{
		"state":          entities.StateFailed,
		"failure_reason": reason,
		"executed_at":    t.now(),
	})
	if err != nil {
		t.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to fail push job")
		return false
	}
	if ok {
		t.logger.Warn().Str("job_id", job.ID).Str("device_id", job.DeviceID).Str("reason", reason).Msg("Push job failed")
	}
	return true
}

func (t *Tracker) step(deviceID string) {
	for {
		job, err := t.jobs.NextInLane(deviceID)
		if err != nil {
			t.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to load next push job")
			return
		}
		if job == nil {
			return
		}

		switch job.State {
		case entities.StateDelivering:
			last := job.CreatedAt
			if job.DeliveredAt != nil {
				last = *job.DeliveredAt
			}
			if job.LastProgressAt != nil && job.LastProgressAt.After(last) {
				last = *job.LastProgressAt
			}
			if t.now().Sub(last) < t.cfg.ProgressTimeout {
				return
			}
			if !t.fail(job, entities.StateDelivering, entities.ReasonTransferTimeout) {
				return
			}

		case entities.StateQueued:
			if !t.transport.Reachable(deviceID) {
				return
			}
			env, err := t.envelope(job)
			if err != nil {
				t.logger.Warn().Err(err).Str("job_id", job.ID).Str("content_id", job.ContentID).Msg("Content not available")
				if !t.fail(job, entities.StateQueued, entities.ReasonContentUnavailable) {
					return
				}
				continue
			}
			if err := t.deliver(deviceID, env); err != nil {
				if !errors.Is(err, transport.ErrUnreachable) {
					t.logger.Warn().Err(err).Str("job_id", job.ID).Str("device_id", deviceID).Msg("Push hand-off failed")
				}
				return
			}
			now := t.now()
			ok, err := t.jobs.Transition(job.ID, []entities.State{entities.StateQueued}, map[string]interface{}{
				"state":            entities.StateDelivering,
				"delivered_at":     now,
				"last_progress_at": now,
				"attempts":         gorm.Expr("attempts + 1"),
			})
			if err != nil {
				t.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark push job delivering")
				return
			}
			if ok {
				t.logger.Info().Str("job_id", job.ID).Str("device_id", deviceID).Str("content_id", job.ContentID).Msg("Push handed to transport")
				time.AfterFunc(t.cfg.ProgressTimeout, func() { t.lanes.Kick(deviceID) })
				return
			}
			// The device reported progress before the hand-off was recorded.
			latest, err := t.jobs.GetByID(job.ID)
			if err != nil || latest.State == entities.StateDelivering {
				return
			}

		default:
			return
		}
	}
}

func (t *Tracker) envelope(job *entities.PushJob) (transport.Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.AttemptTimeout)
	defer cancel()

	url, err := t.locator.Locate(ctx, job.ContentID)
	if err != nil {
		return transport.Envelope{}, err
	}
	return transport.Envelope{
		Kind:        transport.KindPush,
		ID:          job.ID,
		DeviceID:    job.DeviceID,
		ContentID:   job.ContentID,
		ContentName: job.ContentName,
		ContentType: job.ContentType,
		URL:         url,
		TotalBytes:  job.TotalBytes,
		IssuedAt:    t.now(),
	}, nil
}

func (t *Tracker) deliver(deviceID string, env transport.Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.AttemptTimeout)
	defer cancel()
	return t.transport.Deliver(ctx, deviceID, env)
}
