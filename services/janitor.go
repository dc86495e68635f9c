package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signage-server/cache"
	"signage-server/repositories"
)

type JanitorConfig struct {
	Interval  time.Duration
	Retention time.Duration
	ViewerTTL time.Duration
}

// Janitor deletes finished records past retention and forgets idle viewers. It runs
// independently of any viewer dismissal.
type Janitor struct {
	commands repositories.CommandRepository
	jobs     repositories.PushJobRepository
	viewers  *cache.ViewerTable
	cfg      JanitorConfig
	logger   zerolog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJanitor(commands repositories.CommandRepository, jobs repositories.PushJobRepository, viewers *cache.ViewerTable, cfg JanitorConfig, logger zerolog.Logger) *Janitor {
	return &Janitor{
		commands: commands,
		jobs:     jobs,
		viewers:  viewers,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (j *Janitor) Start() error {
	if j.ctx != nil {
		return errors.New("janitor is already running")
	}
	j.ctx, j.cancel = context.WithCancel(context.Background())

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.RunOnce()
			case <-j.ctx.Done():
				return
			}
		}
	}()

	j.logger.Info().Dur("retention", j.cfg.Retention).Msg("Janitor started")
	return nil
}

func (j *Janitor) Stop() error {
	if j.ctx == nil {
		return errors.New("janitor is not running")
	}
	j.cancel()
	j.wg.Wait()
	j.ctx = nil
	j.cancel = nil
	return nil
}

// RunOnce performs one retention pass.
func (j *Janitor) RunOnce() {
	now := j.now()
	cutoff := now.Add(-j.cfg.Retention)

	cmds, err := j.commands.DeleteFinishedBefore(cutoff)
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to delete finished commands")
	}
	jobs, err := j.jobs.DeleteFinishedBefore(cutoff)
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to delete finished push jobs")
	}
	viewers := 0
	if j.cfg.ViewerTTL > 0 {
		viewers = j.viewers.Purge(now, j.cfg.ViewerTTL)
	}

	if cmds+jobs > 0 || viewers > 0 {
		j.logger.Info().Int64("commands", cmds).Int64("push_jobs", jobs).Int("viewers", viewers).Msg("Retention pass removed records")
	}
}
