package services

import (
	"errors"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"signage-server/utils"
)

type lane struct {
	mu      sync.Mutex
	running bool
	dirty   bool
}

// laneScheduler runs one sequential flow per device on a shared worker pool. At most one
// drain of a lane is in flight; kicks that arrive meanwhile are coalesced into one more
// pass of that drain.
type laneScheduler struct {
	name   string
	pool   *utils.WorkerPool
	lanes  cmap.ConcurrentMap[string, *lane]
	run    func(deviceID string)
	logger zerolog.Logger
}

func newLaneScheduler(name string, pool *utils.WorkerPool, run func(deviceID string), logger zerolog.Logger) *laneScheduler {
	return &laneScheduler{
		name:   name,
		pool:   pool,
		lanes:  cmap.New[*lane](),
		run:    run,
		logger: logger,
	}
}

// Kick asks for the device lane to be evaluated, waiting for room in the pool queue.
func (s *laneScheduler) Kick(deviceID string) {
	s.schedule(deviceID, s.pool.Submit)
}

// Nudge is Kick for callers that must not block, such as broker callbacks. When the
// pool queue is full the lane is left for the next sweep.
func (s *laneScheduler) Nudge(deviceID string) {
	s.schedule(deviceID, s.pool.TrySubmit)
}

func (s *laneScheduler) schedule(deviceID string, submit func(func()) error) {
	l := s.lanes.Upsert(deviceID, nil, func(exist bool, old *lane, _ *lane) *lane {
		if exist {
			return old
		}
		return &lane{}
	})

	l.mu.Lock()
	if l.running {
		l.dirty = true
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	if err := submit(func() { s.drain(deviceID, l) }); err != nil {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		event := s.logger.Warn()
		if errors.Is(err, utils.ErrPoolBusy) {
			event = s.logger.Debug()
		}
		event.Err(err).Str("lane", s.name).Str("device_id", deviceID).Msg("Lane not scheduled")
	}
}

func (s *laneScheduler) drain(deviceID string, l *lane) {
	for {
		l.mu.Lock()
		l.dirty = false
		l.mu.Unlock()

		s.runSafely(deviceID)

		l.mu.Lock()
		if !l.dirty {
			l.running = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
	}
}

func (s *laneScheduler) runSafely(deviceID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("lane", s.name).Str("device_id", deviceID).Msg("Recovered panic in lane")
		}
	}()
	s.run(deviceID)
}
