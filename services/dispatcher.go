package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"signage-server/entities"
	"signage-server/repositories"
	"signage-server/transport"
	"signage-server/utils"
)

type DispatcherConfig struct {
	AttemptTimeout  time.Duration
	DeliveryTimeout time.Duration
	SweepInterval   time.Duration
}

// Dispatcher moves commands through their lifecycle, one device lane at a time.
type Dispatcher struct {
	commands  repositories.CommandRepository
	transport transport.Transport
	lanes     *laneScheduler
	cfg       DispatcherConfig
	logger    zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(commands repositories.CommandRepository, t transport.Transport, pool *utils.WorkerPool, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		commands:  commands,
		transport: t,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	d.lanes = newLaneScheduler("commands", pool, d.step, logger)
	return d
}

// Start launches the periodic sweep.
func (d *Dispatcher) Start() error {
	if d.ctx != nil {
		return errors.New("dispatcher is already running")
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runSweepLoop()
	}()

	d.logger.Info().Str("transport", d.transport.Name()).Dur("sweep_interval", d.cfg.SweepInterval).Msg("Dispatcher started")
	d.Sweep()
	return nil
}

func (d *Dispatcher) Stop() error {
	if d.ctx == nil {
		return errors.New("dispatcher is not running")
	}
	d.cancel()
	d.wg.Wait()
	d.ctx = nil
	d.cancel = nil
	d.logger.Info().Msg("Dispatcher stopped")
	return nil
}

func (d *Dispatcher) runSweepLoop() {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Sweep()
		case <-d.ctx.Done():
			return
		}
	}
}

// Enqueue wakes the lanes of the given devices.
func (d *Dispatcher) Enqueue(deviceIDs ...string) {
	for _, id := range deviceIDs {
		d.lanes.Kick(id)
	}
}

// Wake is Enqueue for callers that must not block; lanes that find the pool busy wait
// for the next sweep.
func (d *Dispatcher) Wake(deviceIDs ...string) {
	for _, id := range deviceIDs {
		d.lanes.Nudge(id)
	}
}

// Sweep wakes every lane that still has open commands.
func (d *Dispatcher) Sweep() {
	ids, err := d.commands.DevicesWithOpenWork()
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to list devices with open commands")
		return
	}
	d.Enqueue(ids...)
}

// Acknowledge finalizes a command from the execution report of deviceID. Reports for
// commands already terminal are ignored.
func (d *Dispatcher) Acknowledge(deviceID, commandID string, applied bool, message string) error {
	cmd, err := d.commands.GetByID(commandID)
	if err != nil {
		return err
	}
	if err := checkReporter(deviceID, cmd.ID, cmd.DeviceID, cmd.State, d.headID(cmd.DeviceID)); err != nil {
		return err
	}
	if cmd.State.Terminal() {
		d.logger.Debug().Str("command_id", commandID).Str("state", string(cmd.State)).Msg("Ignoring acknowledgment for finished command")
		return nil
	}

	state, reason := entities.StateCompleted, ""
	if !applied {
		state, reason = entities.StateFailed, entities.ReasonExecutionFailed
	}
	ok, err := d.finish(cmd.ID, entities.OpenStates, state, reason, message)
	if err != nil {
		return err
	}
	if ok {
		d.logger.Info().Str("command_id", cmd.ID).Str("device_id", cmd.DeviceID).Str("state", string(state)).Msg("Command acknowledged")
	}
	d.lanes.Nudge(cmd.DeviceID)
	return nil
}

func (d *Dispatcher) headID(deviceID string) func() (string, error) {
	return func() (string, error) {
		head, err := d.commands.NextInLane(deviceID)
		if err != nil || head == nil {
			return "", err
		}
		return head.ID, nil
	}
}

func (d *Dispatcher) finish(id string, from []entities.State, state entities.State, reason, response string) (bool, error) {
	update := map[string]interface{}{
		"state":       state,
		"executed_at": d.now(),
	}
	if reason != "" {
		update["failure_reason"] = reason
	}
	if response != "" {
		update["response"] = response
	}
	return d.commands.Transition(id, from, update)
}

// step advances the head of the device lane until it has to wait on the device.
func (d *Dispatcher) step(deviceID string) {
	for {
		cmd, err := d.commands.NextInLane(deviceID)
		if err != nil {
			d.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to load next command")
			return
		}
		if cmd == nil {
			return
		}

		switch cmd.State {
		case entities.StateDelivering:
			since := cmd.CreatedAt
			if cmd.DeliveredAt != nil {
				since = *cmd.DeliveredAt
			}
			if d.now().Sub(since) < d.cfg.DeliveryTimeout {
				return
			}
			ok, err := d.finish(cmd.ID, []entities.State{entities.StateDelivering}, entities.StateFailed, entities.ReasonDeliveryTimeout, "")
			if err != nil {
				d.logger.Error().Err(err).Str("command_id", cmd.ID).Msg("Failed to time out command")
				return
			}
			if ok {
				d.logger.Warn().Str("command_id", cmd.ID).Str("device_id", deviceID).Msg("Command delivery timed out")
			}

		case entities.StateQueued:
			if !d.transport.Reachable(deviceID) {
				return
			}
			if err := d.deliver(cmd); err != nil {
				if errors.Is(err, transport.ErrUnreachable) {
					d.logger.Debug().Str("device_id", deviceID).Msg("Device unreachable, command stays queued")
				} else {
					d.logger.Warn().Err(err).Str("command_id", cmd.ID).Str("device_id", deviceID).Msg("Command delivery attempt failed")
				}
				return
			}
			ok, err := d.commands.Transition(cmd.ID, []entities.State{entities.StateQueued}, map[string]interface{}{
				"state":        entities.StateDelivering,
				"delivered_at": d.now(),
				"attempts":     gorm.Expr("attempts + 1"),
			})
			if err != nil {
				d.logger.Error().Err(err).Str("command_id", cmd.ID).Msg("Failed to mark command delivering")
				return
			}
			if ok {
				d.logger.Info().Str("command_id", cmd.ID).Str("device_id", deviceID).Str("type", string(cmd.Type)).Msg("Command handed to transport")
				time.AfterFunc(d.cfg.DeliveryTimeout, func() { d.lanes.Kick(deviceID) })
				return
			}
			// The acknowledgment overtook the hand-off; the head is terminal already.

		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(cmd *entities.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
	defer cancel()

	return d.transport.Deliver(ctx, cmd.DeviceID, transport.Envelope{
		Kind:      transport.KindCommand,
		ID:        cmd.ID,
		DeviceID:  cmd.DeviceID,
		Command:   string(cmd.Type),
		Value:     cmd.Value,
		ContentID: cmd.ContentID,
		IssuedAt:  d.now(),
	})
}
