package usecases

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"signage-server/entities"
	"signage-server/repositories"
)

// DeviceUseCase is the fleet registry: devices, groups and presence.
type DeviceUseCase struct {
	DeviceRepo repositories.DeviceRepository
	GroupRepo  repositories.GroupRepository

	listeners []Waker
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDeviceUseCase(deviceRepo repositories.DeviceRepository, groupRepo repositories.GroupRepository, logger zerolog.Logger) *DeviceUseCase {
	return &DeviceUseCase{
		DeviceRepo: deviceRepo,
		GroupRepo:  groupRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// OnOnline registers a listener woken whenever a device becomes reachable.
func (uc *DeviceUseCase) OnOnline(l Waker) {
	uc.listeners = append(uc.listeners, l)
}

// CreateDevice registers a new device
func (uc *DeviceUseCase) CreateDevice(device *entities.Device) error {
	if device.GroupID != nil {
		if *device.GroupID == "" {
			device.GroupID = nil
		} else if _, err := uc.GroupRepo.GetByID(*device.GroupID); err != nil {
			return groupErr(err, *device.GroupID)
		}
	}
	if device.ID != "" {
		if _, err := uc.GroupRepo.GetByID(device.ID); err == nil {
			return fmt.Errorf("%w: id %s is already a group", ErrInvalidDevice, device.ID)
		}
	}
	return uc.DeviceRepo.Create(device)
}

// GetDevice retrieves a device by ID
func (uc *DeviceUseCase) GetDevice(id string) (*entities.Device, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidDevice)
	}
	return uc.DeviceRepo.GetByID(id)
}

// GetAllDevices retrieves all devices
func (uc *DeviceUseCase) GetAllDevices() ([]entities.Device, error) {
	return uc.DeviceRepo.GetAll()
}

// DeleteDevice deletes a device. Its command history is kept until retention removes it.
func (uc *DeviceUseCase) DeleteDevice(id string) error {
	if _, err := uc.DeviceRepo.GetByID(id); err != nil {
		return err
	}
	return uc.DeviceRepo.Delete(id)
}

// AssignGroup moves a device into a group, or out of any group when groupID is empty.
// Pushes already submitted keep the device list they were resolved with.
func (uc *DeviceUseCase) AssignGroup(deviceID, groupID string) error {
	var target *string
	if groupID != "" {
		if _, err := uc.GroupRepo.GetByID(groupID); err != nil {
			return groupErr(err, groupID)
		}
		target = &groupID
	}
	return uc.DeviceRepo.SetGroup(deviceID, target)
}

// CreateGroup creates a new device group
func (uc *DeviceUseCase) CreateGroup(group *entities.DeviceGroup) error {
	if group.Name == "" {
		return fmt.Errorf("%w: group name is required", ErrInvalidGroup)
	}
	if group.ID != "" {
		if _, err := uc.DeviceRepo.GetByID(group.ID); err == nil {
			return fmt.Errorf("%w: id %s is already a device", ErrInvalidGroup, group.ID)
		}
	}
	return uc.GroupRepo.Create(group)
}

func (uc *DeviceUseCase) GetGroup(id string) (*entities.DeviceGroup, error) {
	return uc.GroupRepo.GetByID(id)
}

func (uc *DeviceUseCase) GetAllGroups() ([]entities.DeviceGroup, error) {
	return uc.GroupRepo.GetAll()
}

// GetGroupDevices retrieves the current members of a group
func (uc *DeviceUseCase) GetGroupDevices(id string) ([]entities.Device, error) {
	if _, err := uc.GroupRepo.GetByID(id); err != nil {
		return nil, err
	}
	return uc.DeviceRepo.GetByGroupID(id)
}

func (uc *DeviceUseCase) DeleteGroup(id string) error {
	if _, err := uc.GroupRepo.GetByID(id); err != nil {
		return err
	}
	return uc.GroupRepo.Delete(id)
}

// MarkOnline records a reachability signal and wakes the device's queued work.
func (uc *DeviceUseCase) MarkOnline(id string) {
	if err := uc.DeviceRepo.SetPresence(id, true, uc.now()); err != nil {
		uc.logger.Error().Err(err).Str("device_id", id).Msg("Failed to record device online")
	}
	uc.logger.Info().Str("device_id", id).Msg("Device online")
	for _, l := range uc.listeners {
		l.Wake(id)
	}
}

func (uc *DeviceUseCase) MarkOffline(id string) {
	if err := uc.DeviceRepo.SetPresence(id, false, uc.now()); err != nil {
		uc.logger.Error().Err(err).Str("device_id", id).Msg("Failed to record device offline")
	}
	uc.logger.Info().Str("device_id", id).Msg("Device offline")
}

// Touch refreshes last_seen for a device that is talking to us.
func (uc *DeviceUseCase) Touch(id string) {
	if err := uc.DeviceRepo.SetPresence(id, true, uc.now()); err != nil {
		uc.logger.Error().Err(err).Str("device_id", id).Msg("Failed to refresh device presence")
	}
}

func groupErr(err error, id string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: unknown group %s", ErrInvalidGroup, id)
	}
	return err
}
