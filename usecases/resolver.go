package usecases

import (
	"errors"
	"fmt"
	"sort"

	"signage-server/entities"
	"signage-server/repositories"
)

// Resolver expands a submission target into the devices it addresses. Device ids are
// checked before group ids.
type Resolver struct {
	devices repositories.DeviceRepository
	groups  repositories.GroupRepository
}

func NewResolver(devices repositories.DeviceRepository, groups repositories.GroupRepository) *Resolver {
	return &Resolver{devices: devices, groups: groups}
}

// Resolve returns the deduplicated device ids of target in ascending order. A group
// without members resolves to an empty slice.
func (r *Resolver) Resolve(target string) ([]string, error) {
	devices, err := r.ResolveDevices(target)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// ResolveDevices is Resolve returning the device rows, frozen at the time of the call.
func (r *Resolver) ResolveDevices(target string) ([]entities.Device, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: empty target", ErrUnknownTarget)
	}

	device, err := r.devices.GetByID(target)
	if err == nil {
		return []entities.Device{*device}, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	if _, err := r.groups.GetByID(target); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
		}
		return nil, err
	}

	members, err := r.devices.GetByGroupID(target)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(members))
	out := make([]entities.Device, 0, len(members))
	for _, d := range members {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
