package handlers

import (
	"signage-server/transport"
	"signage-server/usecases"
)

// Presence feeds transport connect and disconnect signals into the registry. A device
// losing one transport stays online while any other transport still reaches it.
type Presence struct {
	registry *usecases.DeviceUseCase
	reach    transport.Transport
}

func NewPresence(registry *usecases.DeviceUseCase, reach transport.Transport) *Presence {
	return &Presence{registry: registry, reach: reach}
}

func (p *Presence) MarkOnline(deviceID string) {
	p.registry.MarkOnline(deviceID)
}

func (p *Presence) MarkOffline(deviceID string) {
	if p.reach != nil && p.reach.Reachable(deviceID) {
		return
	}
	p.registry.MarkOffline(deviceID)
}
