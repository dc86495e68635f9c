package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"signage-server/ws"
)

// WebSocket delivers over the device's live socket.
type WebSocket struct {
	mgr *ws.Manager
}

func NewWebSocket(mgr *ws.Manager) *WebSocket {
	return &WebSocket{mgr: mgr}
}

func (w *WebSocket) Name() string { return "websocket" }

func (w *WebSocket) Reachable(deviceID string) bool {
	return w.mgr.IsConnected(deviceID)
}

func (w *WebSocket) Deliver(ctx context.Context, deviceID string, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if deadline.IsZero() {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := w.mgr.SendToDevice(deviceID, b, deadline); err != nil {
		if errors.Is(err, ws.ErrNotConnected) {
			return ErrUnreachable
		}
		return err
	}
	return nil
}
