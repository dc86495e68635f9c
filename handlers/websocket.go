package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"signage-server/transport"
	"signage-server/ws"
)

// WSHandler groups dependencies for websocket flows
type WSHandler struct {
	mgr      *ws.Manager
	presence transport.Presence
	sink     transport.Sink
	logger   zerolog.Logger
}

func NewWSHandler(mgr *ws.Manager, presence transport.Presence, sink transport.Sink, logger zerolog.Logger) *WSHandler {
	return &WSHandler{mgr: mgr, presence: presence, sink: sink, logger: logger}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleDeviceWS upgrades to websocket and reads events from the device. The socket
// being open is the device's reachability signal.
// GET /ws?id=<device_id>
func (h *WSHandler) HandleDeviceWS(c *gin.Context) {
	deviceID := c.Query("id")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing device id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("websocket upgrade failed")
		return
	}
	handle := h.mgr.Register(deviceID, conn)
	h.presence.MarkOnline(deviceID)

	defer func() {
		if h.mgr.Unregister(deviceID, handle) {
			h.presence.MarkOffline(deviceID)
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info().Str("device_id", deviceID).Msg("device closed connection")
			} else {
				h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("websocket read error")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		ev, err := transport.DecodeEvent(message)
		if err != nil {
			h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("invalid event")
			continue
		}
		if err := transport.Route(h.sink, deviceID, ev); err != nil {
			h.logger.Warn().Err(err).Str("device_id", deviceID).Str("type", ev.Type).Msg("failed to handle device event")
		}
	}
}

// GetConnectedDevices GET /api/v1/devices/connected
func (h *WSHandler) GetConnectedDevices(c *gin.Context) {
	ids := h.mgr.List()
	c.JSON(http.StatusOK, gin.H{"data": ids, "count": len(ids)})
}
