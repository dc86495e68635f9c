package httpHandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"signage-server/services"
	"signage-server/transport"
	"signage-server/usecases"
)

type CommandHandler struct {
	cmdUC      *usecases.CommandsUseCase
	dispatcher *services.Dispatcher
	mailbox    *transport.Mailbox
	registry   *usecases.DeviceUseCase
	wakers     []usecases.Enqueuer
}

func NewCommandHandler(uc *usecases.CommandsUseCase, dispatcher *services.Dispatcher, mailbox *transport.Mailbox, registry *usecases.DeviceUseCase, wakers ...usecases.Enqueuer) *CommandHandler {
	return &CommandHandler{cmdUC: uc, dispatcher: dispatcher, mailbox: mailbox, registry: registry, wakers: wakers}
}

type submitCommandReq struct {
	Target       string `json:"target" binding:"required"`
	Type         string `json:"type" binding:"required"`
	Value        *int   `json:"value"`
	ContentID    string `json:"content_id"`
	SubmissionID string `json:"submission_id"`
}

// Submit handles POST /api/v1/commands
func (h *CommandHandler) Submit(c *gin.Context) {
	var req submitCommandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.cmdUC.Submit(usecases.CommandSubmission{
		Target:       req.Target,
		Type:         req.Type,
		Value:        req.Value,
		ContentID:    req.ContentID,
		SubmissionID: req.SubmissionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	ids := res.IDs()
	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"submission_id": res.SubmissionID,
			"command_ids":   ids,
		},
		"count": len(ids),
	})
}

// GetCommand handles GET /api/v1/commands/:id
func (h *CommandHandler) GetCommand(c *gin.Context) {
	cmd, err := h.cmdUC.GetCommand(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cmd})
}

// GetDeviceCommands handles GET /api/v1/devices/:id/commands
func (h *CommandHandler) GetDeviceCommands(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	cmds, err := h.cmdUC.GetDeviceCommands(c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cmds, "count": len(cmds)})
}

type ackReq struct {
	DeviceID  string `json:"device_id" binding:"required"`
	CommandID string `json:"command_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Message   string `json:"message"`
}

// Ack handles POST /api/v1/command-responses
// Devices report { "device_id": "...", "command_id": "...", "status": "applied" | "failed", "message": "..." }
func (h *CommandHandler) Ack(c *gin.Context) {
	var req ackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	applied, err := transport.ParseResult(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.dispatcher.Acknowledge(req.DeviceID, req.CommandID, applied, req.Message); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Poll handles GET /api/v1/commands/poll?device_id=...&limit=...
// Devices without a socket or MQTT session fetch their envelopes here.
func (h *CommandHandler) Poll(c *gin.Context) {
	deviceID := c.Query("device_id")
	if deviceID == "" {
		badRequest(c, errors.New("device_id required"))
		return
	}
	limit := 10
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	envs := h.mailbox.Fetch(deviceID, limit)
	h.registry.Touch(deviceID)
	for _, w := range h.wakers {
		w.Enqueue(deviceID)
	}

	c.JSON(http.StatusOK, gin.H{"data": envs, "count": len(envs)})
}
