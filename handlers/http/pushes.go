package httpHandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-server/services"
	"signage-server/transport"
	"signage-server/usecases"
)

type PushHandler struct {
	pushUC  *usecases.PushUseCase
	tracker *services.Tracker
}

func NewPushHandler(uc *usecases.PushUseCase, tracker *services.Tracker) *PushHandler {
	return &PushHandler{pushUC: uc, tracker: tracker}
}

type submitPushReq struct {
	Target       string           `json:"target" binding:"required"`
	Content      usecases.Content `json:"content"`
	SubmissionID string           `json:"submission_id"`
}

// Submit handles POST /api/v1/pushes
func (h *PushHandler) Submit(c *gin.Context) {
	var req submitPushReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.pushUC.SubmitPush(usecases.PushSubmission{
		Target:       req.Target,
		Content:      req.Content,
		SubmissionID: req.SubmissionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	ids := res.IDs()
	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"push_id": res.PushID,
			"job_ids": ids,
		},
		"count": len(ids),
	})
}

// GetPush handles GET /api/v1/pushes/:id
func (h *PushHandler) GetPush(c *gin.Context) {
	jobs, err := h.pushUC.GetPush(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs, "count": len(jobs)})
}

// GetJob handles GET /api/v1/push-jobs/:id
func (h *PushHandler) GetJob(c *gin.Context) {
	job, err := h.pushUC.GetJob(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	pct, known := job.Progress()
	c.JSON(http.StatusOK, gin.H{
		"data":          job,
		"progress":      pct,
		"indeterminate": !known,
	})
}

type progressReq struct {
	DeviceID         string `json:"device_id" binding:"required"`
	TransferredBytes *int64 `json:"transferred_bytes" binding:"required"`
}

// Progress handles POST /api/v1/push-jobs/:id/progress
func (h *PushHandler) Progress(c *gin.Context) {
	var req progressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.tracker.Report(req.DeviceID, c.Param("id"), *req.TransferredBytes); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type pushAckReq struct {
	DeviceID         string `json:"device_id" binding:"required"`
	JobID            string `json:"job_id" binding:"required"`
	Status           string `json:"status" binding:"required"`
	TransferredBytes *int64 `json:"transferred_bytes"`
	Message          string `json:"message"`
}

// Ack handles POST /api/v1/push-responses
func (h *PushHandler) Ack(c *gin.Context) {
	var req pushAckReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok, err := transport.ParseResult(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.tracker.Finish(req.DeviceID, req.JobID, ok, req.TransferredBytes, req.Message); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
