package httpHandler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-server/services"
)

const viewerHeader = "X-Viewer-ID"

type StatusHandler struct {
	aggregator *services.StatusAggregator
}

func NewStatusHandler(aggregator *services.StatusAggregator) *StatusHandler {
	return &StatusHandler{aggregator: aggregator}
}

// viewerID reads the viewer session from the header, falling back to ?viewer=.
func viewerID(c *gin.Context) (string, bool) {
	if v := c.GetHeader(viewerHeader); v != "" {
		return v, true
	}
	if v := c.Query("viewer"); v != "" {
		return v, true
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": "missing viewer id",
		"code":  "missing_viewer",
	})
	return "", false
}

// ListActive handles GET /api/v1/status
func (h *StatusHandler) ListActive(c *gin.Context) {
	viewer, ok := viewerID(c)
	if !ok {
		return
	}
	items, err := h.aggregator.ListActive(viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "count": len(items)})
}

type dismissReq struct {
	ID string `json:"id"`
}

// Dismiss handles POST /api/v1/status/dismiss
// An empty body or id dismisses nothing and still succeeds.
func (h *StatusHandler) Dismiss(c *gin.Context) {
	viewer, ok := viewerID(c)
	if !ok {
		return
	}
	var req dismissReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	if req.ID != "" {
		h.aggregator.Dismiss(viewer, req.ID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DismissAll handles POST /api/v1/status/dismiss-all
func (h *StatusHandler) DismissAll(c *gin.Context) {
	viewer, ok := viewerID(c)
	if !ok {
		return
	}
	n, err := h.aggregator.DismissAll(viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dismissed": n})
}
