package httpHandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-server/entities"
	"signage-server/usecases"
)

type DeviceHandler struct {
	useCase *usecases.DeviceUseCase
}

func NewDeviceHandler(useCase *usecases.DeviceUseCase) *DeviceHandler {
	return &DeviceHandler{
		useCase: useCase,
	}
}

type createDeviceReq struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	GroupID *string `json:"group_id"`
}

// CreateDevice handles POST /api/v1/devices
func (h *DeviceHandler) CreateDevice(c *gin.Context) {
	var req createDeviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	device := entities.Device{ID: req.ID, Name: req.Name, GroupID: req.GroupID}
	if err := h.useCase.CreateDevice(&device); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Device created successfully",
		"data":    device,
	})
}

// GetDevice handles GET /api/v1/devices/:id
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, err := h.useCase.GetDevice(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": device,
	})
}

// GetAllDevices handles GET /api/v1/devices
func (h *DeviceHandler) GetAllDevices(c *gin.Context) {
	devices, err := h.useCase.GetAllDevices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve devices",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  devices,
		"count": len(devices),
	})
}

type assignGroupReq struct {
	GroupID string `json:"group_id"`
}

// AssignGroup handles PUT /api/v1/devices/:id/group
func (h *DeviceHandler) AssignGroup(c *gin.Context) {
	var req assignGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.useCase.AssignGroup(c.Param("id"), req.GroupID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Device group updated successfully",
	})
}

// DeleteDevice handles DELETE /api/v1/devices/:id
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	if err := h.useCase.DeleteDevice(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Device deleted successfully",
	})
}
