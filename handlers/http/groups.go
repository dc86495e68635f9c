package httpHandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-server/entities"
	"signage-server/usecases"
)

type GroupHandler struct {
	useCase *usecases.DeviceUseCase
}

func NewGroupHandler(useCase *usecases.DeviceUseCase) *GroupHandler {
	return &GroupHandler{useCase: useCase}
}

type createGroupReq struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
}

// CreateGroup handles POST /api/v1/groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req createGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	group := entities.DeviceGroup{ID: req.ID, Name: req.Name}
	if err := h.useCase.CreateGroup(&group); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Group created successfully",
		"data":    group,
	})
}

// GetGroup handles GET /api/v1/groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.useCase.GetGroup(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": group})
}

// GetAllGroups handles GET /api/v1/groups
func (h *GroupHandler) GetAllGroups(c *gin.Context) {
	groups, err := h.useCase.GetAllGroups()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": groups, "count": len(groups)})
}

// GetGroupDevices handles GET /api/v1/groups/:id/devices
func (h *GroupHandler) GetGroupDevices(c *gin.Context) {
	devices, err := h.useCase.GetGroupDevices(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": devices, "count": len(devices)})
}

// DeleteGroup handles DELETE /api/v1/groups/:id
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	if err := h.useCase.DeleteGroup(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted successfully"})
}
