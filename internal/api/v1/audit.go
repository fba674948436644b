package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowline/pkg/models"
)

func (h *APIHandlers) getAuditTrail(c *gin.Context) {
	resourceType := c.Param("resource_type")
	switch resourceType {
	case models.ResourceTypeWorkflow, models.ResourceTypeTicket, models.ResourceTypeTask:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown resource type"})
		return
	}

	events, err := h.auditService.Trail(c.Request.Context(), resourceType, c.Param("resource_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
