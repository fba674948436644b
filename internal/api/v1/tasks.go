package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowline/internal/services"
)

type applyActionRequest struct {
	ActionID string `json:"action_id" binding:"required"`
	Comment  string `json:"comment"`
}

func (h *APIHandlers) applyTaskAction(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}

	var req applyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.taskService.Apply(c.Request.Context(), services.ApplyRequest{
		TaskID:   c.Param("id"),
		UserID:   userID,
		ActionID: req.ActionID,
		Comment:  req.Comment,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandlers) getTaskStatus(c *gin.Context) {
	view, err := h.taskService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *APIHandlers) listTaskActions(c *gin.Context) {
	logs, err := h.auditService.ActionLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": logs, "count": len(logs)})
}
