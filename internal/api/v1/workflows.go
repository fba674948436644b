package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"flowline/internal/workflows"
)

func (h *APIHandlers) createWorkflow(c *gin.Context) {
	var draft workflows.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, validation, err := h.workflowService.Create(c.Request.Context(), &draft)
	if err != nil {
		if errors.Is(err, workflows.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "workflow validation failed", "validation": validation})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"workflow": def, "validation": validation})
}

func (h *APIHandlers) updateWorkflow(c *gin.Context) {
	id, ok := h.workflowID(c)
	if !ok {
		return
	}

	var draft workflows.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, validation, err := h.workflowService.Update(c.Request.Context(), id, &draft)
	if err != nil {
		if errors.Is(err, workflows.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "workflow validation failed", "validation": validation})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow": def, "validation": validation})
}

func (h *APIHandlers) listWorkflows(c *gin.Context) {
	defs, err := h.workflowService.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": defs, "count": len(defs)})
}

func (h *APIHandlers) getWorkflow(c *gin.Context) {
	id, ok := h.workflowID(c)
	if !ok {
		return
	}

	def, err := h.workflowService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	steps, err := h.workflowService.Steps(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	transitions, err := h.workflowService.Transitions(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow": def, "steps": steps, "transitions": transitions})
}

func (h *APIHandlers) publishWorkflow(c *gin.Context) {
	id, ok := h.workflowID(c)
	if !ok {
		return
	}

	def, err := h.workflowService.Publish(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": def})
}

func (h *APIHandlers) activateWorkflow(c *gin.Context) {
	id, ok := h.workflowID(c)
	if !ok {
		return
	}

	version, err := h.workflowService.Activate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"version": version})
}

func (h *APIHandlers) pauseWorkflow(c *gin.Context) {
	id, ok := h.workflowID(c)
	if !ok {
		return
	}

	def, err := h.workflowService.Pause(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": def})
}

func (h *APIHandlers) listVersions(c *gin.Context) {
	id, ok := h.workflowID(c)
	if !ok {
		return
	}

	versions, err := h.workflowService.ListVersions(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions, "count": len(versions)})
}

func (h *APIHandlers) workflowID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workflow ID"})
		return 0, false
	}
	return id, true
}
