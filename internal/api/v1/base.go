package v1

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"flowline/internal/services"
	"flowline/internal/workflows"
)

type APIHandlers struct {
	workflowService *services.WorkflowService
	ticketService   *services.TicketService
	taskService     *services.TaskService
	auditService    *services.AuditService
}

func NewAPIHandlers(workflowService *services.WorkflowService, ticketService *services.TicketService, taskService *services.TaskService, auditService *services.AuditService) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		ticketService:   ticketService,
		taskService:     taskService,
		auditService:    auditService,
	}
}

// RegisterRoutes registers all v1 API routes.
func (h *APIHandlers) RegisterRoutes(router *gin.RouterGroup) {
	wfGroup := router.Group("/workflows")
	wfGroup.POST("", h.createWorkflow)
	wfGroup.GET("", h.listWorkflows)
	wfGroup.GET("/:id", h.getWorkflow)
	wfGroup.PUT("/:id", h.updateWorkflow)
	wfGroup.POST("/:id/publish", h.publishWorkflow)
	wfGroup.POST("/:id/activate", h.activateWorkflow)
	wfGroup.POST("/:id/pause", h.pauseWorkflow)
	wfGroup.GET("/:id/versions", h.listVersions)

	ticketGroup := router.Group("/tickets")
	ticketGroup.POST("", h.ingestTicket)
	ticketGroup.GET("/:id", h.getTicket)
	ticketGroup.POST("/resubmit", h.resubmitUnmatched)

	taskGroup := router.Group("/tasks")
	taskGroup.GET("/:id", h.getTaskStatus)
	taskGroup.POST("/:id/actions", h.applyTaskAction)
	taskGroup.GET("/:id/actions", h.listTaskActions)

	router.GET("/audit/:resource_type/:resource_id", h.getAuditTrail)
}

// respondError maps service error sentinels onto HTTP statuses.
func (h *APIHandlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, workflows.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflows.ErrValidation),
		errors.Is(err, services.ErrInvalidPriority),
		errors.Is(err, services.ErrInvalidTransitionAction):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrWorkflowImmutable),
		errors.Is(err, services.ErrTaskCompleted),
		errors.Is(err, services.ErrTicketExists):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNotAuthorizedForStep):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNoUsersForRole):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
