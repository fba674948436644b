// Package api provides the HTTP API server for flowline.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "flowline/internal/api/v1"
	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/logging"
	"flowline/internal/services"
	"flowline/internal/version"
)

type Server struct {
	cfg        *config.Config
	db         db.Database
	httpServer *http.Server

	workflowService *services.WorkflowService
	ticketService   *services.TicketService
	taskService     *services.TaskService
	auditService    *services.AuditService
}

func New(cfg *config.Config, database db.Database, workflowService *services.WorkflowService, ticketService *services.TicketService, taskService *services.TaskService, auditService *services.AuditService) *Server {
	return &Server{
		cfg:             cfg,
		db:              database,
		workflowService: workflowService,
		ticketService:   ticketService,
		taskService:     taskService,
		auditService:    auditService,
	}
}

// Start serves until ctx is cancelled, then shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	if !logging.IsDebugEnabled() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, X-User-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/health", s.healthCheck)

	v1Group := router.Group("/api/v1")
	handlers := v1.NewAPIHandlers(s.workflowService, s.ticketService, s.taskService, s.auditService)
	handlers.RegisterRoutes(v1Group)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.APIPort),
		Handler: router,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("API server error: %v", err)
		}
	}()
	logging.Info("API server listening on :%d", s.cfg.APIPort)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "flowline-api",
		"version": version.Get().Version,
	})
}
