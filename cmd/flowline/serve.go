package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"flowline/internal/api"
	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/db/repositories"
	"flowline/internal/directory"
	"flowline/internal/logging"
	"flowline/internal/notifications"
	"flowline/internal/scheduler"
	"flowline/internal/services"
	"flowline/internal/workflows"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the flowline server",
	Long:  "Starts the HTTP API, the ticket event consumer, and the SLA breach poller.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Initialize(cfg.Debug)

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repos := repositories.New(database)

	var notifier notifications.Notifier = notifications.Noop{}
	var engine *notifications.NATSEngine
	if cfg.NATSEnabled {
		opts := notifications.DefaultOptions()
		opts.Embedded = cfg.NATSEmbedded
		opts.URL = cfg.NATSURL
		opts.Stream = cfg.NATSStream
		opts.SubjectPrefix = cfg.NATSSubjectPrefix
		engine, err = notifications.NewEngine(opts)
		if err != nil {
			return fmt.Errorf("failed to start NATS engine: %w", err)
		}
		defer engine.Close()
		notifier = engine
	}

	dir := buildDirectory(cfg)

	auditService := services.NewAuditService(repos)
	allocator := services.NewAllocator(repos, dir)
	matcher := workflows.NewMatcher(repos)
	hooks := services.NewHookRegistry(
		services.NewNotifyRequesterHook(notifier),
		services.NewCloseExternalHook(notifier),
	)

	workflowService := services.NewWorkflowService(repos, auditService)
	ticketService := services.NewTicketService(repos, matcher, allocator, auditService, notifier)
	taskService := services.NewTaskService(repos, allocator, auditService, notifier, hooks)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	server := api.New(cfg, database, workflowService, ticketService, taskService, auditService)
	g.Go(func() error {
		return server.Start(ctx)
	})

	if engine != nil {
		consumer := notifications.NewTicketConsumer(engine, ticketService)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start ticket consumer: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			consumer.Stop()
			return nil
		})
	}

	poller := scheduler.NewSLAPoller(repos, auditService, notifier, cfg.SLAPollSpec)
	if err := poller.Start(); err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		poller.Stop()
		return nil
	})

	logging.Info("flowline is up")
	return g.Wait()
}

// buildDirectory picks the role directory implementation: the HTTP client
// when a directory service is configured, otherwise the static map from
// config (role id -> "user1:u1@example.com,user2:u2@example.com").
func buildDirectory(cfg *config.Config) directory.Service {
	if cfg.DirectoryURL != "" {
		return directory.NewHTTPClient(cfg.DirectoryURL, 10*time.Second)
	}

	roles := make(map[string][]directory.Member, len(cfg.StaticRoles))
	for roleID, raw := range cfg.StaticRoles {
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			id, email, _ := strings.Cut(entry, ":")
			roles[roleID] = append(roles[roleID], directory.Member{ID: id, Email: email})
		}
	}
	return directory.NewStatic(roles)
}
