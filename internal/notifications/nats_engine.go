package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"flowline/internal/logging"
)

type Options struct {
	Enabled       bool
	Embedded      bool
	URL           string
	Stream        string
	SubjectPrefix string
	// StoreDir holds JetStream state for the embedded server. Empty means
	// the server's default location.
	StoreDir string
}

func DefaultOptions() Options {
	return Options{
		Enabled:       true,
		Embedded:      true,
		Stream:        "FLOWLINE",
		SubjectPrefix: "flowline",
	}
}

// NATSEngine publishes flowline events onto a JetStream stream and hands out
// durable subscriptions for consumers. It can run against an external broker
// or start an embedded server for single-binary deployments.
type NATSEngine struct {
	opts   Options
	server *natsserver.Server
	conn   *nats.Conn
	js     nats.JetStreamContext
}

func NewEngine(opts Options) (*NATSEngine, error) {
	if !opts.Enabled {
		return nil, nil
	}

	engine := &NATSEngine{opts: opts}
	if opts.Embedded {
		srv, err := natsserver.NewServer(&natsserver.Options{Port: -1, JetStream: true, StoreDir: opts.StoreDir})
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded nats: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			return nil, fmt.Errorf("embedded nats failed to start")
		}
		engine.server = srv
		engine.opts.URL = fmt.Sprintf("nats://%s", srv.Addr().String())
	}

	conn, err := nats.Connect(engine.opts.URL)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	engine.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to init jetstream: %w", err)
	}
	engine.js = js

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     engine.opts.Stream,
		Subjects: []string{fmt.Sprintf("%s.>", engine.opts.SubjectPrefix)},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		engine.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return engine, nil
}

// TicketInboundSubject is where external ticket sources publish ingestion
// events for the background consumer.
func (e *NATSEngine) TicketInboundSubject() string {
	return fmt.Sprintf("%s.tickets.inbound", e.opts.SubjectPrefix)
}

func (e *NATSEngine) PublishAssignment(ctx context.Context, notification AssignmentNotification) error {
	if e == nil || e.js == nil {
		return nil
	}
	subject := fmt.Sprintf("%s.notify.assignment", e.opts.SubjectPrefix)
	return e.publishJSON(subject, notification)
}

func (e *NATSEngine) PublishAdminAlert(ctx context.Context, alert AdminAlert) error {
	if e == nil || e.js == nil {
		return nil
	}
	subject := fmt.Sprintf("%s.alerts.admin", e.opts.SubjectPrefix)
	return e.publishJSON(subject, alert)
}

func (e *NATSEngine) PublishTaskEvent(ctx context.Context, taskID string, event any) error {
	if e == nil || e.js == nil {
		return nil
	}
	subject := fmt.Sprintf("%s.events.task.%s", e.opts.SubjectPrefix, taskID)
	return e.publishJSON(subject, event)
}

// SubscribeDurable creates a durable pull-style push subscription with manual
// acks and a single in-flight message, so each worker processes events one at
// a time.
func (e *NATSEngine) SubscribeDurable(subject, consumer string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	if e == nil || e.js == nil {
		return nil, fmt.Errorf("nats engine is not running")
	}
	return e.js.Subscribe(subject, handler,
		nats.Durable(consumer),
		nats.ManualAck(),
		nats.MaxAckPending(1),
		nats.AckWait(30*time.Second),
	)
}

func (e *NATSEngine) publishJSON(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if _, err := e.js.Publish(subject, data); err != nil {
		logging.Error("Failed to publish to %s: %v", subject, err)
		return err
	}
	logging.Debug("Published event to %s", subject)
	return nil
}

// ClientURL returns the broker address, useful when the server is embedded.
func (e *NATSEngine) ClientURL() string {
	return e.opts.URL
}

func (e *NATSEngine) Close() {
	if e == nil {
		return
	}
	if e.conn != nil {
		e.conn.Close()
	}
	if e.server != nil {
		e.server.Shutdown()
	}
}
