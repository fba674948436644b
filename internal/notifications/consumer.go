package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"flowline/internal/logging"
)

// TicketEvent is the logical ticket-ingestion contract consumed from the
// broker. Field names match the external ticketing source's payload.
type TicketEvent struct {
	TicketID    string          `json:"ticket_id"`
	Subject     string          `json:"subject"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Department  string          `json:"department"`
	Priority    string          `json:"priority"`
	Requester   string          `json:"requester"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
}

// TicketIngestor is implemented by the ticket service. The consumer is
// deliberately unaware of matching or task creation.
type TicketIngestor interface {
	IngestTicketEvent(ctx context.Context, event TicketEvent) error
}

// TicketConsumer drains the inbound ticket subject one message at a time and
// feeds each event through the same ingestion path the HTTP API uses.
type TicketConsumer struct {
	engine   *NATSEngine
	ingestor TicketIngestor

	mu           sync.Mutex
	subscription *nats.Subscription
	running      bool
}

func NewTicketConsumer(engine *NATSEngine, ingestor TicketIngestor) *TicketConsumer {
	return &TicketConsumer{engine: engine, ingestor: ingestor}
}

func (c *TicketConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	sub, err := c.engine.SubscribeDurable(c.engine.TicketInboundSubject(), "flowline-ticket-ingest", func(msg *nats.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return err
	}

	c.subscription = sub
	c.running = true
	logging.Info("Ticket consumer listening on %s", c.engine.TicketInboundSubject())
	return nil
}

func (c *TicketConsumer) handle(ctx context.Context, msg *nats.Msg) {
	var event TicketEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logging.Error("Dropping malformed ticket event: %v", err)
		msg.Ack()
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := c.ingestor.IngestTicketEvent(handleCtx, event); err != nil {
		// Structural failures (unmatched workflow) are absorbed by the
		// ingestor itself; an error here is infrastructural, so leave the
		// message unacked for redelivery.
		logging.Error("Ticket event %s failed ingestion, will retry: %v", event.TicketID, err)
		msg.Nak()
		return
	}

	msg.Ack()
}

func (c *TicketConsumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscription != nil {
		c.subscription.Unsubscribe()
		c.subscription = nil
	}
	c.running = false
}
