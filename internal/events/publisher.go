package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	RunStatusEventType    = "dcm.providers.terraform.run.status"
	NotificationEventType = "dcm.providers.terraform.notification"

	eventSource = "dcm.providers.terraform"
)

// RunEvent reports a provisioning run status change
type RunEvent struct {
	RunID       string    `json:"runId"`
	RequestID   string    `json:"requestId"`
	WorkOrderID string    `json:"workOrderId"`
	Status      string    `json:"status"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NotificationEvent carries a user or role notification
type NotificationEvent struct {
	Recipient string    `json:"recipient"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher handles NATS event publishing with CloudEvents formatting
type Publisher struct {
	natsConn      *nats.Conn
	natsURL       string
	subjectPrefix string
	timeout       time.Duration
	maxReconnect  int
	logger        *zap.SugaredLogger
}

// PublisherConfig contains configuration for the event publisher
type PublisherConfig struct {
	NATSURL       string
	SubjectPrefix string
	Timeout       time.Duration
	MaxReconnect  int
}

// NewPublisher creates a new NATS publisher
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	p := &Publisher{
		natsURL:       config.NATSURL,
		subjectPrefix: config.SubjectPrefix,
		timeout:       config.Timeout,
		maxReconnect:  config.MaxReconnect,
		logger:        zap.S().Named("events"),
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	return p, nil
}

// connect establishes connection to NATS server
func (p *Publisher) connect() error {
	opts := []nats.Option{
		nats.Name("terraform-service-provider"),
		nats.Timeout(p.timeout),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(p.maxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			p.logger.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			p.logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(p.natsURL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.natsConn = nc
	return nil
}

// NewRunEvent wraps runEvent in a CloudEvent
func NewRunEvent(runEvent RunEvent) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.New().String())
	event.SetType(RunStatusEventType)
	event.SetSource(eventSource)
	event.SetSubject(fmt.Sprintf("run.%s", runEvent.RunID))
	event.SetTime(runEvent.Timestamp)
	if err := event.SetData(cloudevents.ApplicationJSON, runEvent); err != nil {
		return event, fmt.Errorf("failed to set CloudEvent data: %w", err)
	}
	return event, nil
}

// NewNotificationEvent wraps n in a CloudEvent
func NewNotificationEvent(n NotificationEvent) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.New().String())
	event.SetType(NotificationEventType)
	event.SetSource(eventSource)
	event.SetSubject(n.Recipient)
	event.SetTime(n.Timestamp)
	if err := event.SetData(cloudevents.ApplicationJSON, n); err != nil {
		return event, fmt.Errorf("failed to set CloudEvent data: %w", err)
	}
	return event, nil
}

// PublishRunEvent publishes a run status change on <prefix>.<runID>
func (p *Publisher) PublishRunEvent(ctx context.Context, runEvent RunEvent) error {
	event, err := NewRunEvent(runEvent)
	if err != nil {
		return err
	}
	return p.publish(ctx, fmt.Sprintf("%s.%s", p.subjectPrefix, runEvent.RunID), event)
}

// PublishNotification publishes n on <prefix>.notifications
func (p *Publisher) PublishNotification(ctx context.Context, n NotificationEvent) error {
	event, err := NewNotificationEvent(n)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.subjectPrefix+".notifications", event)
}

func (p *Publisher) publish(ctx context.Context, subject string, event cloudevents.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.natsConn == nil || !p.natsConn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	if err := p.natsConn.Publish(subject, eventData); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	if err := p.natsConn.FlushTimeout(p.timeout); err != nil {
		return fmt.Errorf("failed to flush NATS message: %w", err)
	}

	p.logger.Debugw("published event", "type", event.Type(), "subject", subject)
	return nil
}

// Close gracefully closes the NATS connection
func (p *Publisher) Close() error {
	if p.natsConn != nil {
		p.natsConn.Close()
	}
	return nil
}

// IsConnected returns whether NATS connection is active
func (p *Publisher) IsConnected() bool {
	return p.natsConn != nil && p.natsConn.IsConnected()
}
