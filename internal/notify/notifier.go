// Package notify delivers user and role notifications. Delivery is best
// effort: a failing backend is logged and never reported to the caller.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/events"
	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

const deliveryTimeout = 5 * time.Second

type Notification struct {
	Recipient string
	Title     string
	Body      string
	RequestID *uuid.UUID
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Fanout delivers to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, notifier := range f {
		notifier.Notify(ctx, n)
	}
}

// StoreNotifier persists notifications so recipients can list them.
type StoreNotifier struct {
	store  store.Notification
	logger *zap.SugaredLogger
}

func NewStoreNotifier(s store.Notification) *StoreNotifier {
	return &StoreNotifier{store: s, logger: zap.S().Named("notify:store")}
}

func (s *StoreNotifier) Notify(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	_, err := s.store.Create(ctx, model.Notification{
		Recipient: n.Recipient,
		Title:     n.Title,
		Body:      n.Body,
		RequestID: n.RequestID,
	})
	if err != nil {
		s.logger.Errorw("failed to store notification", "recipient", n.Recipient, "title", n.Title, "error", err)
	}
}

// NotificationPublisher is the part of events.Publisher used here.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n events.NotificationEvent) error
}

// EventNotifier publishes notifications as CloudEvents.
type EventNotifier struct {
	publisher NotificationPublisher
	logger    *zap.SugaredLogger
}

func NewEventNotifier(p NotificationPublisher) *EventNotifier {
	return &EventNotifier{publisher: p, logger: zap.S().Named("notify:events")}
}

func (e *EventNotifier) Notify(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	event := events.NotificationEvent{
		Recipient: n.Recipient,
		Title:     n.Title,
		Body:      n.Body,
		Timestamp: time.Now(),
	}
	if n.RequestID != nil {
		event.RequestID = n.RequestID.String()
	}
	if err := e.publisher.PublishNotification(ctx, event); err != nil {
		e.logger.Warnw("failed to publish notification", "recipient", n.Recipient, "title", n.Title, "error", err)
	}
}
