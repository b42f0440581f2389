package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/terraform-service-provider/internal/config"
	"github.com/dcm-project/terraform-service-provider/internal/events"
	"github.com/dcm-project/terraform-service-provider/internal/store"
)

type recordingNotifier struct {
	received []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.received = append(r.received, n)
}

type fakePublisher struct {
	published []events.NotificationEvent
	err       error
	ctxErr    error
}

func (f *fakePublisher) PublishNotification(ctx context.Context, n events.NotificationEvent) error {
	f.ctxErr = ctx.Err()
	f.published = append(f.published, n)
	return f.err
}

var _ = Describe("Fanout", func() {
	It("should deliver to every notifier in order", func() {
		first, second := &recordingNotifier{}, &recordingNotifier{}
		n := Notification{Recipient: "alice", Title: "hello"}
		Fanout{first, second}.Notify(context.Background(), n)

		Expect(first.received).To(Equal([]Notification{n}))
		Expect(second.received).To(Equal([]Notification{n}))
	})

	It("should do nothing when empty", func() {
		Expect(func() { Fanout(nil).Notify(context.Background(), Notification{}) }).NotTo(Panic())
	})
})

var _ = Describe("StoreNotifier", func() {
	var s store.Store

	BeforeEach(func() {
		db, err := store.InitDB(&config.DatabaseConfig{
			Type: "sqlite",
			Name: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		})
		Expect(err).NotTo(HaveOccurred())
		s = store.NewStore(db)
		DeferCleanup(s.Close)
	})

	It("should persist the notification", func() {
		requestID := uuid.New()
		NewStoreNotifier(s.Notification()).Notify(context.Background(), Notification{
			Recipient: "alice",
			Title:     "Request approved",
			Body:      "approved",
			RequestID: &requestID,
		})

		list, err := s.Notification().ListByRecipient(context.Background(), "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].Title).To(Equal("Request approved"))
		Expect(list[0].Body).To(Equal("approved"))
		Expect(*list[0].RequestID).To(Equal(requestID))
	})

	It("should persist even when the caller's context is done", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		NewStoreNotifier(s.Notification()).Notify(ctx, Notification{Recipient: "bob", Title: "late"})

		list, err := s.Notification().ListByRecipient(context.Background(), "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
	})
})

var _ = Describe("EventNotifier", func() {
	It("should publish the notification as an event", func() {
		publisher := &fakePublisher{}
		requestID := uuid.New()
		NewEventNotifier(publisher).Notify(context.Background(), Notification{
			Recipient: "role:support",
			Title:     "New work order",
			Body:      "body",
			RequestID: &requestID,
		})

		Expect(publisher.published).To(HaveLen(1))
		event := publisher.published[0]
		Expect(event.Recipient).To(Equal("role:support"))
		Expect(event.Title).To(Equal("New work order"))
		Expect(event.RequestID).To(Equal(requestID.String()))
		Expect(event.Timestamp).NotTo(BeZero())
	})

	It("should detach from a cancelled caller and swallow failures", func() {
		publisher := &fakePublisher{err: errors.New("NATS connection not available")}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		NewEventNotifier(publisher).Notify(ctx, Notification{Recipient: "alice"})

		Expect(publisher.published).To(HaveLen(1))
		Expect(publisher.ctxErr).NotTo(HaveOccurred())
		Expect(publisher.published[0].RequestID).To(BeEmpty())
	})
})
