package events

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CloudEvents", func() {
	timestamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	It("should wrap a run event", func() {
		event, err := NewRunEvent(RunEvent{
			RunID:     "run-1",
			RequestID: "req-1",
			Status:    "APPLIED",
			IPAddress: "10.0.0.4",
			Timestamp: timestamp,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(event.Validate()).To(Succeed())
		Expect(event.Type()).To(Equal(RunStatusEventType))
		Expect(event.Source()).To(Equal("dcm.providers.terraform"))
		Expect(event.Subject()).To(Equal("run.run-1"))
		Expect(event.Time()).To(BeTemporally("==", timestamp))
		Expect(event.DataContentType()).To(Equal(cloudevents.ApplicationJSON))

		var data RunEvent
		Expect(event.DataAs(&data)).To(Succeed())
		Expect(data.Status).To(Equal("APPLIED"))
		Expect(data.IPAddress).To(Equal("10.0.0.4"))
	})

	It("should wrap a notification addressed to its recipient", func() {
		event, err := NewNotificationEvent(NotificationEvent{
			Recipient: "alice",
			Title:     "VM provisioned",
			Timestamp: timestamp,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(event.Type()).To(Equal(NotificationEventType))
		Expect(event.Subject()).To(Equal("alice"))

		var data NotificationEvent
		Expect(event.DataAs(&data)).To(Succeed())
		Expect(data.Title).To(Equal("VM provisioned"))
	})

	It("should give every event its own id", func() {
		first, err := NewRunEvent(RunEvent{RunID: "run-1", Timestamp: timestamp})
		Expect(err).NotTo(HaveOccurred())
		second, err := NewRunEvent(RunEvent{RunID: "run-1", Timestamp: timestamp})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.ID()).NotTo(Equal(second.ID()))
	})
})

var _ = Describe("Publisher", func() {
	It("should fail to start without a reachable server", func() {
		_, err := NewPublisher(PublisherConfig{
			NATSURL:       "nats://127.0.0.1:1",
			SubjectPrefix: "dcm.terraform",
			Timeout:       200 * time.Millisecond,
		})
		Expect(err).To(MatchError(ContainSubstring("failed to create NATS publisher")))
	})

	It("should refuse to publish without a connection", func() {
		p := &Publisher{subjectPrefix: "dcm.terraform", timeout: time.Second}
		Expect(p.IsConnected()).To(BeFalse())
		err := p.PublishRunEvent(context.Background(), RunEvent{RunID: "run-1"})
		Expect(err).To(MatchError("NATS connection not available"))
		Expect(p.Close()).To(Succeed())
	})

	It("should not publish for a cancelled context", func() {
		p := &Publisher{subjectPrefix: "dcm.terraform"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(p.PublishNotification(ctx, NotificationEvent{Recipient: "alice"})).To(MatchError(context.Canceled))
	})
})
