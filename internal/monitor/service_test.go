package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/terraform-service-provider/internal/config"
	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

var _ = DescribeTable("Classify",
	func(status model.RunStatus, age time.Duration, owned, startup bool, expected RunHealth) {
		now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		started := now.Add(-age)
		run := &model.ProvisioningRun{Status: status, StartedAt: &started}
		Expect(Classify(run, now, time.Hour, owned, startup)).To(Equal(expected))
	},
	Entry("terminal run", model.RunApplied, 2*time.Hour, false, true, RunClosed),
	Entry("owned run", model.RunRunning, 2*time.Hour, true, false, RunHealthy),
	Entry("owned run at startup", model.RunRunning, time.Minute, true, true, RunHealthy),
	Entry("unowned run at startup", model.RunRunning, time.Minute, false, true, RunOrphaned),
	Entry("unowned pending run at startup", model.RunPending, time.Second, false, true, RunOrphaned),
	Entry("unowned old run", model.RunRunning, 2*time.Hour, false, false, RunStale),
	Entry("unowned young run", model.RunPending, time.Minute, false, false, RunWaiting),
)

var _ = Describe("lastMove", func() {
	It("should prefer the start time, then the update time", func() {
		created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		updated := created.Add(time.Minute)
		started := created.Add(2 * time.Minute)

		Expect(lastMove(&model.ProvisioningRun{CreatedAt: created})).To(Equal(created))
		Expect(lastMove(&model.ProvisioningRun{CreatedAt: created, UpdatedAt: updated})).To(Equal(updated))
		Expect(lastMove(&model.ProvisioningRun{CreatedAt: created, UpdatedAt: updated, StartedAt: &started})).To(Equal(started))
	})
})

// fakeOwner closes runs through the Ledger the way the orchestrator does.
type fakeOwner struct {
	mu     sync.Mutex
	ledger store.Ledger
	active map[uuid.UUID]bool
	failed map[uuid.UUID]string
	err    error
}

func (f *fakeOwner) IsActive(runID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[runID]
}

func (f *fakeOwner) FailOrphan(ctx context.Context, runID uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.failed[runID] = message
	_, err := f.ledger.FailRun(ctx, runID, model.RunError, "", message)
	return err
}

func (f *fakeOwner) Failed() map[uuid.UUID]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]string, len(f.failed))
	for k, v := range f.failed {
		out[k] = v
	}
	return out
}

var _ = Describe("Service", func() {
	var (
		ctx   context.Context
		s     store.Store
		owner *fakeOwner
		svc   *Service
	)

	openRun := func(owner string) *model.ProvisioningRun {
		req, err := s.Ledger().Submit(ctx, model.Request{Owner: owner})
		Expect(err).NotTo(HaveOccurred())
		_, wo, err := s.Ledger().Approve(ctx, req.ID, model.Network{IPAddress: "10.0.0.5"}, "bob", nil)
		Expect(err).NotTo(HaveOccurred())
		_, run, err := s.Ledger().BeginProvisioning(ctx, wo.ID)
		Expect(err).NotTo(HaveOccurred())
		return run
	}

	statusOf := func(id uuid.UUID) model.RunStatus {
		run, err := s.ProvisioningRun().Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return run.Status
	}

	BeforeEach(func() {
		ctx = context.Background()
		db, err := store.InitDB(&config.DatabaseConfig{
			Type: "sqlite",
			Name: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		})
		Expect(err).NotTo(HaveOccurred())
		s = store.NewStore(db)
		DeferCleanup(s.Close)

		owner = &fakeOwner{ledger: s.Ledger(), active: map[uuid.UUID]bool{}, failed: map[uuid.UUID]string{}}
		svc = NewMonitorService(s.ProvisioningRun(), owner, MonitorConfig{Interval: 20 * time.Millisecond, StaleAfter: time.Hour})
	})

	Describe("Sweep", func() {
		It("should close every unowned run at startup", func() {
			orphan := openRun("alice")
			owned := openRun("dave")
			owner.active[owned.ID] = true

			closed, err := svc.Sweep(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(closed).To(Equal(1))
			Expect(owner.Failed()).To(Equal(map[uuid.UUID]string{orphan.ID: "interrupted by provider restart"}))
			Expect(statusOf(orphan.ID)).To(Equal(model.RunError))
			Expect(statusOf(owned.ID)).To(Equal(model.RunPending))
		})

		It("should leave young unowned runs alone after startup", func() {
			run := openRun("alice")
			closed, err := svc.Sweep(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(closed).To(BeZero())
			Expect(statusOf(run.ID)).To(Equal(model.RunPending))
		})

		It("should close runs that have not moved within the stale limit", func() {
			run := openRun("alice")
			svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

			closed, err := svc.Sweep(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(closed).To(Equal(1))
			Expect(owner.Failed()[run.ID]).To(Equal("run abandoned: no progress within 1h0m0s"))
		})

		It("should keep sweeping when a run cannot be closed", func() {
			openRun("alice")
			owner.err = errors.New("database is locked")

			closed, err := svc.Sweep(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(closed).To(BeZero())
		})
	})

	Describe("Run", func() {
		It("should recover orphans first and stop with its context", func() {
			run := openRun("alice")
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- svc.Run(runCtx) }()

			Eventually(func() model.RunStatus { return statusOf(run.ID) }).Should(Equal(model.RunError))
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
