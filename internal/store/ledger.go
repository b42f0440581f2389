package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

// Ledger is the only writer of request, work order and run statuses. Every
// change is checked against the lifecycle tables and applied with a
// compare-and-swap on the current status, so a rejected transition leaves
// the row untouched.
type Ledger interface {
	Submit(ctx context.Context, req model.Request) (*model.Request, error)
	TransitionRequest(ctx context.Context, id uuid.UUID, from, to model.RequestStatus, mutate func(*model.Request)) (*model.Request, error)
	TransitionWorkOrder(ctx context.Context, id uuid.UUID, from, to model.WorkOrderStatus, mutate func(*model.WorkOrder)) (*model.WorkOrder, error)
	TransitionRun(ctx context.Context, id uuid.UUID, from, to model.RunStatus, mutate func(*model.ProvisioningRun)) (*model.ProvisioningRun, error)

	Approve(ctx context.Context, requestID uuid.UUID, network model.Network, reviewer string, steps []string) (*model.Request, *model.WorkOrder, error)
	BeginProvisioning(ctx context.Context, workOrderID uuid.UUID) (*model.WorkOrder, *model.ProvisioningRun, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, result RunResult, vm model.VM) (*model.ProvisioningRun, error)
	FailRun(ctx context.Context, runID uuid.UUID, to model.RunStatus, output, message string) (*model.ProvisioningRun, error)
}

// RunResult carries what a successful apply produced.
type RunResult struct {
	Output     string
	Outputs    map[string]string
	ResourceID string
	IPAddress  string
}

type LedgerStore struct {
	db *gorm.DB
}

var _ Ledger = (*LedgerStore)(nil)

func NewLedger(db *gorm.DB) Ledger {
	return &LedgerStore{db: db}
}

type lifecycle[T any, S ~string] struct {
	name   string
	can    func(from, to S) bool
	status func(*T) *S
	check  func(*T) string
}

var (
	requestLifecycle = lifecycle[model.Request, model.RequestStatus]{
		name:   "request",
		can:    CanTransitionRequest,
		status: func(r *model.Request) *model.RequestStatus { return &r.Status },
		check:  checkRequest,
	}
	workOrderLifecycle = lifecycle[model.WorkOrder, model.WorkOrderStatus]{
		name:   "work order",
		can:    CanTransitionWorkOrder,
		status: func(w *model.WorkOrder) *model.WorkOrderStatus { return &w.Status },
		check:  checkWorkOrder,
	}
	runLifecycle = lifecycle[model.ProvisioningRun, model.RunStatus]{
		name:   "provisioning run",
		can:    CanTransitionRun,
		status: func(r *model.ProvisioningRun) *model.RunStatus { return &r.Status },
		check:  func(*model.ProvisioningRun) string { return "" },
	}
)

// transition moves the entity id to status to. A nil from accepts whatever
// the current status is, as long as the table allows the move.
func (l lifecycle[T, S]) transition(tx *gorm.DB, id uuid.UUID, from *S, to S, mutate func(*T)) (*T, error) {
	var cur T
	if err := tx.First(&cur, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	current := *l.status(&cur)
	reject := func(reason string) error {
		return &TransitionError{Entity: l.name, ID: id, From: string(current), To: string(to), Reason: reason}
	}
	if from != nil && current != *from {
		return nil, &TransitionError{
			Entity: l.name, ID: id, From: string(*from), To: string(to),
			Reason: fmt.Sprintf("current status is %s", current),
		}
	}
	if !l.can(current, to) {
		return nil, reject("")
	}

	next := cur
	*l.status(&next) = to
	if mutate != nil {
		mutate(&next)
	}
	if reason := l.check(&next); reason != "" {
		return nil, reject(reason)
	}

	result := tx.Model(&cur).Where("status = ?", current).Select("*").Omit("id", "created_at").Updates(&next)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, reject("status changed concurrently")
	}
	return &next, nil
}

func checkRequest(r *model.Request) string {
	if r.Status.HasNetwork() {
		if r.Network.IPAddress == "" {
			return fmt.Sprintf("status %s requires an assigned IP address", r.Status)
		}
	} else if r.Network.IsSet() {
		return fmt.Sprintf("status %s must not carry network attributes", r.Status)
	}
	if r.Status == model.RequestRefused && r.Justification == "" {
		return "a refusal requires a justification"
	}
	return ""
}

func checkWorkOrder(w *model.WorkOrder) string {
	hasResult, hasError := w.Result != "", w.Error != ""
	if w.Status.Terminal() {
		if hasResult == hasError {
			return fmt.Sprintf("status %s requires exactly one of result or error", w.Status)
		}
	} else if hasResult || hasError {
		return fmt.Sprintf("status %s must not carry a result or error", w.Status)
	}
	return ""
}

func (s *LedgerStore) Submit(ctx context.Context, req model.Request) (*model.Request, error) {
	req.ID = uuid.New()
	req.Status = model.RequestPending
	req.Network = model.Network{}
	req.ValidatedAt, req.ProvisioningAt, req.CompletedAt = nil, nil, nil
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *LedgerStore) TransitionRequest(ctx context.Context, id uuid.UUID, from, to model.RequestStatus, mutate func(*model.Request)) (*model.Request, error) {
	var req *model.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = requestLifecycle.transition(tx, id, &from, to, mutate)
		return err
	})
	return req, err
}

func (s *LedgerStore) TransitionWorkOrder(ctx context.Context, id uuid.UUID, from, to model.WorkOrderStatus, mutate func(*model.WorkOrder)) (*model.WorkOrder, error) {
	var wo *model.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wo, err = workOrderLifecycle.transition(tx, id, &from, to, mutate)
		return err
	})
	return wo, err
}

func (s *LedgerStore) TransitionRun(ctx context.Context, id uuid.UUID, from, to model.RunStatus, mutate func(*model.ProvisioningRun)) (*model.ProvisioningRun, error) {
	var run *model.ProvisioningRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		run, err = runLifecycle.transition(tx, id, &from, to, mutate)
		return err
	})
	return run, err
}

// Approve validates the request with its network attributes and opens a work order for it.
func (s *LedgerStore) Approve(ctx context.Context, requestID uuid.UUID, network model.Network, reviewer string, steps []string) (*model.Request, *model.WorkOrder, error) {
	var (
		req *model.Request
		wo  *model.WorkOrder
	)
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = requestLifecycle.transition(tx, requestID, nil, model.RequestValidated, func(r *model.Request) {
			r.Network = network
			r.Reviewer = reviewer
			r.ValidatedAt = &now
			r.ChangesComment = ""
		})
		if err != nil {
			return err
		}

		wo = &model.WorkOrder{
			ID:             uuid.New(),
			RequestID:      requestID,
			Status:         model.WorkOrderPending,
			Steps:          append([]string(nil), steps...),
			CompletedSteps: []string{},
		}
		return tx.Create(wo).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return req, wo, nil
}

// BeginProvisioning opens a PENDING run for the work order. The work order
// moves to IN_PROGRESS and its request to PROVISIONING in the same
// transaction. ErrRunActive is returned when the request already has a
// PENDING or RUNNING run.
func (s *LedgerStore) BeginProvisioning(ctx context.Context, workOrderID uuid.UUID) (*model.WorkOrder, *model.ProvisioningRun, error) {
	var (
		wo  *model.WorkOrder
		run *model.ProvisioningRun
	)
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.WorkOrder
		if err := tx.First(&current, "id = ?", workOrderID).Error; err != nil {
			return notFound(err)
		}
		if active, err := activeRun(tx, current.RequestID); err == nil {
			return fmt.Errorf("run %s: %w", active.ID, ErrRunActive)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		pending := model.WorkOrderPending
		var err error
		wo, err = workOrderLifecycle.transition(tx, workOrderID, &pending, model.WorkOrderInProgress, func(w *model.WorkOrder) {
			w.StartedAt = &now
		})
		if err != nil {
			return err
		}

		validated := model.RequestValidated
		if _, err := requestLifecycle.transition(tx, current.RequestID, &validated, model.RequestProvisioning, func(r *model.Request) {
			r.ProvisioningAt = &now
		}); err != nil {
			return err
		}

		run = &model.ProvisioningRun{
			ID:          uuid.New(),
			WorkOrderID: workOrderID,
			RequestID:   current.RequestID,
			Status:      model.RunPending,
		}
		return tx.Create(run).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return wo, run, nil
}

// CompleteRun commits a successful apply: the run becomes APPLIED, its work
// order COMPLETE, its request PROVISIONED and vm is stored.
func (s *LedgerStore) CompleteRun(ctx context.Context, runID uuid.UUID, result RunResult, vm model.VM) (*model.ProvisioningRun, error) {
	var run *model.ProvisioningRun
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		running := model.RunRunning
		var err error
		run, err = runLifecycle.transition(tx, runID, &running, model.RunApplied, func(r *model.ProvisioningRun) {
			r.Output = result.Output
			r.Outputs = result.Outputs
			r.ResourceID = result.ResourceID
			r.IPAddress = result.IPAddress
			r.CompletedAt = &now
		})
		if err != nil {
			return err
		}

		inProgress := model.WorkOrderInProgress
		if _, err := workOrderLifecycle.transition(tx, run.WorkOrderID, &inProgress, model.WorkOrderComplete, func(w *model.WorkOrder) {
			w.Result = fmt.Sprintf("VM %s provisioned with IP %s", vm.Name, result.IPAddress)
			w.CompletedAt = &now
		}); err != nil {
			return err
		}

		provisioning := model.RequestProvisioning
		if _, err := requestLifecycle.transition(tx, run.RequestID, &provisioning, model.RequestProvisioned, nil); err != nil {
			return err
		}

		if vm.ID == uuid.Nil {
			vm.ID = uuid.New()
		}
		vm.RequestID = run.RequestID
		vm.RunID = run.ID
		return tx.Create(&vm).Error
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FailRun moves the run to ERROR or CANCELLED and closes its work order with
// message. The request goes back to PENDING without its network attributes
// so it re-enters review; a new approval opens a new work order.
func (s *LedgerStore) FailRun(ctx context.Context, runID uuid.UUID, to model.RunStatus, output, message string) (*model.ProvisioningRun, error) {
	if to != model.RunError && to != model.RunCancelled {
		return nil, fmt.Errorf("run cannot fail into status %s", to)
	}
	if message == "" {
		message = "provisioning failed"
	}

	var run *model.ProvisioningRun
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		run, err = runLifecycle.transition(tx, runID, nil, to, func(r *model.ProvisioningRun) {
			r.Output = output
			r.ErrorMessage = message
			r.CompletedAt = &now
		})
		if err != nil {
			return err
		}

		inProgress := model.WorkOrderInProgress
		if _, err := workOrderLifecycle.transition(tx, run.WorkOrderID, &inProgress, model.WorkOrderError, func(w *model.WorkOrder) {
			w.Error = message
			w.CompletedAt = &now
		}); err != nil {
			return err
		}

		provisioning := model.RequestProvisioning
		_, err = requestLifecycle.transition(tx, run.RequestID, &provisioning, model.RequestPending, func(r *model.Request) {
			r.Network = model.Network{}
			r.ValidatedAt = nil
			r.ProvisioningAt = nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}
