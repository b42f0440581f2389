package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
	"github.com/dcm-project/terraform-service-provider/internal/governance"
	"github.com/dcm-project/terraform-service-provider/internal/metrics"
	"github.com/dcm-project/terraform-service-provider/internal/notify"
	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

// Workflow carries a request from submission to approval and, once its VM
// runs, to completion. All status changes go through the Ledger.
type Workflow struct {
	store    store.Store
	notifier notify.Notifier
	logger   *zap.SugaredLogger
}

func NewWorkflow(s store.Store, notifier notify.Notifier) *Workflow {
	if notifier == nil {
		notifier = notify.Fanout(nil)
	}
	return &Workflow{
		store:    s,
		notifier: notifier,
		logger:   zap.S().Named("workflow"),
	}
}

// Submit records a new PENDING request for owner.
func (w *Workflow) Submit(ctx context.Context, owner string, spec model.Specification) (*model.Request, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	req, err := w.store.Ledger().Submit(ctx, model.Request{Owner: owner, Spec: spec})
	if err != nil {
		return nil, err
	}
	w.logger.Infow("request submitted", "request-id", req.ID, "owner", owner)

	w.notify(ctx, req.ID, "Request submitted",
		fmt.Sprintf("Your VM request %s has been submitted and is awaiting review.", req.ID), owner)
	w.notify(ctx, req.ID, "New VM request",
		fmt.Sprintf("Request %s from %s needs review.", req.ID, owner), constants.RoleCloudTeam)
	return req, nil
}

func (w *Workflow) StartReview(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	return w.store.Ledger().TransitionRequest(ctx, id, model.RequestPending, model.RequestValidating, nil)
}

// EvaluateGovernance reports the active rules spec breaches, as a
// *governance.ViolationError.
func (w *Workflow) EvaluateGovernance(ctx context.Context, spec model.Specification) error {
	return governance.Check(ctx, w.store.GovernanceRule(), spec)
}

// Approve validates the request and opens its work order. A governance
// violation leaves the request untouched.
func (w *Workflow) Approve(ctx context.Context, id uuid.UUID, network model.Network, reviewer string) (*model.Request, *model.WorkOrder, error) {
	if strings.TrimSpace(network.IPAddress) == "" {
		return nil, nil, fmt.Errorf("%w: an IP address is required to approve a request", ErrInvalidInput)
	}
	req, err := w.store.Request().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := w.EvaluateGovernance(ctx, req.Spec); err != nil {
		var violation *governance.ViolationError
		if errors.As(err, &violation) {
			metrics.GovernanceRejected()
			w.logger.Infow("approval rejected by governance", "request-id", id, "reason", err)
			w.notify(ctx, id, "Request rejected by governance",
				fmt.Sprintf("Request %s cannot be approved: %s", id, err), req.Owner)
		}
		return nil, nil, err
	}

	req, wo, err := w.store.Ledger().Approve(ctx, id, network, reviewer, constants.DefaultWorkOrderSteps)
	if err != nil {
		return nil, nil, err
	}
	w.logger.Infow("request approved", "request-id", id, "work-order-id", wo.ID, "reviewer", reviewer)

	w.notify(ctx, id, "Request approved",
		fmt.Sprintf("Your VM request %s was approved with IP address %s.", id, network.IPAddress), req.Owner)
	w.notify(ctx, id, "New work order",
		fmt.Sprintf("Work order %s was opened for request %s.", wo.ID, id), constants.RoleSupport)
	return req, wo, nil
}

func (w *Workflow) Refuse(ctx context.Context, id uuid.UUID, justification string) (*model.Request, error) {
	if strings.TrimSpace(justification) == "" {
		return nil, fmt.Errorf("%w: a refusal requires a justification", ErrInvalidInput)
	}
	req, err := w.fromCurrent(ctx, id, model.RequestRefused, func(r *model.Request) {
		r.Justification = justification
	})
	if err != nil {
		return nil, err
	}
	w.notify(ctx, id, "Request refused",
		fmt.Sprintf("Your VM request %s was refused: %s", id, justification), req.Owner)
	return req, nil
}

func (w *Workflow) RequestChanges(ctx context.Context, id uuid.UUID, comment string) (*model.Request, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, fmt.Errorf("%w: a change request requires a comment", ErrInvalidInput)
	}
	req, err := w.fromCurrent(ctx, id, model.RequestToModify, func(r *model.Request) {
		r.ChangesComment = comment
	})
	if err != nil {
		return nil, err
	}
	w.notify(ctx, id, "Changes requested",
		fmt.Sprintf("Your VM request %s needs changes: %s", id, comment), req.Owner)
	return req, nil
}

// Resubmit replaces the specification of a request sent back for changes.
func (w *Workflow) Resubmit(ctx context.Context, id uuid.UUID, spec model.Specification) (*model.Request, error) {
	req, err := w.store.Ledger().TransitionRequest(ctx, id, model.RequestToModify, model.RequestPending, func(r *model.Request) {
		r.Spec = spec
		r.ChangesComment = ""
	})
	if err != nil {
		return nil, err
	}
	w.notify(ctx, id, "Request resubmitted",
		fmt.Sprintf("Request %s was updated by %s and needs review.", id, req.Owner), constants.RoleCloudTeam)
	return req, nil
}

func (w *Workflow) Assign(ctx context.Context, workOrderID uuid.UUID, assignee string) (*model.WorkOrder, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, fmt.Errorf("%w: assignee is required", ErrInvalidInput)
	}
	wo, err := w.store.WorkOrder().Assign(ctx, workOrderID, assignee)
	if err != nil {
		return nil, err
	}
	w.notify(ctx, wo.RequestID, "Work order assigned",
		fmt.Sprintf("Work order %s was assigned to you.", wo.ID), assignee)
	return wo, nil
}

func (w *Workflow) CompleteStep(ctx context.Context, workOrderID uuid.UUID, step string) (*model.WorkOrder, error) {
	return w.store.WorkOrder().CompleteStep(ctx, workOrderID, step)
}

// Complete closes a request whose VM has been handed over.
func (w *Workflow) Complete(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	now := time.Now()
	req, err := w.store.Ledger().TransitionRequest(ctx, id, model.RequestProvisioned, model.RequestCompleted, func(r *model.Request) {
		r.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	w.notify(ctx, id, "Request completed",
		fmt.Sprintf("Your VM request %s is complete.", id), req.Owner)
	return req, nil
}

// fromCurrent applies a review decision to whatever review status the
// request is in. The move is still rejected if the status changes meanwhile.
func (w *Workflow) fromCurrent(ctx context.Context, id uuid.UUID, to model.RequestStatus, mutate func(*model.Request)) (*model.Request, error) {
	cur, err := w.store.Request().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.store.Ledger().TransitionRequest(ctx, id, cur.Status, to, mutate)
}

func (w *Workflow) notify(ctx context.Context, requestID uuid.UUID, title, body string, recipients ...string) {
	for _, recipient := range recipients {
		w.notifier.Notify(ctx, notify.Notification{
			Recipient: recipient,
			Title:     title,
			Body:      body,
			RequestID: &requestID,
		})
	}
}
