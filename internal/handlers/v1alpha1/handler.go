package v1alpha1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/service"
	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

// Provisioner starts and cancels provisioning runs.
type Provisioner interface {
	StartProvisioning(ctx context.Context, workOrderID uuid.UUID) (*model.WorkOrder, error)
	CancelRun(ctx context.Context, runID uuid.UUID) error
}

type ServiceHandler struct {
	store       store.Store
	workflow    *service.Workflow
	provisioner Provisioner
	logger      *zap.SugaredLogger
}

func NewServiceHandler(s store.Store, workflow *service.Workflow, provisioner Provisioner) *ServiceHandler {
	return &ServiceHandler{
		store:       s,
		workflow:    workflow,
		provisioner: provisioner,
		logger:      zap.S().Named("handler"),
	}
}

// Routes mounts the v1alpha1 API on r.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.SubmitRequest)
		r.Get("/", h.ListRequests)
		r.Get("/{id}", h.GetRequest)
		r.Put("/{id}", h.ResubmitRequest)
		r.Post("/{id}/review", h.StartReview)
		r.Post("/{id}/approve", h.ApproveRequest)
		r.Post("/{id}/refuse", h.RefuseRequest)
		r.Post("/{id}/changes", h.RequestChanges)
		r.Post("/{id}/complete", h.CompleteRequest)
	})
	r.Route("/governance", func(r chi.Router) {
		r.Post("/evaluate", h.EvaluateGovernance)
		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.UpsertRule)
	})
	r.Route("/workorders/{id}", func(r chi.Router) {
		r.Get("/", h.GetWorkOrder)
		r.Post("/assign", h.AssignWorkOrder)
		r.Post("/steps", h.CompleteStep)
		r.Post("/provision", h.Provision)
		r.Get("/runs", h.ListRuns)
	})
	r.Get("/runs/{id}", h.GetRun)
	r.Post("/runs/{id}/cancel", h.CancelRun)
	r.Get("/vms", h.ListVMs)
	r.Get("/vms/{id}", h.GetVM)
	r.Get("/notifications", h.ListNotifications)
}

// GetHealth (GET /health)
func GetHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// SubmitRequest (POST /requests)
func (h *ServiceHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.workflow.Submit(r.Context(), body.Owner, body.Spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListRequests (GET /requests?status=)
func (h *ServiceHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status, err := requestStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := h.store.Request().List(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// GetRequest (GET /requests/{id})
func (h *ServiceHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.store.Request().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ResubmitRequest (PUT /requests/{id})
func (h *ServiceHandler) ResubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body ResubmitBody
	id, err := pathID(r)
	if err == nil {
		err = decode(r, &body)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.workflow.Resubmit(r.Context(), id, body.Spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// StartReview (POST /requests/{id}/review)
func (h *ServiceHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.workflow.StartReview(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ApproveRequest (POST /requests/{id}/approve)
func (h *ServiceHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body ApproveBody
	id, err := pathID(r)
	if err == nil {
		err = decode(r, &body)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, wo, err := h.workflow.Approve(r.Context(), id, body.network(), body.Reviewer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ApproveResponse{Request: req, WorkOrder: wo})
}

// RefuseRequest (POST /requests/{id}/refuse)
func (h *ServiceHandler) RefuseRequest(w http.ResponseWriter, r *http.Request) {
	var body RefuseBody
	id, err := pathID(r)
	if err == nil {
		err = decode(r, &body)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.workflow.Refuse(r.Context(), id, body.Justification)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// RequestChanges (POST /requests/{id}/changes)
func (h *ServiceHandler) RequestChanges(w http.ResponseWriter, r *http.Request) {
	var body ChangesBody
	id, err := pathID(r)
	if err == nil {
		err = decode(r, &body)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.workflow.RequestChanges(r.Context(), id, body.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// CompleteRequest (POST /requests/{id}/complete)
func (h *ServiceHandler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.workflow.Complete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// EvaluateGovernance (POST /governance/evaluate) is a dry run: violations
// come back as 422 and nothing is stored.
func (h *ServiceHandler) EvaluateGovernance(w http.ResponseWriter, r *http.Request) {
	var spec model.Specification
	if err := decode(r, &spec); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.workflow.EvaluateGovernance(r.Context(), spec); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluationResponse{Allowed: true})
}

// ListRules (GET /governance/rules)
func (h *ServiceHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.GovernanceRule().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// UpsertRule (POST /governance/rules) creates or replaces a rule by name
func (h *ServiceHandler) UpsertRule(w http.ResponseWriter, r *http.Request) {
	var body RuleBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := h.store.GovernanceRule().Upsert(r.Context(), body.rule())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.logger.Infow("governance rule saved", "rule", saved.Name, "active", saved.Active)
	writeJSON(w, http.StatusOK, saved)
}

// GetWorkOrder (GET /workorders/{id})
func (h *ServiceHandler) GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wo, err := h.store.WorkOrder().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

// AssignWorkOrder (POST /workorders/{id}/assign)
func (h *ServiceHandler) AssignWorkOrder(w http.ResponseWriter, r *http.Request) {
	var body AssignBody
	id, err := pathID(r)
	if err == nil {
		err = decode(r, &body)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	wo, err := h.workflow.Assign(r.Context(), id, body.Assignee)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

// CompleteStep (POST /workorders/{id}/steps)
func (h *ServiceHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	var body StepBody
	id, err := pathID(r)
	if err == nil {
		err = decode(r, &body)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	wo, err := h.workflow.CompleteStep(r.Context(), id, body.Step)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

// Provision (POST /workorders/{id}/provision) starts a run and returns at
// once with the IN_PROGRESS work order.
func (h *ServiceHandler) Provision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wo, err := h.provisioner.StartProvisioning(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, wo)
}

// ListRuns (GET /workorders/{id}/runs)
func (h *ServiceHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.store.WorkOrder().Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := h.store.ProvisioningRun().ListByWorkOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun (GET /runs/{id})
func (h *ServiceHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	run, err := h.store.ProvisioningRun().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelRun (POST /runs/{id}/cancel) requests cancellation; the run reaches
// CANCELLED once its process group is gone.
func (h *ServiceHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.provisioner.CancelRun(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	run, err := h.store.ProvisioningRun().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// ListVMs (GET /vms)
func (h *ServiceHandler) ListVMs(w http.ResponseWriter, r *http.Request) {
	vms, err := h.store.VM().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vms)
}

// GetVM (GET /vms/{id})
func (h *ServiceHandler) GetVM(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vm, err := h.store.VM().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// ListNotifications (GET /notifications?recipient=)
func (h *ServiceHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		writeError(w, r, fmt.Errorf("%w: recipient query parameter is required", errBadRequest))
		return
	}
	notifications, err := h.store.Notification().ListByRecipient(r.Context(), recipient)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}
