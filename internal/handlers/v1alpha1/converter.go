package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

var validate = validator.New()

// SubmitBody creates a request
type SubmitBody struct {
	Owner string              `json:"owner" validate:"required"`
	Spec  model.Specification `json:"spec"`
}

// ApproveBody carries the network attributes assigned by the reviewer
type ApproveBody struct {
	IPAddress string `json:"ipAddress" validate:"required"`
	Subnet    string `json:"subnet"`
	Datastore string `json:"datastore"`
	Reviewer  string `json:"reviewer" validate:"required"`
}

func (b ApproveBody) network() model.Network {
	return model.Network{IPAddress: b.IPAddress, Subnet: b.Subnet, Datastore: b.Datastore}
}

type RefuseBody struct {
	Justification string `json:"justification" validate:"required"`
}

type ChangesBody struct {
	Comment string `json:"comment" validate:"required"`
}

type ResubmitBody struct {
	Spec model.Specification `json:"spec"`
}

type AssignBody struct {
	Assignee string `json:"assignee" validate:"required"`
}

type StepBody struct {
	Step string `json:"step" validate:"required"`
}

// RuleBody creates or replaces a governance rule. Rules are keyed by name,
// the id is always assigned by the store. An omitted active means active.
type RuleBody struct {
	Name              string `json:"name" validate:"required"`
	MaxRamGB          int    `json:"maxRamGb" validate:"gte=0"`
	MaxCpu            int    `json:"maxCpu" validate:"gte=0"`
	MaxDiskGB         int    `json:"maxDiskGb" validate:"gte=0"`
	RequireFirewall   bool   `json:"requireFirewall"`
	RequireEncryption bool   `json:"requireEncryption"`
	Active            *bool  `json:"active,omitempty"`
}

func (b RuleBody) rule() model.GovernanceRule {
	active := true
	if b.Active != nil {
		active = *b.Active
	}
	return model.GovernanceRule{
		Name:              b.Name,
		MaxRamGB:          b.MaxRamGB,
		MaxCpu:            b.MaxCpu,
		MaxDiskGB:         b.MaxDiskGB,
		RequireFirewall:   b.RequireFirewall,
		RequireEncryption: b.RequireEncryption,
		Active:            active,
	}
}

// ApproveResponse is returned by the approve endpoint
type ApproveResponse struct {
	Request   *model.Request   `json:"request"`
	WorkOrder *model.WorkOrder `json:"workOrder"`
}

// EvaluationResponse is the outcome of a governance dry run
type EvaluationResponse struct {
	Allowed bool `json:"allowed"`
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body is required", errBadRequest)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return validate.Struct(dst)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

func requestStatus(raw string) (*model.RequestStatus, error) {
	if raw == "" {
		return nil, nil
	}
	status := model.RequestStatus(raw)
	switch status {
	case model.RequestPending, model.RequestValidating, model.RequestToModify, model.RequestValidated,
		model.RequestRefused, model.RequestProvisioning, model.RequestProvisioned, model.RequestCompleted:
		return &status, nil
	}
	return nil, fmt.Errorf("%w: unknown request status %q", errBadRequest, raw)
}
