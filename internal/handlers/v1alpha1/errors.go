package v1alpha1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/governance"
	"github.com/dcm-project/terraform-service-provider/internal/service"
	"github.com/dcm-project/terraform-service-provider/internal/store"
)

const problemContentType = "application/problem+json"

// Problem is the application/problem+json error body
type Problem struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Status     int                    `json:"status"`
	Detail     string                 `json:"detail,omitempty"`
	Violations []governance.Violation `json:"violations,omitempty"`
}

// errBadRequest marks malformed input detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// MapError maps a service or store error to its problem body
func MapError(err error) Problem {
	var (
		violation  *governance.ViolationError
		validation validator.ValidationErrors
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newProblem(http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, service.ErrRunInProgress),
		errors.Is(err, store.ErrWorkOrderClosed),
		store.IsTransitionError(err):
		return newProblem(http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &violation):
		p := newProblem(http.StatusUnprocessableEntity, "Governance Violation", err.Error())
		p.Violations = violation.Violations
		return p
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidStep),
		errors.Is(err, errBadRequest),
		errors.As(err, &validation):
		return newProblem(http.StatusBadRequest, "Validation Error", err.Error())
	default:
		return newProblem(http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}

func newProblem(status int, title, detail string) Problem {
	return Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	problem := MapError(err)
	logger := zap.S().Named("handler")
	if problem.Status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.Infow("request rejected", "method", r.Method, "path", r.URL.Path, "status", problem.Status, "error", err)
	}
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
