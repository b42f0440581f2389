package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/events"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

// Instance statuses reported to DCM
const (
	StatusInProgress = "PROVISIONING"
	StatusReady      = "READY"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
	StatusUnknown    = "UNKNOWN"
)

// RunObserver is told about every run status the orchestrator commits.
type RunObserver interface {
	RunChanged(ctx context.Context, run *model.ProvisioningRun)
}

// InstanceStatus is the body of a DCM instance status update
type InstanceStatus struct {
	Status  string  `json:"status"`
	Message *string `json:"message,omitempty"`
}

// StatusSync pushes run outcomes to the DCM instance status endpoint.
type StatusSync struct {
	logger      *zap.SugaredLogger
	dcmUrl      string
	restyClient *resty.Client
}

var _ RunObserver = (*StatusSync)(nil)

func NewStatusSync(dcmUrl string) *StatusSync {
	return &StatusSync{
		logger: zap.S().Named("status_sync"),
		dcmUrl: dcmUrl,
		restyClient: resty.New().
			SetTimeout(5*time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

// mapRunStatus maps a run status to the DCM instance status
func mapRunStatus(status model.RunStatus) string {
	switch status {
	case model.RunPending, model.RunRunning:
		return StatusInProgress
	case model.RunApplied:
		return StatusReady
	case model.RunError:
		return StatusFailed
	case model.RunCancelled:
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// RunChanged sends the instance status for the run's request
func (s *StatusSync) RunChanged(ctx context.Context, run *model.ProvisioningRun) {
	if s.dcmUrl == "" {
		s.logger.Debugw("DCM URL not configured, skipping status update", "run-id", run.ID)
		return
	}

	url := fmt.Sprintf("%s/instances/%s/status", s.dcmUrl, run.RequestID)
	status := mapRunStatus(run.Status)
	message := fmt.Sprintf("Provisioning run %s is %s", run.ID, run.Status)
	switch {
	case run.Status == model.RunApplied:
		message = fmt.Sprintf("VM provisioned with IP %s", run.IPAddress)
	case run.ErrorMessage != "":
		message = run.ErrorMessage
	}
	payload := InstanceStatus{Status: status, Message: &message}

	resp, err := s.restyClient.R().
		SetContext(ctx).
		SetBody(payload).
		Put(url)

	if err != nil {
		s.logger.Errorw("Error sending status update to DCM", "run-id", run.ID, "url", url, "error", err)
		return
	}

	if resp.StatusCode() != http.StatusOK {
		s.logger.Warnw("Status update returned non-success status", "run-id", run.ID, "url", url, "status-code", resp.StatusCode())
		return
	}
	s.logger.Infow("Updated instance status in DCM", "run-id", run.ID, "request-id", run.RequestID, "status", status)
}

// RunEventPublisher is the part of events.Publisher the orchestrator needs.
type RunEventPublisher interface {
	PublishRunEvent(ctx context.Context, runEvent events.RunEvent) error
}

// EventObserver publishes each run change as a CloudEvent.
type EventObserver struct {
	publisher RunEventPublisher
	logger    *zap.SugaredLogger
}

var _ RunObserver = (*EventObserver)(nil)

func NewEventObserver(p RunEventPublisher) *EventObserver {
	return &EventObserver{publisher: p, logger: zap.S().Named("run_events")}
}

func (e *EventObserver) RunChanged(ctx context.Context, run *model.ProvisioningRun) {
	err := e.publisher.PublishRunEvent(ctx, events.RunEvent{
		RunID:       run.ID.String(),
		RequestID:   run.RequestID.String(),
		WorkOrderID: run.WorkOrderID.String(),
		Status:      string(run.Status),
		IPAddress:   run.IPAddress,
		Message:     run.ErrorMessage,
		Timestamp:   time.Now(),
	})
	if err != nil {
		e.logger.Warnw("failed to publish run event", "run-id", run.ID, "status", run.Status, "error", err)
	}
}
