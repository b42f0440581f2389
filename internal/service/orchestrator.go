package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
	"github.com/dcm-project/terraform-service-provider/internal/governance"
	"github.com/dcm-project/terraform-service-provider/internal/metrics"
	"github.com/dcm-project/terraform-service-provider/internal/notify"
	"github.com/dcm-project/terraform-service-provider/internal/service/mapper"
	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
	"github.com/dcm-project/terraform-service-provider/internal/terraform"
)

const (
	commitTimeout     = 30 * time.Second
	notifyOutputLines = 20
)

type OrchestratorConfig struct {
	Client       *terraform.Client
	Materializer *terraform.Materializer
	Arena        *terraform.Arena
	Notifier     notify.Notifier
	Observers    []RunObserver
	Outputs      []string
	IPPreference []string
}

// Orchestrator executes provisioning runs. Each run is a goroutine of its
// own whose single outcome is committed through the Ledger once. A request
// has at most one run in flight.
type Orchestrator struct {
	store        store.Store
	client       *terraform.Client
	materializer *terraform.Materializer
	arena        *terraform.Arena
	notifier     notify.Notifier
	observers    []RunObserver
	outputs      []string
	ipPreference []string
	baseCtx      context.Context
	logger       *zap.SugaredLogger

	mu        sync.Mutex
	byRequest map[uuid.UUID]uuid.UUID
	cancels   map[uuid.UUID]context.CancelCauseFunc
	wg        sync.WaitGroup
}

// NewOrchestrator returns an orchestrator whose runs live until ctx is done.
func NewOrchestrator(ctx context.Context, s store.Store, cfg OrchestratorConfig) *Orchestrator {
	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = constants.DefaultOutputs
	}
	ipPreference := cfg.IPPreference
	if len(ipPreference) == 0 {
		ipPreference = []string{constants.OutputVMPublicIP, constants.OutputVMPrivateIP}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Fanout(nil)
	}
	return &Orchestrator{
		store:        s,
		client:       cfg.Client,
		materializer: cfg.Materializer,
		arena:        cfg.Arena,
		notifier:     notifier,
		observers:    cfg.Observers,
		outputs:      outputs,
		ipPreference: ipPreference,
		baseCtx:      ctx,
		logger:       zap.S().Named("orchestrator"),
		byRequest:    make(map[uuid.UUID]uuid.UUID),
		cancels:      make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// outcome is the single result of a run: APPLIED with outputs, or ERROR /
// CANCELLED with a reason.
type outcome struct {
	status     model.RunStatus
	message    string
	output     strings.Builder
	outputs    map[string]string
	ipAddress  string
	resourceID string
	sizing     terraform.Sizing
	workspace  *terraform.Workspace
}

func (o *outcome) record(stage string, res *terraform.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(&o.output, "=== terraform %s ===\n%s", stage, res.Output)
	if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
		o.output.WriteByte('\n')
	}
}

// StartProvisioning checks governance, opens a run for the work order and
// executes it in the background. The returned work order is its state at
// the time the run was opened.
func (o *Orchestrator) StartProvisioning(ctx context.Context, workOrderID uuid.UUID) (*model.WorkOrder, error) {
	wo, err := o.store.WorkOrder().Get(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	req, err := o.store.Request().Get(ctx, wo.RequestID)
	if err != nil {
		return nil, err
	}
	logger := o.logger.With("work-order-id", workOrderID, "request-id", req.ID)

	if err := governance.Check(ctx, o.store.GovernanceRule(), req.Spec); err != nil {
		var violation *governance.ViolationError
		if errors.As(err, &violation) {
			metrics.GovernanceRejected()
			logger.Infow("provisioning rejected by governance", "reason", err)
			o.notifyRejected(ctx, req, violation)
		}
		return nil, err
	}

	if !o.reserve(req.ID) {
		return nil, ErrRunInProgress
	}
	wo, run, err := o.store.Ledger().BeginProvisioning(ctx, workOrderID)
	if err != nil {
		o.release(req.ID, uuid.Nil)
		if errors.Is(err, store.ErrRunActive) {
			return nil, fmt.Errorf("%w: %w", ErrRunInProgress, err)
		}
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(o.baseCtx)
	o.mu.Lock()
	o.byRequest[req.ID] = run.ID
	o.cancels[run.ID] = cancel
	o.mu.Unlock()

	logger.Infow("provisioning run started", "run-id", run.ID)
	o.wg.Add(1)
	go o.execute(runCtx, run, req)
	return wo, nil
}

// CancelRun stops a run. A run executing in this process is terminated and
// committed as CANCELLED by its own goroutine; any other non-terminal run
// is closed directly.
func (o *Orchestrator) CancelRun(ctx context.Context, runID uuid.UUID) error {
	o.mu.Lock()
	cancel, ok := o.cancels[runID]
	o.mu.Unlock()
	if ok {
		o.logger.Infow("cancelling run", "run-id", runID)
		cancel(errCancelRequested)
		return nil
	}
	return o.closeOrphan(ctx, runID, model.RunCancelled, errCancelRequested.Error())
}

// FailOrphan closes a PENDING or RUNNING run no goroutine of this process owns.
func (o *Orchestrator) FailOrphan(ctx context.Context, runID uuid.UUID, message string) error {
	if o.IsActive(runID) {
		return fmt.Errorf("run %s is executing in this process", runID)
	}
	return o.closeOrphan(ctx, runID, model.RunError, message)
}

func (o *Orchestrator) closeOrphan(ctx context.Context, runID uuid.UUID, status model.RunStatus, message string) error {
	current, err := o.store.ProvisioningRun().Get(ctx, runID)
	if err != nil {
		return err
	}
	run, err := o.store.Ledger().FailRun(ctx, runID, status, current.Output, message)
	if err != nil {
		return err
	}
	if err := o.arena.Discard(runID); err != nil {
		o.logger.Warnw("failed to discard workspace", "run-id", runID, "error", err)
	}
	o.logger.Infow("run closed", "run-id", runID, "status", status, "reason", message)
	o.observe(ctx, run)
	if req, err := o.store.Request().Get(ctx, run.RequestID); err == nil {
		o.notifyOutcome(ctx, run, req)
	}
	return nil
}

// IsActive reports whether runID is executing in this process.
func (o *Orchestrator) IsActive(runID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.cancels[runID]
	return ok
}

// Shutdown waits for in-flight runs to commit, or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for provisioning runs: %w", ctx.Err())
	}
}

func (o *Orchestrator) reserve(requestID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.byRequest[requestID]; busy {
		return false
	}
	o.byRequest[requestID] = uuid.Nil
	return true
}

func (o *Orchestrator) release(requestID, runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.byRequest, requestID)
	if cancel, ok := o.cancels[runID]; ok {
		cancel(nil)
		delete(o.cancels, runID)
	}
}

func (o *Orchestrator) execute(ctx context.Context, run *model.ProvisioningRun, req *model.Request) {
	defer o.wg.Done()
	defer o.release(run.RequestID, run.ID)

	logger := o.logger.With("run-id", run.ID, "request-id", run.RequestID)
	start := time.Now()
	metrics.RunStarted()

	out := o.provision(ctx, run, req, logger)
	if out == nil {
		metrics.RunFinished("aborted", time.Since(start))
		return
	}
	o.commit(run, req, out, time.Since(start), logger)
}

// provision drives materialize, init, apply and output extraction. It
// returns nil when the run was closed by someone else before it started.
func (o *Orchestrator) provision(ctx context.Context, run *model.ProvisioningRun, req *model.Request, logger *zap.SugaredLogger) *outcome {
	ledgerCtx := context.WithoutCancel(ctx)
	out := &outcome{}

	if ctx.Err() != nil {
		return o.failed(ctx, out, ctx.Err())
	}

	plan := o.materializer.Plan(req)
	out.sizing = plan.Sizing

	now := time.Now()
	running, err := o.store.Ledger().TransitionRun(ledgerCtx, run.ID, model.RunPending, model.RunRunning, func(r *model.ProvisioningRun) {
		r.StartedAt = &now
		r.WorkDir = o.arena.Path(run.ID)
		r.Variables = plan.Document
	})
	if err != nil {
		logger.Warnw("run closed before it started", "error", err)
		return nil
	}
	o.observe(ledgerCtx, running)

	ws, err := o.arena.Acquire(ctx, run.ID)
	if err != nil {
		return o.failed(ctx, out, fmt.Errorf("preparing workspace: %w", err))
	}
	out.workspace = ws

	if err := o.materializer.Write(ws.Dir, plan); err != nil {
		return o.failed(ctx, out, fmt.Errorf("writing variables: %w", err))
	}

	client := o.client.WithLogger(zap.S().Named("terraform:" + run.ID.String()))
	stages := []struct {
		name string
		run  func(context.Context, string) (*terraform.Result, error)
	}{
		{"init", client.Init},
		{"apply", client.Apply},
	}
	for _, stage := range stages {
		stageStart := time.Now()
		res, err := stage.run(ctx, ws.Dir)
		metrics.ObserveStage(stage.name, time.Since(stageStart))
		out.record(stage.name, res)
		if err != nil {
			logger.Errorw("terraform stage failed", "stage", stage.name, "error", err)
			return o.failed(ctx, out, err)
		}
	}

	// the apply went through, so the machine exists: cancellation no longer
	// applies to reading its outputs
	outputs := terraform.ExtractOutputs(ledgerCtx, client.Outputs(ws.Dir), o.outputs, logger)
	out.status = model.RunApplied
	out.outputs = outputs
	out.ipAddress = terraform.DeriveIP(outputs, o.ipPreference)
	out.resourceID = outputs[constants.OutputVMID]
	if out.ipAddress == constants.IPNotFound {
		logger.Warnw("no IP address found in outputs", "preference", o.ipPreference)
	}
	return out
}

func (o *Orchestrator) failed(ctx context.Context, out *outcome, err error) *outcome {
	out.status = model.RunError
	out.message = failureMessage(err)
	if ctx.Err() != nil || errors.Is(err, terraform.ErrCanceled) {
		if errors.Is(context.Cause(ctx), errCancelRequested) {
			out.status = model.RunCancelled
			out.message = errCancelRequested.Error()
		} else {
			out.message = "run interrupted: provider shutting down"
		}
	}
	return out
}

func (o *Orchestrator) commit(run *model.ProvisioningRun, req *model.Request, out *outcome, elapsed time.Duration, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.baseCtx), commitTimeout)
	defer cancel()

	var (
		committed *model.ProvisioningRun
		err       error
	)
	if out.status == model.RunApplied {
		vm := mapper.VMFromRequest(req, mapper.Applied{
			RunID:      run.ID,
			Outputs:    out.outputs,
			IPAddress:  out.ipAddress,
			ResourceID: out.resourceID,
			Sizing:     out.sizing,
		})
		committed, err = o.store.Ledger().CompleteRun(ctx, run.ID, store.RunResult{
			Output:     out.output.String(),
			Outputs:    out.outputs,
			ResourceID: out.resourceID,
			IPAddress:  out.ipAddress,
		}, vm)
	} else {
		committed, err = o.store.Ledger().FailRun(ctx, run.ID, out.status, out.output.String(), out.message)
	}

	if relErr := o.arena.Release(out.workspace, out.status == model.RunApplied); relErr != nil {
		logger.Warnw("failed to release workspace", "error", relErr)
	}
	metrics.RunFinished(string(out.status), elapsed)

	if err != nil {
		logger.Errorw("failed to commit run outcome", "status", out.status, "error", err)
		return
	}
	logger.Infow("provisioning run finished",
		"status", committed.Status,
		"ip", committed.IPAddress,
		"duration", elapsed,
		"message", committed.ErrorMessage)

	o.observe(ctx, committed)
	o.notifyOutcome(ctx, committed, req)
}

func (o *Orchestrator) observe(ctx context.Context, run *model.ProvisioningRun) {
	for _, observer := range o.observers {
		observer.RunChanged(ctx, run)
	}
}

func (o *Orchestrator) notifyOutcome(ctx context.Context, run *model.ProvisioningRun, req *model.Request) {
	recipients := []string{req.Owner}
	if wo, err := o.store.WorkOrder().Get(ctx, run.WorkOrderID); err == nil && wo.Assignee != nil {
		recipients = append(recipients, *wo.Assignee)
	} else {
		recipients = append(recipients, constants.RoleSupport)
	}

	var title, body string
	switch run.Status {
	case model.RunApplied:
		title = "VM provisioned"
		body = fmt.Sprintf("The VM %s for request %s is running with IP address %s.",
			terraform.VMName(req.ID), req.ID, run.IPAddress)
	case model.RunCancelled:
		title = "Provisioning cancelled"
		body = fmt.Sprintf("Provisioning of request %s was cancelled.", req.ID)
	default:
		title = "Provisioning failed"
		body = fmt.Sprintf("Provisioning of request %s failed: %s", req.ID, run.ErrorMessage)
		if tail := lastLines(run.Output, notifyOutputLines); tail != "" {
			body += "\n\n" + tail
		}
	}

	requestID := req.ID
	for _, recipient := range recipients {
		o.notifier.Notify(ctx, notify.Notification{
			Recipient: recipient,
			Title:     title,
			Body:      body,
			RequestID: &requestID,
		})
	}
}

func (o *Orchestrator) notifyRejected(ctx context.Context, req *model.Request, violation *governance.ViolationError) {
	requestID := req.ID
	o.notifier.Notify(ctx, notify.Notification{
		Recipient: req.Owner,
		Title:     "Provisioning rejected by governance",
		Body:      fmt.Sprintf("Provisioning of request %s was blocked: %s", req.ID, violation.Error()),
		RequestID: &requestID,
	})
}

// failureMessage turns a stage error into the text stored on the run and
// work order. Terraform's own "Error:" line is appended when there is one.
func failureMessage(err error) string {
	msg := err.Error()
	if line := errorLine(terraform.OutputOf(err)); line != "" {
		msg += ": " + line
	}
	return msg
}

func errorLine(output string) string {
	var last string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Error:") {
			return line
		}
		last = line
	}
	return last
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
