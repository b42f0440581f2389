package monitor

import (
	"time"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

// RunHealth is the watchdog's view of a PENDING or RUNNING run
type RunHealth string

func (h RunHealth) String() string {
	return string(h)
}

const (
	// RunHealthy is owned by a goroutine of this process
	RunHealthy RunHealth = "Healthy"
	// RunOrphaned has no owner and is left over from a previous process
	RunOrphaned RunHealth = "Orphaned"
	// RunStale has no owner and has not moved for longer than the stale limit
	RunStale RunHealth = "Stale"
	// RunWaiting has no owner yet but is still young enough to be picked up
	RunWaiting RunHealth = "Waiting"
	// RunClosed already reached a terminal status
	RunClosed RunHealth = "Closed"
)

// Classify decides what the watchdog should do with run. At startup every
// unowned run is orphaned since no goroutine can own it yet.
func Classify(run *model.ProvisioningRun, now time.Time, staleAfter time.Duration, owned, startup bool) RunHealth {
	if run.Status.Terminal() {
		return RunClosed
	}
	if owned {
		return RunHealthy
	}
	if startup {
		return RunOrphaned
	}
	if now.Sub(lastMove(run)) > staleAfter {
		return RunStale
	}
	return RunWaiting
}

func lastMove(run *model.ProvisioningRun) time.Time {
	if run.StartedAt != nil {
		return *run.StartedAt
	}
	if !run.UpdatedAt.IsZero() {
		return run.UpdatedAt
	}
	return run.CreatedAt
}
