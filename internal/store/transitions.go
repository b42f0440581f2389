package store

import "github.com/dcm-project/terraform-service-provider/internal/store/model"

var requestTransitions = map[model.RequestStatus][]model.RequestStatus{
	model.RequestPending:      {model.RequestValidating, model.RequestToModify, model.RequestValidated, model.RequestRefused},
	model.RequestValidating:   {model.RequestValidated, model.RequestToModify, model.RequestRefused},
	model.RequestToModify:     {model.RequestPending},
	model.RequestValidated:    {model.RequestProvisioning},
	model.RequestProvisioning: {model.RequestProvisioned, model.RequestPending},
	model.RequestProvisioned:  {model.RequestCompleted},
}

var workOrderTransitions = map[model.WorkOrderStatus][]model.WorkOrderStatus{
	model.WorkOrderPending:    {model.WorkOrderInProgress},
	model.WorkOrderInProgress: {model.WorkOrderComplete, model.WorkOrderError},
}

var runTransitions = map[model.RunStatus][]model.RunStatus{
	model.RunPending: {model.RunRunning, model.RunError, model.RunCancelled},
	model.RunRunning: {model.RunApplied, model.RunError, model.RunCancelled},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionRequest(from, to model.RequestStatus) bool {
	return allowed(requestTransitions, from, to)
}

func CanTransitionWorkOrder(from, to model.WorkOrderStatus) bool {
	return allowed(workOrderTransitions, from, to)
}

func CanTransitionRun(from, to model.RunStatus) bool {
	return allowed(runTransitions, from, to)
}
