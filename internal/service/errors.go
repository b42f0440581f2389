package service

import "errors"

var (
	// ErrRunInProgress rejects a provisioning trigger for a request that
	// already has a PENDING or RUNNING run.
	ErrRunInProgress = errors.New("a provisioning run is already in progress for this request")

	ErrInvalidInput = errors.New("invalid input")

	// errCancelRequested is the cancellation cause of an explicit CancelRun.
	errCancelRequested = errors.New("run cancelled on request")
)
