package terraform

import (
	"errors"
	"fmt"
	"time"
)

// ErrCanceled is returned when a run was stopped by an explicit cancellation.
var ErrCanceled = errors.New("terraform invocation canceled")

// ExitError is a terraform process that finished with a nonzero exit code.
type ExitError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("terraform %s exited with code %d", subcommand(e.Args), e.ExitCode)
}

// TimeoutError is a terraform process killed after exceeding its deadline.
type TimeoutError struct {
	Args    []string
	Timeout time.Duration
	Output  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("terraform %s timed out after %s", subcommand(e.Args), e.Timeout)
}

// OutputOf returns the process output attached to err, if any.
func OutputOf(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Output
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Output
	}
	return ""
}

func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
