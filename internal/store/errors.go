package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrWorkOrderClosed = errors.New("work order is closed")
	ErrInvalidStep     = errors.New("invalid work order step")
	ErrRunActive       = errors.New("a provisioning run is already active for this request")
)

// TransitionError is returned when a requested status change is not allowed
// by the lifecycle table or the entity is no longer in the expected status.
// The entity is left unchanged.
type TransitionError struct {
	Entity string
	ID     uuid.UUID
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s for %s", e.Entity, e.From, e.To, e.ID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
