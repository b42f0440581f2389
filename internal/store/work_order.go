package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

type WorkOrder interface {
	Get(ctx context.Context, id uuid.UUID) (*model.WorkOrder, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) (model.WorkOrderList, error)
	Assign(ctx context.Context, id uuid.UUID, assignee string) (*model.WorkOrder, error)
	CompleteStep(ctx context.Context, id uuid.UUID, step string) (*model.WorkOrder, error)
}

type WorkOrderStore struct {
	db *gorm.DB
}

var _ WorkOrder = (*WorkOrderStore)(nil)

func NewWorkOrder(db *gorm.DB) WorkOrder {
	return &WorkOrderStore{db: db}
}

func (s *WorkOrderStore) Get(ctx context.Context, id uuid.UUID) (*model.WorkOrder, error) {
	var wo model.WorkOrder
	result := s.db.WithContext(ctx).First(&wo, "id = ?", id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &wo, nil
}

func (s *WorkOrderStore) ListByRequest(ctx context.Context, requestID uuid.UUID) (model.WorkOrderList, error) {
	var wos model.WorkOrderList
	result := s.db.WithContext(ctx).Where("request_id = ?", requestID).Order("created_at").Find(&wos)
	if result.Error != nil {
		return nil, result.Error
	}
	return wos, nil
}

// Assign sets the assignee of a work order that has not reached a terminal status.
func (s *WorkOrderStore) Assign(ctx context.Context, id uuid.UUID, assignee string) (*model.WorkOrder, error) {
	var wo model.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&wo, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if wo.Status.Terminal() {
			return fmt.Errorf("work order %s is %s: %w", id, wo.Status, ErrWorkOrderClosed)
		}
		wo.Assignee = &assignee
		return tx.Model(&wo).Select("assignee").Updates(&wo).Error
	})
	if err != nil {
		return nil, err
	}
	return &wo, nil
}

// CompleteStep records step as done. Unknown and already completed steps are rejected.
func (s *WorkOrderStore) CompleteStep(ctx context.Context, id uuid.UUID, step string) (*model.WorkOrder, error) {
	var wo model.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&wo, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if wo.Status.Terminal() {
			return fmt.Errorf("work order %s is %s: %w", id, wo.Status, ErrWorkOrderClosed)
		}
		if !slices.Contains(wo.Steps, step) {
			return fmt.Errorf("unknown step %q: %w", step, ErrInvalidStep)
		}
		if slices.Contains(wo.CompletedSteps, step) {
			return fmt.Errorf("step %q already completed: %w", step, ErrInvalidStep)
		}
		wo.CompletedSteps = append(wo.CompletedSteps, step)
		return tx.Model(&wo).Select("completed_steps").Updates(&wo).Error
	})
	if err != nil {
		return nil, err
	}
	return &wo, nil
}
