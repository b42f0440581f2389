package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

type ProvisioningRun interface {
	Get(ctx context.Context, id uuid.UUID) (*model.ProvisioningRun, error)
	ListByWorkOrder(ctx context.Context, workOrderID uuid.UUID) (model.ProvisioningRunList, error)
	ListByStatus(ctx context.Context, statuses ...model.RunStatus) (model.ProvisioningRunList, error)
	ActiveForRequest(ctx context.Context, requestID uuid.UUID) (*model.ProvisioningRun, error)
}

type ProvisioningRunStore struct {
	db *gorm.DB
}

var _ ProvisioningRun = (*ProvisioningRunStore)(nil)

func NewProvisioningRun(db *gorm.DB) ProvisioningRun {
	return &ProvisioningRunStore{db: db}
}

func (s *ProvisioningRunStore) Get(ctx context.Context, id uuid.UUID) (*model.ProvisioningRun, error) {
	var run model.ProvisioningRun
	result := s.db.WithContext(ctx).First(&run, "id = ?", id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &run, nil
}

func (s *ProvisioningRunStore) ListByWorkOrder(ctx context.Context, workOrderID uuid.UUID) (model.ProvisioningRunList, error) {
	var runs model.ProvisioningRunList
	result := s.db.WithContext(ctx).Where("work_order_id = ?", workOrderID).Order("created_at").Find(&runs)
	if result.Error != nil {
		return nil, result.Error
	}
	return runs, nil
}

func (s *ProvisioningRunStore) ListByStatus(ctx context.Context, statuses ...model.RunStatus) (model.ProvisioningRunList, error) {
	var runs model.ProvisioningRunList
	result := s.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at").Find(&runs)
	if result.Error != nil {
		return nil, result.Error
	}
	return runs, nil
}

// ActiveForRequest returns the PENDING or RUNNING run of a request, or ErrNotFound.
func (s *ProvisioningRunStore) ActiveForRequest(ctx context.Context, requestID uuid.UUID) (*model.ProvisioningRun, error) {
	return activeRun(s.db.WithContext(ctx), requestID)
}

func activeRun(tx *gorm.DB, requestID uuid.UUID) (*model.ProvisioningRun, error) {
	var run model.ProvisioningRun
	result := tx.Where("request_id = ? AND status IN ?", requestID, []model.RunStatus{model.RunPending, model.RunRunning}).
		First(&run)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &run, nil
}
