package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

type VM interface {
	List(ctx context.Context) (model.VMList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.VM, error)
	GetByRequest(ctx context.Context, requestID uuid.UUID) (*model.VM, error)
}

type VMStore struct {
	db *gorm.DB
}

var _ VM = (*VMStore)(nil)

func NewVM(db *gorm.DB) VM {
	return &VMStore{db: db}
}

func (s *VMStore) List(ctx context.Context) (model.VMList, error) {
	var vms model.VMList
	result := s.db.WithContext(ctx).Model(&vms).Order("created_at").Find(&vms)
	if result.Error != nil {
		return nil, result.Error
	}
	return vms, nil
}

func (s *VMStore) Get(ctx context.Context, id uuid.UUID) (*model.VM, error) {
	var vm model.VM
	result := s.db.WithContext(ctx).First(&vm, "id = ?", id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &vm, nil
}

func (s *VMStore) GetByRequest(ctx context.Context, requestID uuid.UUID) (*model.VM, error) {
	var vm model.VM
	result := s.db.WithContext(ctx).First(&vm, "request_id = ?", requestID)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &vm, nil
}
