package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

type Request interface {
	List(ctx context.Context, status *model.RequestStatus) (model.RequestList, error)
	Create(ctx context.Context, req model.Request) (*model.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Request, error)
}

type RequestStore struct {
	db *gorm.DB
}

var _ Request = (*RequestStore)(nil)

func NewRequest(db *gorm.DB) Request {
	return &RequestStore{db: db}
}

func (s *RequestStore) List(ctx context.Context, status *model.RequestStatus) (model.RequestList, error) {
	var reqs model.RequestList
	tx := s.db.WithContext(ctx).Model(&reqs)
	if status != nil {
		tx = tx.Where("status = ?", *status)
	}
	result := tx.Order("created_at").Find(&reqs)
	if result.Error != nil {
		return nil, result.Error
	}
	return reqs, nil
}

func (s *RequestStore) Create(ctx context.Context, req model.Request) (*model.Request, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	result := s.db.WithContext(ctx).Clauses(clause.Returning{}).Create(&req)
	if result.Error != nil {
		return nil, result.Error
	}
	return &req, nil
}

func (s *RequestStore) Get(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	result := s.db.WithContext(ctx).First(&req, "id = ?", id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &req, nil
}
