package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

type Notification interface {
	Create(ctx context.Context, n model.Notification) (*model.Notification, error)
	ListByRecipient(ctx context.Context, recipient string) (model.NotificationList, error)
}

type NotificationStore struct {
	db *gorm.DB
}

var _ Notification = (*NotificationStore)(nil)

func NewNotification(db *gorm.DB) Notification {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n model.Notification) (*model.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	result := s.db.WithContext(ctx).Create(&n)
	if result.Error != nil {
		return nil, result.Error
	}
	return &n, nil
}

func (s *NotificationStore) ListByRecipient(ctx context.Context, recipient string) (model.NotificationList, error) {
	var list model.NotificationList
	result := s.db.WithContext(ctx).Where("recipient = ?", recipient).Order("created_at").Find(&list)
	if result.Error != nil {
		return nil, result.Error
	}
	return list, nil
}
