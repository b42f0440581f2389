package model

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;" json:"id"`
	Recipient string     `gorm:"not null;index" json:"recipient"`
	Title     string     `gorm:"not null" json:"title"`
	Body      string     `json:"body"`
	RequestID *uuid.UUID `gorm:"type:uuid;index" json:"requestId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type NotificationList []Notification
