package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

type GovernanceRule interface {
	List(ctx context.Context) (model.GovernanceRuleList, error)
	ListActive(ctx context.Context) (model.GovernanceRuleList, error)
	Upsert(ctx context.Context, rule model.GovernanceRule) (*model.GovernanceRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type GovernanceRuleStore struct {
	db *gorm.DB
}

var _ GovernanceRule = (*GovernanceRuleStore)(nil)

func NewGovernanceRule(db *gorm.DB) GovernanceRule {
	return &GovernanceRuleStore{db: db}
}

func (s *GovernanceRuleStore) List(ctx context.Context) (model.GovernanceRuleList, error) {
	var rules model.GovernanceRuleList
	result := s.db.WithContext(ctx).Order("name").Find(&rules)
	if result.Error != nil {
		return nil, result.Error
	}
	return rules, nil
}

func (s *GovernanceRuleStore) ListActive(ctx context.Context) (model.GovernanceRuleList, error) {
	var rules model.GovernanceRuleList
	result := s.db.WithContext(ctx).Where("active = ?", true).Order("name").Find(&rules)
	if result.Error != nil {
		return nil, result.Error
	}
	return rules, nil
}

// Upsert creates the rule or replaces the rule with the same name.
func (s *GovernanceRuleStore) Upsert(ctx context.Context, rule model.GovernanceRule) (*model.GovernanceRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"max_ram_gb", "max_cpu", "max_disk_gb", "require_firewall", "require_encryption", "active", "updated_at",
		}),
	}).Create(&rule)
	if result.Error != nil {
		return nil, result.Error
	}
	// on conflict the stored row keeps its original id
	var saved model.GovernanceRule
	if err := s.db.WithContext(ctx).First(&saved, "name = ?", rule.Name).Error; err != nil {
		return nil, notFound(err)
	}
	return &saved, nil
}

func (s *GovernanceRuleStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&model.GovernanceRule{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
