package governance

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

type rulesFile struct {
	Rules []model.GovernanceRule `yaml:"rules" validate:"dive"`
}

// LoadRules reads a YAML rule set of the form
//
//	rules:
//	  - name: default
//	    maxCpu: 8
//	    maxRamGb: 16
//	    requireFirewall: true
//	    active: true
func LoadRules(path string) (model.GovernanceRuleList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading governance rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing governance rules %s: %w", path, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid governance rules %s: %w", path, err)
	}
	return f.Rules, nil
}

// Seed upserts the rules found in path. An empty path is a no-op.
func Seed(ctx context.Context, rules store.GovernanceRule, path string) error {
	if path == "" {
		return nil
	}
	loaded, err := LoadRules(path)
	if err != nil {
		return err
	}
	logger := zap.S().Named("governance")
	for _, rule := range loaded {
		if _, err := rules.Upsert(ctx, rule); err != nil {
			return fmt.Errorf("seeding governance rule %q: %w", rule.Name, err)
		}
		logger.Infow("governance rule loaded", "rule", rule.Name, "active", rule.Active)
	}
	return nil
}
