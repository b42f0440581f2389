package registration

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/config"
)

// Provider is the registration payload of the Service Provider Manager
type Provider struct {
	Id            *uuid.UUID `json:"id,omitempty"`
	Name          string     `json:"name"`
	Endpoint      string     `json:"endpoint"`
	ServiceType   string     `json:"serviceType"`
	SchemaVersion string     `json:"schemaVersion"`
}

// Problem is an application/problem+json error body
type Problem struct {
	Type   string  `json:"type"`
	Title  string  `json:"title"`
	Status *int    `json:"status,omitempty"`
	Detail *string `json:"detail,omitempty"`
}

// Registrar handles registration with the DCM Service Provider Manager
type Registrar struct {
	client      *resty.Client
	providerCfg *config.ProviderConfig
	logger      *zap.SugaredLogger
}

// NewRegistrar creates a new Registrar with the given configuration
func NewRegistrar(providerCfg *config.ProviderConfig, svcMgrCfg *config.ServiceProviderManagerConfig) (*Registrar, error) {
	if svcMgrCfg.Endpoint == "" {
		return nil, fmt.Errorf("failed to create DCM client: empty service provider manager endpoint")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(svcMgrCfg.Endpoint, "/")).
		SetTimeout(providerCfg.HTTPTimeout).
		SetHeader("Content-Type", "application/json")

	return &Registrar{
		client:      client,
		providerCfg: providerCfg,
		logger:      zap.S().Named("registration"),
	}, nil
}

// Register registers this provider with the DCM Service Provider Manager.
// Registration is idempotent: if a provider with the same ID exists, it will be updated.
func (r *Registrar) Register(ctx context.Context) error {
	providerUUID, err := uuid.Parse(r.providerCfg.ID)
	if err != nil {
		return fmt.Errorf("invalid provider ID %q: %w", r.providerCfg.ID, err)
	}

	provider := Provider{
		Name:          r.providerCfg.Name,
		Endpoint:      r.providerCfg.Endpoint,
		ServiceType:   r.providerCfg.ServiceType,
		SchemaVersion: r.providerCfg.SchemaVersion,
	}

	var (
		registered Provider
		problem    Problem
	)
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("id", providerUUID.String()).
		SetBody(provider).
		SetResult(&registered).
		SetError(&problem).
		Post("/providers")
	if err != nil {
		return fmt.Errorf("failed to register provider: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
		r.logger.Infow("Registered new provider", "name", r.providerCfg.Name, "id", idOf(registered, providerUUID))
	case http.StatusOK:
		r.logger.Infow("Updated existing provider", "name", r.providerCfg.Name, "id", idOf(registered, providerUUID))
	case http.StatusConflict:
		return fmt.Errorf("conflict registering provider: %s", problem.Title)
	case http.StatusBadRequest:
		return fmt.Errorf("validation error: %s", problem.Title)
	default:
		return fmt.Errorf("unexpected response status: %d", resp.StatusCode())
	}

	return nil
}

func idOf(p Provider, fallback uuid.UUID) uuid.UUID {
	if p.Id != nil {
		return *p.Id
	}
	return fallback
}
