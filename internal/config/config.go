package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
)

var singleConfig *Config = nil

type Config struct {
	Service                *svcConfig
	Database               *DatabaseConfig
	Terraform              *TerraformConfig
	Credentials            *CredentialsConfig
	Governance             *GovernanceConfig
	Events                 *EventsConfig
	Monitor                *MonitorConfig
	Provider               *ProviderConfig
	ServiceProviderManager *ServiceProviderManagerConfig
}

type svcConfig struct {
	Address   string `envconfig:"DCM_ADDRESS" default:":8082" validate:"required"`
	LogLevel  string `envconfig:"DCM_LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"DCM_LOG_FORMAT" default:"console" validate:"oneof=console json"`
	// DcmUrl is the base URL instance status updates are sent to. Empty disables them.
	DcmUrl string `envconfig:"DCM_URL" validate:"omitempty,url"`
}

type DatabaseConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite" validate:"oneof=sqlite pgsql"`
	Name     string `envconfig:"DB_NAME" default:"terraform-provider.db" validate:"required"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASSWORD" default:"adminpass"`
}

type TerraformConfig struct {
	Binary           string        `envconfig:"TF_BINARY" default:"terraform" validate:"required"`
	TemplateDir      string        `envconfig:"TF_TEMPLATE_DIR" default:"./terraform" validate:"required"`
	WorkRoot         string        `envconfig:"TF_WORK_ROOT" default:"./work" validate:"required"`
	Timeout          time.Duration `envconfig:"TF_TIMEOUT" default:"30m" validate:"gt=0"`
	KillGrace        time.Duration `envconfig:"TF_KILL_GRACE" default:"10s"`
	Outputs          []string      `envconfig:"TF_OUTPUTS"`
	IPPreference     []string      `envconfig:"TF_IP_PREFERENCE" default:"vm_public_ip,vm_private_ip" validate:"min=1"`
	AdminUsername    string        `envconfig:"TF_ADMIN_USERNAME" default:"azureuser" validate:"required"`
	SSHPublicKeyFile string        `envconfig:"TF_SSH_PUBLIC_KEY_FILE"`
	Location         string        `envconfig:"TF_LOCATION" default:"West Europe"`
	KeepFailed       bool          `envconfig:"TF_KEEP_FAILED" default:"false"`
}

// OutputNames returns the configured outputs, or the default set.
func (t *TerraformConfig) OutputNames() []string {
	if len(t.Outputs) == 0 {
		return constants.DefaultOutputs
	}
	return t.Outputs
}

// CredentialsConfig holds the service principal handed to terraform.
type CredentialsConfig struct {
	ClientID       string `envconfig:"ARM_CLIENT_ID"`
	ClientSecret   string `envconfig:"ARM_CLIENT_SECRET"`
	TenantID       string `envconfig:"ARM_TENANT_ID"`
	SubscriptionID string `envconfig:"ARM_SUBSCRIPTION_ID"`
}

// Env returns the credential environment overrides. Unset values are left out
// so they never shadow what the host already provides.
func (c *CredentialsConfig) Env() map[string]string {
	env := make(map[string]string, 4)
	for name, value := range map[string]string{
		constants.EnvARMClientID:       c.ClientID,
		constants.EnvARMClientSecret:   c.ClientSecret,
		constants.EnvARMTenantID:       c.TenantID,
		constants.EnvARMSubscriptionID: c.SubscriptionID,
	} {
		if value != "" {
			env[name] = value
		}
	}
	return env
}

type GovernanceConfig struct {
	RulesFile string `envconfig:"GOVERNANCE_RULES_FILE"`
}

type EventsConfig struct {
	NATSURL       string        `envconfig:"NATS_URL"`
	SubjectPrefix string        `envconfig:"NATS_SUBJECT_PREFIX" default:"terraform.run" validate:"required"`
	Timeout       time.Duration `envconfig:"NATS_TIMEOUT" default:"5s"`
	MaxReconnect  int           `envconfig:"NATS_MAX_RECONNECT" default:"10"`
}

type MonitorConfig struct {
	Interval   time.Duration `envconfig:"MONITOR_INTERVAL" default:"1m" validate:"gt=0"`
	StaleAfter time.Duration `envconfig:"MONITOR_STALE_AFTER" default:"45m" validate:"gt=0"`
}

type ProviderConfig struct {
	Register      bool          `envconfig:"PROVIDER_REGISTER" default:"true"`
	ID            string        `envconfig:"PROVIDER_ID" validate:"required_if=Register true"`
	Name          string        `envconfig:"PROVIDER_NAME" default:"terraform-service-provider"`
	Endpoint      string        `envconfig:"PROVIDER_ENDPOINT" default:"http://localhost:8082/api/v1alpha1"`
	ServiceType   string        `envconfig:"PROVIDER_SERVICE_TYPE" default:"vm"`
	SchemaVersion string        `envconfig:"PROVIDER_SCHEMA_VERSION" default:"v1alpha1"`
	HTTPTimeout   time.Duration `envconfig:"PROVIDER_HTTP_TIMEOUT" default:"10s"`
}

type ServiceProviderManagerConfig struct {
	Endpoint string `envconfig:"DCM_SERVICE_PROVIDER_MANAGER_ENDPOINT" default:"http://localhost:8080/api/v1alpha1"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		cfg := new(Config)
		if err := envconfig.Process("", cfg); err != nil {
			return nil, err
		}
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// Validate checks every section of cfg.
func Validate(cfg *Config) error {
	v := validator.New()
	sections := []any{
		cfg.Service, cfg.Database, cfg.Terraform, cfg.Events, cfg.Monitor, cfg.Provider,
	}
	for _, section := range sections {
		if err := v.Struct(section); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}
