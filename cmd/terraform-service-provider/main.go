package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	apiserver "github.com/dcm-project/terraform-service-provider/internal/api_server"
	"github.com/dcm-project/terraform-service-provider/internal/config"
	"github.com/dcm-project/terraform-service-provider/internal/events"
	"github.com/dcm-project/terraform-service-provider/internal/governance"
	handlers "github.com/dcm-project/terraform-service-provider/internal/handlers/v1alpha1"
	"github.com/dcm-project/terraform-service-provider/internal/monitor"
	"github.com/dcm-project/terraform-service-provider/internal/notify"
	"github.com/dcm-project/terraform-service-provider/internal/registration"
	"github.com/dcm-project/terraform-service-provider/internal/service"
	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/terraform"
)

const (
	registrationTimeout = 30 * time.Second
	shutdownTimeout     = 30 * time.Second
)

var configCheck bool

func main() {
	rootCmd := &cobra.Command{
		Use:          "terraform-service-provider",
		Short:        "DCM service provider provisioning VMs with terraform",
		SilenceUsage: true,
	}
	addRunFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&configCheck, "config-check", false, "validate the configuration and exit")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the terraform service provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		defer func() { _ = logger.Sync() }()

		if configCheck {
			zap.S().Info("configuration is valid")
			return nil
		}
		defer zap.S().Info("terraform service provider stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		return run(ctx, cfg)
	},
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Service.LogFormat == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func run(ctx context.Context, cfg *config.Config) error {
	zap.S().Info("Initializing data store")
	db, err := store.InitDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("initializing data store: %w", err)
	}
	dataStore := store.NewStore(db)
	defer dataStore.Close()

	if err := governance.Seed(ctx, dataStore.GovernanceRule(), cfg.Governance.RulesFile); err != nil {
		return err
	}

	notifiers := notify.Fanout{notify.NewStoreNotifier(dataStore.Notification())}
	observers := []service.RunObserver{service.NewStatusSync(cfg.Service.DcmUrl)}
	if cfg.Events.NATSURL != "" {
		publisher, err := events.NewPublisher(events.PublisherConfig{
			NATSURL:       cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
			Timeout:       cfg.Events.Timeout,
			MaxReconnect:  cfg.Events.MaxReconnect,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifiers = append(notifiers, notify.NewEventNotifier(publisher))
		observers = append(observers, service.NewEventObserver(publisher))
	} else {
		zap.S().Info("NATS_URL not set, run events disabled")
	}

	client := terraform.NewClient(
		terraform.NewExecRunner(cfg.Terraform.Binary, cfg.Terraform.KillGrace),
		cfg.Credentials.Env(),
		cfg.Terraform.Timeout,
	)
	orchestrator := service.NewOrchestrator(ctx, dataStore, service.OrchestratorConfig{
		Client:       client,
		Materializer: terraform.NewMaterializer(cfg.Terraform.AdminUsername, cfg.Terraform.Location),
		Arena: terraform.NewArena(terraform.ArenaConfig{
			WorkRoot:    cfg.Terraform.WorkRoot,
			TemplateDir: cfg.Terraform.TemplateDir,
			SSHKeyFile:  cfg.Terraform.SSHPublicKeyFile,
			KeepFailed:  cfg.Terraform.KeepFailed,
		}),
		Notifier:     notifiers,
		Observers:    observers,
		Outputs:      cfg.Terraform.OutputNames(),
		IPPreference: cfg.Terraform.IPPreference,
	})
	workflow := service.NewWorkflow(dataStore, notifiers)

	if cfg.Provider.Register {
		if err := register(ctx, cfg); err != nil {
			return err
		}
	}

	listener, err := newListener(cfg.Service.Address)
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}
	server := apiserver.New(cfg, listener, handlers.NewServiceHandler(dataStore, workflow, orchestrator))
	watchdog := monitor.NewMonitorService(dataStore.ProvisioningRun(), orchestrator, monitor.MonitorConfig{
		Interval:   cfg.Monitor.Interval,
		StaleAfter: cfg.Monitor.StaleAfter,
	})

	zap.S().Infow("Starting terraform service provider", "address", listener.Addr().String())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return watchdog.Run(gctx)
	})
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := orchestrator.Shutdown(shutdownCtx); shutdownErr != nil {
		zap.S().Warnw("provisioning runs still executing at shutdown", "error", shutdownErr)
	}
	return err
}

func register(ctx context.Context, cfg *config.Config) error {
	registrar, err := registration.NewRegistrar(cfg.Provider, cfg.ServiceProviderManager)
	if err != nil {
		return fmt.Errorf("creating DCM registrar: %w", err)
	}
	regCtx, cancel := context.WithTimeout(ctx, registrationTimeout)
	defer cancel()
	if err := registrar.Register(regCtx); err != nil {
		return fmt.Errorf("registering with DCM: %w", err)
	}
	return nil
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
