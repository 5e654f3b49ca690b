// Package app assembles the portal components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Zorrojurro/project-aarna/internal/config"
	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/internal/ledger/rpc"
	"github.com/Zorrojurro/project-aarna/internal/ledger/simulated"
	"github.com/Zorrojurro/project-aarna/internal/notifications"
	"github.com/Zorrojurro/project-aarna/internal/notifications/websocket"
	"github.com/Zorrojurro/project-aarna/internal/persistence"
	"github.com/Zorrojurro/project-aarna/internal/registry"
	"github.com/Zorrojurro/project-aarna/internal/session"
	"github.com/Zorrojurro/project-aarna/pkg/awsconf"
	"github.com/Zorrojurro/project-aarna/pkg/storage"
)

// App holds the wired components.
type App struct {
	Config        *config.Config
	Ledger        ledger.Client
	Simulated     *simulated.Ledger
	Store         persistence.Store
	Session       *session.Session
	WS            *websocket.Manager
	Notifications *notifications.Service
	History       *notifications.Repository
	Objects       storage.S3Client
	Evidence      *storage.ContentStore
	Registry      *registry.Service
	Metrics       *registry.Metrics

	closers []func() error
	logger  *zap.Logger
}

// Options selects the optional parts.
type Options struct {
	// WebSocket starts the push hub. CLI runs leave it off.
	WebSocket bool
	// Registerer receives the registry collectors; nil disables metrics.
	Registerer prometheus.Registerer
}

// New wires every component described by cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if err := a.wire(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.Config

	client, err := a.openLedger()
	if err != nil {
		return err
	}
	a.Ledger = client

	store, closeStore, err := persistence.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	a.Session = session.New(a.logger)

	if opts.WebSocket {
		a.WS = websocket.NewManager(a.logger)
		a.closers = append(a.closers, func() error { a.WS.Close(); return nil })
	}

	sinks, err := a.notificationSinks(ctx)
	if err != nil {
		return err
	}
	a.Notifications = notifications.NewService(a.WS, a.logger, cfg.Notifications.RecentLimit, sinks...)

	if cfg.Evidence.Bucket != "" {
		awsCfg, err := awsconf.Load(ctx, cfg.AWS)
		if err != nil {
			return err
		}
		a.Objects = storage.NewS3Client(awsCfg, func(o *s3.Options) { o.UsePathStyle = cfg.AWS.Endpoint != "" })
		a.Evidence = storage.NewContentStore(a.Objects, cfg.Evidence.Bucket, cfg.Evidence.Prefix)
	} else if cfg.UseSimulatedLedger() {
		a.Objects = storage.NewMemoryS3Client()
		a.Evidence = storage.NewContentStore(a.Objects, "evidence", cfg.Evidence.Prefix)
	}

	if opts.Registerer != nil {
		a.Metrics = registry.NewMetrics(opts.Registerer)
	}

	a.Registry = registry.NewService(a.Ledger, a.Store, a.Session, a.Notifications, a.Metrics,
		registry.OptionsFromConfig(cfg), a.logger)
	return nil
}

func (a *App) openLedger() (ledger.Client, error) {
	cfg := a.Config
	if !cfg.UseSimulatedLedger() {
		client, err := rpc.NewClient(rpc.Config{
			URL:               cfg.Ledger.RPCURL,
			Network:           cfg.Ledger.Network,
			Timeout:           cfg.Ledger.Timeout,
			RequestsPerSecond: cfg.Ledger.RequestsPerSecond,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create ledger client: %w", err)
		}
		a.logger.Info("Using ledger gateway", zap.String("url", cfg.Ledger.RPCURL), zap.String("network", cfg.Ledger.Network))
		return client, nil
	}

	simOpts := []simulated.Option{
		simulated.WithFaucet(cfg.Ledger.FaucetAmount),
		simulated.WithCapacity(cfg.Registry.MaxProjects, cfg.Registry.MaxListings),
		simulated.WithLogger(a.logger),
	}
	var sim *simulated.Ledger
	if path := cfg.Ledger.SimulatedStatePath; path != "" {
		loaded, err := simulated.Load(path, simOpts...)
		if err != nil {
			return nil, err
		}
		sim = loaded
		a.closers = append(a.closers, func() error { return sim.Save(path) })
	} else {
		sim = simulated.New(simOpts...)
	}
	a.Simulated = sim
	a.logger.Info("Using simulated ledger", zap.String("state", cfg.Ledger.SimulatedStatePath))
	return sim, nil
}

func (a *App) notificationSinks(ctx context.Context) ([]notifications.Sink, error) {
	cfg := a.Config
	var sinks []notifications.Sink

	if cfg.Notifications.History {
		db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open notification history: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			if cfg.Database.MaxConnections > 0 {
				sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
			}
			if cfg.Database.MaxIdleConns > 0 {
				sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
			}
			a.closers = append(a.closers, sqlDB.Close)
		}
		repo, err := notifications.NewRepository(db)
		if err != nil {
			return nil, err
		}
		a.History = repo
		sinks = append(sinks, repo)
	}

	if cfg.Notifications.SNSTopicARN != "" {
		awsCfg, err := awsconf.Load(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notifications.NewSNSSink(sns.NewFromConfig(awsCfg), cfg.Notifications.SNSTopicARN))
	}
	return sinks, nil
}

// ExportBucket is the bucket scheduled exports are written to.
func (a *App) ExportBucket() string {
	if a.Config.Evidence.Bucket != "" {
		return a.Config.Evidence.Bucket
	}
	return "evidence"
}

// ConnectFromConfig connects the configured identity: the keystore when a
// path is set, otherwise the demo identity label in demo mode.
func (a *App) ConnectFromConfig(demoLabel string) error {
	cfg := a.Config.Session
	switch {
	case cfg.KeystorePath != "":
		signer, err := session.LoadKeystore(cfg.KeystorePath, cfg.Passphrase)
		if err != nil {
			return err
		}
		a.Session.Connect(signer)
	case cfg.Demo && demoLabel != "":
		a.Session.Connect(session.DemoSigner(demoLabel))
	}
	return nil
}

// Close releases every component in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
