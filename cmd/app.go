package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/deployer"
	"tenant-provisioner/internal/k8s"
	"tenant-provisioner/internal/lock"
	"tenant-provisioner/internal/manager"
	"tenant-provisioner/internal/manifest"
	"tenant-provisioner/internal/messaging"
	"tenant-provisioner/internal/provisioner"
	"tenant-provisioner/internal/storage"
)

// app holds the shared clients, created once per process.
type app struct {
	registry *storage.Storage
	manager  *manager.TenantManager
	closers  []func() error
	logger   *zap.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}
	if err := a.init(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cfg *config.Config) error {
	logger := a.logger

	registry, err := storage.NewStorage(cfg.Registry.URL)
	if err != nil {
		return err
	}
	a.registry = registry
	a.closers = append(a.closers, a.registry.DB.Close)
	if err := a.registry.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("Registry connected")

	adminDB, err := provisioner.OpenAdmin(provisioner.AdminConfig{
		Host:     cfg.MySQL.Host,
		Port:     cfg.MySQL.Port,
		User:     cfg.MySQL.User,
		Password: cfg.MySQL.Password,
		Timeout:  cfg.MySQL.Timeout,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, adminDB.Close)
	logger.Info("MySQL admin connection established", zap.String("host", cfg.MySQL.Host))

	cluster, err := k8s.NewFromKubeconfig(cfg.Cluster.Kubeconfig, cfg.Cluster.Context, logger)
	if err != nil {
		return err
	}

	templates := manifest.DefaultTemplates()
	if cfg.Manifests.Dir != "" {
		templates = os.DirFS(cfg.Manifests.Dir)
		if err := checkTemplates(templates); err != nil {
			return err
		}
	}
	renderer := manifest.NewRenderer(templates, cfg.Tenant.DBHost, cfg.Tenant.AppImage)
	dep := deployer.NewDeployer(cluster, renderer, cfg.Cluster.Namespace, logger)
	logger.Info("Cluster client ready", zap.String("namespace", dep.Namespace()))

	opts := []manager.Option{manager.WithTimeout(cfg.Provisioning.Timeout)}

	if cfg.Redis.Addr != "" {
		locker, err := lock.NewRedisLocker(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.LockTTL, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, locker.Close)
		opts = append(opts, manager.WithLocker(locker))
		logger.Info("Redis tenant lock enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := messaging.NewRabbitClient(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, manager.WithPublisher(publisher))
		logger.Info("RabbitMQ lifecycle events enabled", zap.String("queue", publisher.Queue()))
	}

	prov := provisioner.NewMySQLProvisioner(adminDB, a.registry, logger)
	a.manager = manager.NewTenantManager(prov, dep, a.registry, logger, opts...)
	return nil
}

func checkTemplates(templates fs.FS) error {
	for _, name := range []string{manifest.DeploymentTemplate, manifest.ServiceTemplate} {
		if _, err := fs.Stat(templates, name); err != nil {
			return fmt.Errorf("manifest template %s: %w", name, err)
		}
	}
	return nil
}

// Close releases clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
