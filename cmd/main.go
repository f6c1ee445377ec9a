// Package main is the entry point for the tenant provisioner.
//
// Commands: serve, provision, token.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/logging"
)

const defaultConfigPath = "config.yaml"

// @title Tenant Provisioner API
// @version 1.0
// @description Provisions per-tenant MySQL databases and Kubernetes workloads.
// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tenant-provisioner",
		Short:         "Provision isolated tenant databases and workloads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	load := func(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
		return loadConfig(configPath, cmd.Flags().Changed("config"))
	}

	cmd.AddCommand(serveCmd(load))
	cmd.AddCommand(provisionCmd(load))
	cmd.AddCommand(tokenCmd(load))
	return cmd
}

type loaderFunc func(cmd *cobra.Command) (*config.Config, *zap.Logger, error)

// loadConfig reads the config file and builds the logger. The default file is
// optional; an explicitly passed one must exist.
func loadConfig(path string, explicit bool) (*config.Config, *zap.Logger, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
