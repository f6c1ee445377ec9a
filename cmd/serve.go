package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tenant-provisioner/internal/api"
	"tenant-provisioner/internal/auth"
	"tenant-provisioner/internal/metrics"
)

func serveCmd(load loaderFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the provisioning HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			// Graceful Shutdown Setup
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics.Init()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var authenticator *auth.Authenticator
			if cfg.Auth.JWTSecret != "" {
				authenticator = auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			} else {
				logger.Warn("auth.jwt_secret is not set; tenant endpoints are unauthenticated")
			}

			handler := api.NewAPI(a.manager, a.registry, authenticator, cfg.Server.RequestTimeout, logger)
			server := &http.Server{
				Addr:    cfg.Server.Addr,
				Handler: handler.Router(),
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("Starting API server", zap.String("addr", cfg.Server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			logger.Info("Shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown error", zap.Error(err))
			}

			logger.Info("Graceful shutdown complete")
			return nil
		},
	}
}
