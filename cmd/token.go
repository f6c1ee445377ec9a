package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tenant-provisioner/internal/auth"
)

func tokenCmd(load loaderFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an operator JWT for the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(cmd)
			if err != nil {
				return err
			}

			token, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
