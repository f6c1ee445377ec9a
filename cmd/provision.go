package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"tenant-provisioner/internal/api"
)

func provisionCmd(load loaderFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "provision <tenantId>",
		Short: "Provision one tenant and exit",
		Long: `Run a single provisioning attempt without starting the API.

The outcome is printed as JSON. The command exits non-zero if any phase failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out, provisionErr := a.manager.RegisterNewTenant(cmd.Context(), args[0])

			resp := api.ProvisionResponse{
				TenantID: out.TenantID,
				State:    string(out.State),
				Phase:    string(out.Phase()),
				Record:   out.Record,
				Message:  "tenant " + out.TenantID + " provisioned",
			}
			if provisionErr != nil {
				resp.Message = provisionErr.Error()
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			return provisionErr
		},
	}
}
