package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solverhub/backend/internal/auth"
)

// createAdminCmd provisions an administrator. Admins cannot self-register
// through the API.
func createAdminCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			ctx := cmd.Context()
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			pool, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret, cfg.TokenTTL)
			u, err := svc.CreateAdmin(ctx, email, password, name)
			if err != nil {
				return err
			}
			logger.Info("admin created", "user_id", u.ID, "email", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	return cmd
}
