package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mathquest/internal/repository"
	"mathquest/internal/security"
	"mathquest/internal/service"
)

var (
	adminEmail string
	adminName  string
)

// createAdminCmd is the only way to obtain an administrator account;
// public registration offers learner and guardian only
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	Long: `Create an administrator account. The password is read from the
MATHQUEST_ADMIN_PASSWORD environment variable so it never appears in shell
history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("MATHQUEST_ADMIN_PASSWORD")
		if password == "" {
			return errors.New("MATHQUEST_ADMIN_PASSWORD is not set")
		}

		users := repository.NewUserRepository(db)
		authService := service.NewAuthService(db, users, security.NewTokenIssuer(cfg.JWTSecret), nil, log, cfg.SessionDuration)

		user, err := authService.CreateAdministrator(cmd.Context(), adminEmail, password, adminName)
		if err != nil {
			return err
		}
		fmt.Printf("Created administrator %s (id %d)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Administrator email (required)")
	createAdminCmd.Flags().StringVar(&adminName, "name", "Admin", "Administrator first name")
	_ = createAdminCmd.MarkFlagRequired("email")
}
