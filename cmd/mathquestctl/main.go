package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mathquest/internal/config"
	"mathquest/internal/database"
	"mathquest/internal/logger"
)

var (
	cfg *config.Config
	log *logger.Logger
	db  *database.DB

	skipMigrations bool
)

// rootCmd opens the configured database for every subcommand
var rootCmd = &cobra.Command{
	Use:   "mathquestctl",
	Short: "Operate a MathQuest deployment",
	Long: `Administrative tasks for a MathQuest database: migrations, sample data,
JSON backups and administrator accounts.

Connection settings come from the same environment variables (and .env file)
as the server: DB_TYPE, DB_PATH, DATABASE_URL, MIGRATIONS_PATH.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()

		var err error
		log, err = logger.New(cfg.Environment)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		db, err = database.InitializeWithConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db.SetMaxTxAttempts(cfg.TxMaxAttempts)

		if skipMigrations {
			return nil
		}
		applied, err := db.RunMigrations(cmd.Context(), cfg.MigrationsPath)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		for _, name := range applied {
			log.Info("Applied migration", "name", name)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
		if log != nil {
			log.Sync()
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on start")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(createAdminCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
