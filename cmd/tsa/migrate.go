package main

import (
	"github.com/spf13/cobra"

	"github.com/smukkama/tsa/internal/database"
	"github.com/smukkama/tsa/internal/logger"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the SQL migrations to the observation database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Connect(cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		defer db.Close()
		logger.For(logger.ComponentCLI).Info("Connected to database")

		return db.RunMigrations(migrationsDir)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the *.sql files")
}
