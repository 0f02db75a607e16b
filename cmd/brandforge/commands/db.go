package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brandforge/brandforge/db"
	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/logger"
)

// DbCmd groups database maintenance commands
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.Database.Path, logger.Logger)
		if err != nil {
			return errors.Wrap(err, "failed to open database")
		}
		defer database.Close()

		if err := db.Migrate(database, logger.Logger); err != nil {
			return err
		}
		fmt.Printf("Database %s is up to date\n", cfg.Database.Path)
		return nil
	},
}

var cleanupDays int

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove terminal jobs older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.Database.Path, logger.Logger)
		if err != nil {
			return errors.Wrap(err, "failed to open database")
		}
		defer database.Close()

		store := engine.NewStore(database)
		removed, err := store.Cleanup(context.Background(), time.Duration(cleanupDays)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d terminal jobs older than %d days\n", removed, cleanupDays)
		return nil
	},
}

func init() {
	dbCleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Retention window in days")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbCleanupCmd)
}
