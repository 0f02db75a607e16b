package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brandforge/brandforge/cmd/brandforge/commands"
	"github.com/brandforge/brandforge/logger"
)

var rootCmd = &cobra.Command{
	Use:   "brandforge",
	Short: "BrandForge - asynchronous marketing content generation engine",
	Long: `BrandForge runs marketing content generation as asynchronous jobs:
flyer batches, mascot images, promo videos, and audio jingles are produced
by slow external generation backends while clients poll for progress.

Available commands:
  serve   - Start the job engine and HTTP API
  db      - Database maintenance (migrate, cleanup)
  version - Show version information

Examples:
  brandforge serve                 # Start the engine on the configured port
  brandforge db migrate            # Apply pending schema migrations
  brandforge db cleanup --days 30  # Remove terminal jobs older than 30 days`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: brandforge.toml, then environment)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Sync()
}
