// Command wbtrace serves the workbook model registry and trace ledger.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jask/wbtrace/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := newRootCmd(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wbtrace",
		Short: "Workbook model registry and trace ledger",
		Long: `wbtrace stores versioned workbook models registered by a spreadsheet
add-in and records an append-only history of tracked range values.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.Storage.Driver, "driver", cfg.Storage.Driver, "Storage driver: sqlite, postgres, bolt, memory")
	rootCmd.PersistentFlags().StringVar(&cfg.Storage.Path, "db", cfg.Storage.Path, "Database file for the sqlite and bolt drivers")
	rootCmd.PersistentFlags().StringVar(&cfg.Storage.URL, "database-url", cfg.Storage.URL, "Connection URL for the postgres driver")

	rootCmd.AddCommand(
		serveCmd(cfg),
		migrateCmd(cfg),
		exportCmd(cfg),
		initConfigCmd(cfg),
	)
	return rootCmd
}

func initConfigCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Save(*cfg)
			if err != nil {
				return err
			}
			cmd.Printf("wrote %s\n", path)
			return nil
		},
	}
}
