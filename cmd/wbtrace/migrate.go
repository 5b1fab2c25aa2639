package main

import (
	"github.com/spf13/cobra"

	"github.com/jask/wbtrace/internal/config"
)

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bundled schema to the configured SQL backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			switch cfg.Storage.Driver {
			case config.DriverSQLite, config.DriverPostgres:
			default:
				cmd.Printf("driver %s has no schema; nothing to do\n", cfg.Storage.Driver)
				return nil
			}
			if err := migrate(cfg.Storage); err != nil {
				return err
			}
			cmd.Printf("schema up to date (%s)\n", cfg.Storage.Driver)
			return nil
		},
	}
}
