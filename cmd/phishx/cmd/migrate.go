package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/config"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := persistence.Migrate(cfg.Database.MigrationsURL, cfg.Database.URL); err != nil {
			return err
		}
		cmd.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
