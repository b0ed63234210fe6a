package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/config"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/dlq"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
)

var dlqListLimit int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead letter queue",
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead letter queue counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		return printJSON(cmd, q.Stats())
	},
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered messages, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		entries, err := q.List(cmd.Context(), dlqListLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd, entries)
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all dead-lettered messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		removed, err := q.Purge(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("purged %d entries\n", removed)
		return nil
	},
}

func openQueue() (*dlq.Queue, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.DLQ.Enabled {
		return nil, fmt.Errorf("dead letter queue is disabled in configuration")
	}
	return dlq.NewQueue(cfg.DLQ.BasePath, logging.New(slog.LevelWarn, "text"))
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func init() {
	dlqListCmd.Flags().IntVar(&dlqListLimit, "limit", 50, "maximum entries to list")
	dlqCmd.AddCommand(dlqStatsCmd, dlqListCmd, dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}
