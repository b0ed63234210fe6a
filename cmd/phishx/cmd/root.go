// Package cmd holds the phishx command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "phishx",
	Short: "PhishX email risk pipeline",
	Long: `phishx runs the email risk-verdict pipeline: admission control,
enrichment with circuit-broken collaborators, the weighted risk ensemble,
anomaly detection, decision persistence, and enforcement publishing.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /etc/phishx/config.yaml)")
}
