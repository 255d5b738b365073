package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ktime",
	Short: "ktime - screen-time accounting and enforcement service",
	Long: `ktime tracks foreground sessions, aggregates daily usage and decides
whether the device should be allowed, reminded or blocked according to a
daily limit with optional per-weekday overrides and a passcode unlock.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to serve command when no subcommand is provided
		return runServe(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/ktime/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
