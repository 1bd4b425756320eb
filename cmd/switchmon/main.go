// Package main is the entrypoint for the switchmon CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "switchmon",
	Short: "Switch diagnostics collector over interactive SSH",
	Long: `switchmon logs into managed switches over SSH, enters privileged mode
and collects a fixed set of show commands into a section report.

Hosts are looked up by key in the inventory file (section [switches]).`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./configs/config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd("system", "Collect system health information (version, CPU, power, inventory)"))
	rootCmd.AddCommand(newRunCmd("interface", "Collect interface port health (status, flapping, drops, CRC errors)"))
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}
