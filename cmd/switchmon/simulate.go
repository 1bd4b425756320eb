package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchmon/pkg/logger"
	"github.com/sshcollectorpro/switchmon/simulate"
)

const defaultSimulatePath = "simulate/simulate.yaml"

var (
	simulateFile   string
	simulateListen string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated switch SSH server for local testing",
	Long: `Start an SSH server that behaves like a managed switch CLI: publickey and
password authentication, an enable flow prompting "User Name:" and
"Password:", "More:" paging and canned outputs for every profile command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulate()
	},
}

func init() {
	simulateCmd.Flags().StringVarP(&simulateFile, "file", "f", "", "Simulator config (default "+defaultSimulatePath+" when present)")
	simulateCmd.Flags().StringVarP(&simulateListen, "listen", "l", "", "Listen address override, e.g. 127.0.0.1:2222")
}

func runSimulate() error {
	level := logLevel
	if level == "" {
		level = "info"
	}
	lg, err := logger.Init(logger.Config{Level: level, Output: "console"})
	if err != nil {
		return err
	}
	log := logrus.NewEntry(lg)

	cfg, err := loadSimulateConfig()
	if err != nil {
		return err
	}
	if simulateListen != "" {
		cfg.Listen = simulateListen
	}

	srv, err := simulate.Start(cfg, log)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	srv.Stop()
	return nil
}

func loadSimulateConfig() (*simulate.Config, error) {
	if simulateFile != "" {
		return simulate.LoadConfig(simulateFile)
	}
	if _, err := os.Stat(defaultSimulatePath); errors.Is(err, fs.ErrNotExist) {
		return simulate.DefaultConfig(), nil
	}
	return simulate.LoadConfig(defaultSimulatePath)
}
