package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchmon/api/handler"
	"github.com/sshcollectorpro/switchmon/api/router"
	"github.com/sshcollectorpro/switchmon/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP trigger API",
	Long: `Start the HTTP server used by the monitoring page: it lists inventory
hosts, runs the system or interface profile on demand and exposes the
diagnostic log and run history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	// 页面触发的运行不回显到控制台
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	var runs handler.RunReader
	if a.store != nil {
		runs = a.store
	}
	r := router.SetupRouter(cfg.Server.Mode, router.Handlers{
		Monitor: handler.NewMonitorHandler(a.monitor, a.inventory, a.profiles, cfg.Server.RunTimeout, a.log),
		Logs:    handler.NewLogsHandler(cfg.Log.FilePath, a.log),
		Runs:    handler.NewRunsHandler(runs),
	}, a.log)

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Inventory.Watch {
		go func() {
			if err := config.WatchInventory(ctx, a.inventory, a.log); err != nil {
				a.log.WithError(err).Warn("Inventory watch init failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", server.Addr).WithField("mode", cfg.Server.Mode).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.log.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Error("Server forced to shutdown")
		return nil
	}
	a.log.Info("Server shutdown complete")
	return nil
}
