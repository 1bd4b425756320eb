package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/internal/database"
	"github.com/sshcollectorpro/switchmon/internal/service"
	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// app 命令共享的运行环境
type app struct {
	cfg       *config.Config
	log       *logrus.Entry
	inventory *config.Inventory
	profiles  config.Profiles
	store     *database.Store
	monitor   *service.MonitorService
}

// newApp 加载配置、日志、清单与命令集；配置类错误在建立任何连接之前返回
func newApp(console io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	lg, err := logger.Init(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logrus.NewEntry(lg)

	inv, err := config.LoadInventory(cfg.Inventory.Path, cfg.Inventory.Section)
	if err != nil {
		return nil, err
	}
	profiles, err := config.LoadProfiles(cfg.Profiles.Path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, inventory: inv, profiles: profiles}

	var opts []service.MonitorOption
	if cfg.Database.SQLite.Enabled {
		store, err := database.OpenSQLite(cfg.Database.SQLite, lg)
		if err != nil {
			// 历史记录不可用时仍可采集
			log.WithError(err).Warn("Run history disabled")
		} else {
			a.store = store
			opts = append(opts, service.WithStore(store))
		}
	}
	if cfg.Report.Enabled {
		opts = append(opts, service.WithReports(service.NewReportService(cfg, nil, log)))
	}
	if cfg.Report.Echo && console != nil {
		opts = append(opts, service.WithConsole(console))
	}
	a.monitor = service.NewMonitorService(cfg, nil, log, opts...)
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close database")
		}
	}
}
