package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const watchDebounce = 300 * time.Millisecond

// WatchInventory 监听清单文件变更并热重载，直到 ctx 结束
// 监听所在目录，编辑器以重命名方式保存文件时也能收到事件
func WatchInventory(ctx context.Context, inv *Inventory, log *logrus.Entry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path := filepath.Clean(inv.Path())
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	trigger := func() {
		if err := inv.Reload(); err != nil {
			log.WithError(err).Warn("Inventory reload failed, keeping previous hosts")
			return
		}
		log.WithField("hosts", len(inv.Hosts())).Info("Inventory reloaded")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Inventory watch error")
		}
	}
}
