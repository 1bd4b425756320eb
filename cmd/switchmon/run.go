package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/internal/model"
)

// newRunCmd 按命令集名称创建采集子命令
func newRunCmd(profile, short string) *cobra.Command {
	var (
		all      bool
		parallel int
	)
	cmd := &cobra.Command{
		Use:   profile + " <host-key> [host-key ...]",
		Short: short,
		Long: fmt.Sprintf(`Run the %s command profile against switches listed in the inventory.

Examples:
  switchmon %s host1
  switchmon %s host1 host2 --parallel 2
  switchmon %s --all`, profile, profile, profile, profile),
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return nil
			}
			if len(args) == 0 {
				return errors.New("missing host key: pass one or more inventory keys (e.g. host1) or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(profile, args, all, parallel)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Run against every host in the inventory")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Hosts collected concurrently (default monitor.parallel)")
	return cmd
}

// runProfile 解析凭据后执行；连接或命令失败只记录日志，不影响退出码
func runProfile(profileName string, keys []string, all bool, parallel int) error {
	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	profile, err := a.profiles.Get(profileName)
	if err != nil {
		return err
	}
	creds, err := resolveCredentials(a.inventory, keys, all)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, r := range a.monitor.RunMany(ctx, creds, profile, parallel) {
		entry := a.log.WithField("host", r.Credential.Address)
		if r.Err != nil {
			entry.WithError(r.Err).Error("Run failed")
			continue
		}
		entry.WithField("status", r.Result.Status).Info("Run completed")
		if r.Result.ReportURI != "" {
			fmt.Printf("Switch information saved to %s\n", r.Result.ReportURI)
		}
	}
	return nil
}

// resolveCredentials 在连接前解析全部主机凭据，--all 时忽略命令行中的主机键
func resolveCredentials(inv *config.Inventory, keys []string, all bool) ([]model.HostCredential, error) {
	if all {
		keys = nil
		for _, h := range inv.Hosts() {
			keys = append(keys, h.Key)
		}
	}
	creds := make([]model.HostCredential, 0, len(keys))
	for _, key := range keys {
		cred, err := inv.Credential(key)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}
