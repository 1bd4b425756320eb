package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/internal/model"
)

// HostRun 单台设备的运行结果
type HostRun struct {
	Credential model.HostCredential
	Result     *model.RunResult
	Err        error
}

// RunMany 并发运行多台设备，每台设备使用独立会话，结果顺序与输入一致
// parallel <= 0 时使用配置的并发上限
func (m *MonitorService) RunMany(ctx context.Context, creds []model.HostCredential, profile *config.Profile, parallel int) []HostRun {
	if parallel <= 0 {
		parallel = m.parallel
	}
	if parallel <= 0 {
		parallel = 1
	}

	out := make([]HostRun, len(creds))
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, cred := range creds {
		g.Go(func() error {
			res, err := m.Run(ctx, cred, profile)
			out[i] = HostRun{Credential: cred, Result: res, Err: err}
			// 单台失败不影响其他设备
			return nil
		})
	}
	_ = g.Wait()
	return out
}
