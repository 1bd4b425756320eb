package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/internal/model"
	"github.com/sshcollectorpro/switchmon/pkg/logger"
	sshx "github.com/sshcollectorpro/switchmon/pkg/ssh"
)

// Session 已认证的交互式会话
type Session interface {
	sshx.Channel
	Methods() []sshx.Method
	Close() error
}

// Dialer 按凭据建立会话
type Dialer interface {
	Dial(ctx context.Context, cred model.HostCredential) (Session, error)
}

// SSHDialer 通过 SSH 建立会话
type SSHDialer struct {
	Config *sshx.Config
	Log    *logrus.Entry
}

// Dial 建立连接、完成认证并打开交互式 shell
func (d *SSHDialer) Dial(ctx context.Context, cred model.HostCredential) (Session, error) {
	sess, err := sshx.Dial(ctx, d.Config, &sshx.ConnectionInfo{
		Host:     cred.Address,
		Port:     cred.Port,
		Username: cred.Username,
		Password: cred.Password,
	}, d.Log)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// RunStore 运行历史持久化
type RunStore interface {
	SaveRun(ctx context.Context, run *model.RunResult) error
}

// MonitorService 单台交换机的诊断采集编排
type MonitorService struct {
	dialer   Dialer
	executor *sshx.Executor
	store    RunStore
	reports  *ReportService

	commandWait    time.Duration
	enableWait     time.Duration
	enableCommand  string
	userPrompt     string
	passwordPrompt string
	parallel       int

	consoleMu sync.Mutex
	console   io.Writer
	log       *logrus.Entry
}

// MonitorOption 可选依赖
type MonitorOption func(*MonitorService)

// WithStore 运行结束后保存运行记录
func WithStore(store RunStore) MonitorOption {
	return func(m *MonitorService) { m.store = store }
}

// WithReports 运行结束后生成报告
func WithReports(reports *ReportService) MonitorOption {
	return func(m *MonitorService) { m.reports = reports }
}

// WithConsole 回显各分节输出
func WithConsole(w io.Writer) MonitorOption {
	return func(m *MonitorService) { m.console = w }
}

// NewMonitorService 创建编排服务
func NewMonitorService(cfg *config.Config, dialer Dialer, log *logrus.Entry, opts ...MonitorOption) *MonitorService {
	log = logger.Entry(log)
	if dialer == nil {
		dialer = &SSHDialer{Config: &cfg.SSH, Log: log}
	}
	m := &MonitorService{
		dialer:         dialer,
		executor:       cfg.NewExecutor(log),
		commandWait:    cfg.Executor.CommandWait,
		enableWait:     cfg.Executor.EnableWait,
		enableCommand:  cfg.Monitor.EnableCommand,
		userPrompt:     cfg.Monitor.UserPrompt,
		passwordPrompt: cfg.Monitor.PasswordPrompt,
		parallel:       cfg.Monitor.Parallel,
		log:            log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Executor 返回命令执行器
func (m *MonitorService) Executor() *sshx.Executor { return m.executor }

// Run 连接交换机、进入特权模式、按命令集顺序执行并收集结果
//
// 连接或提权失败时返回错误且结果为空；单条命令失败记录在对应结果中，后续命令继续执行。
func (m *MonitorService) Run(ctx context.Context, cred model.HostCredential, profile *config.Profile) (*model.RunResult, error) {
	run := &model.RunResult{
		ID:        uuid.NewString(),
		HostKey:   cred.HostKey,
		Address:   cred.Address,
		Port:      cred.Port,
		Profile:   profile.Name,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}
	log := m.log.WithFields(logrus.Fields{
		"host":    cred.Address,
		"run_id":  run.ID,
		"profile": profile.Name,
	})
	log.Infof("===== Processing Host: %s =====", cred.Address)
	m.echo(func(w io.Writer) { fmt.Fprintf(w, "\n===== Processing Host: %s =====\n", cred.Address) })

	err := m.collect(ctx, log, cred, profile, run)
	m.finish(ctx, log, profile, run, err)
	return run, err
}

func (m *MonitorService) collect(ctx context.Context, log *logrus.Entry, cred model.HostCredential, profile *config.Profile, run *model.RunResult) error {
	sess, err := m.dialer.Dial(ctx, cred)
	if err != nil {
		log.WithError(err).Errorf("Failed to establish SSH connection to %s", cred.Address)
		return err
	}
	defer func() { _ = sess.Close() }()

	for _, method := range sess.Methods() {
		run.Methods = append(run.Methods, string(method))
	}

	log.Info("Entering enable mode:")
	rules := []sshx.PromptRule{
		{Text: m.userPrompt, Response: cred.Username},
		{Text: m.passwordPrompt, Response: cred.Password},
	}
	if _, err := m.executor.Send(ctx, sess, m.enableCommand, m.enableWait, rules...); err != nil {
		return fmt.Errorf("enter enable mode on %s: %w", cred.Address, err)
	}
	if s, ok := sess.(*sshx.Session); ok {
		s.Elevated = true
	}

	// 端口发现命令本身不计入结果
	var dynamic []config.CommandSpec
	if profile.Discovery != nil {
		ports, err := m.discoverPorts(ctx, log, sess, profile.Discovery)
		if err != nil && ctx.Err() != nil {
			return err
		}
		run.Ports = ports
		dynamic = PortCommands(profile.Discovery, ports)
	}

	specs := make([]config.CommandSpec, 0, len(profile.Commands)+len(dynamic))
	specs = append(specs, profile.Commands...)
	specs = append(specs, dynamic...)

	for i, spec := range specs {
		res, err := m.executor.Send(ctx, sess, spec.Command, m.commandWait)
		cr := model.CommandResult{
			Seq:        i,
			Label:      spec.Label,
			Command:    spec.Command,
			RawOutput:  res.Output,
			Complete:   res.Complete(),
			Truncated:  res.Truncated,
			Pages:      res.Pages,
			DurationMS: res.Duration.Milliseconds(),
		}
		if err != nil {
			cr.Error = err.Error()
		}
		run.Results = append(run.Results, cr)
		m.echo(func(w io.Writer) { WriteSection(w, spec.Label, cr.RawOutput) })

		if err != nil && ctx.Err() != nil {
			return err
		}
	}
	return nil
}

// discoverPorts 执行端口状态命令并解析千兆端口
func (m *MonitorService) discoverPorts(ctx context.Context, log *logrus.Entry, ch sshx.Channel, d *config.DiscoveryConfig) ([]string, error) {
	res, err := m.executor.Send(ctx, ch, d.Command, m.commandWait)
	if err != nil {
		log.WithError(err).Warn("Port discovery failed; continuing without per-port commands")
		return nil, err
	}
	matcher, err := NewPortMatcher(d.Prefixes)
	if err != nil {
		return nil, err
	}
	ports := matcher.Discover(res.Output)
	log.WithField("ports", len(ports)).Infof("Found %d Gigabit ports", len(ports))
	return ports, nil
}

// finish 确定运行状态，保存报告与运行记录；持久化失败只记录日志
func (m *MonitorService) finish(ctx context.Context, log *logrus.Entry, profile *config.Profile, run *model.RunResult, runErr error) {
	run.FinishedAt = time.Now()
	run.DurationMS = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	switch {
	case runErr != nil:
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	case run.Degraded():
		run.Status = model.RunStatusDegraded
	default:
		run.Status = model.RunStatusSuccess
	}

	// 取消后的持久化不应再受原上下文约束
	pctx := context.WithoutCancel(ctx)
	if m.reports != nil && len(run.Results) > 0 {
		obj, err := m.reports.Save(pctx, profile, run)
		if err != nil {
			log.WithError(err).Error("Failed to save report")
		} else {
			run.ReportURI = obj.URI
		}
	}
	if m.store != nil {
		if err := m.store.SaveRun(pctx, run); err != nil {
			log.WithError(err).Error("Failed to save run history")
		}
	}

	log.WithFields(logrus.Fields{
		"status":      run.Status,
		"commands":    len(run.Results),
		"duration_ms": run.DurationMS,
	}).Info("Run finished")
}

func (m *MonitorService) echo(fn func(io.Writer)) {
	if m.console == nil {
		return
	}
	m.consoleMu.Lock()
	defer m.consoleMu.Unlock()
	fn(m.console)
}

// IsConnectionError 判断运行错误是否发生在连接或认证阶段
func IsConnectionError(err error) bool {
	var connErr *sshx.ConnectionError
	return errors.As(err, &connErr)
}
