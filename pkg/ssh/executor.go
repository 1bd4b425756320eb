package ssh

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// Executor 在交互式通道上发送命令并收集输出
type Executor struct {
	Policy       Policy
	PollInterval time.Duration
	PagerPause   time.Duration
	PromptPause  time.Duration
	// DebugLines debug 日志中输出的头尾行数
	DebugLines int
	Log        *logrus.Entry
}

// NewExecutor 使用默认时序创建执行器
func NewExecutor(log *logrus.Entry) *Executor {
	return &Executor{
		Policy:       DefaultPolicy(),
		PollInterval: 500 * time.Millisecond,
		PagerPause:   time.Second,
		PromptPause:  time.Second,
		DebugLines:   5,
		Log:          log,
	}
}

// SendResult 单条命令的收集结果
type SendResult struct {
	Command   string        `json:"command"`
	Output    string        `json:"output"`
	State     State         `json:"state"`
	Pages     int           `json:"pages"`
	Prompts   int           `json:"prompts"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Complete 是否因检测到提示符而结束
func (r *SendResult) Complete() bool { return r.State == Complete }

// Send 写入命令，等待 wait 后按收集策略读取输出直到结束
// 通道故障返回 *CommandError，结果的 Output 为 "Error: <原因>"；
// ctx 取消时返回已收集的部分输出与 ctx.Err()
func (e *Executor) Send(ctx context.Context, ch Channel, command string, wait time.Duration, rules ...PromptRule) (*SendResult, error) {
	log := logger.Entry(e.Log).WithField("command", command)
	start := time.Now()
	res := &SendResult{Command: command, State: AwaitingData}

	policy := e.Policy
	policy.Rules = rules

	log.Infof("Sending command: %s", command)
	if err := ch.Send(command + policy.LineEnding); err != nil {
		return e.fail(res, log, start, err)
	}
	if err := sleepContext(ctx, wait); err != nil {
		res.Truncated = true
		res.Duration = time.Since(start)
		return res, err
	}

	d := NewDrain(policy)
	lastReset := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			e.finish(res, d, TimedOutPartial, start)
			res.Truncated = true
			log.Warnf("Command interrupted: %v", err)
			return res, err
		}

		chunk, err := ch.TryRecv()
		if err != nil {
			return e.fail(res, log, start, err)
		}

		var step Step
		d, step = Advance(d, chunk, time.Since(lastReset), policy)
		if step.ResetIdle {
			lastReset = time.Now()
		}
		if step.Reply != "" {
			if err := ch.Send(step.Reply); err != nil {
				return e.fail(res, log, start, err)
			}
		}

		switch step.State {
		case Paginating:
			log.Debugf("Pagination marker found, requesting page %d", d.Pages+1)
			if err := sleepContext(ctx, e.PagerPause); err != nil {
				continue
			}
		case AnsweringPrompt:
			log.Infof("Responding to prompt: %s", policy.Rules[step.Rule].Text)
			if err := sleepContext(ctx, e.PromptPause); err != nil {
				continue
			}
			lastReset = time.Now()
		case Complete, TimedOutPartial:
			e.finish(res, d, step.State, start)
			if step.State == TimedOutPartial {
				log.WithField("pages", res.Pages).Warn("No prompt detected before quiet window elapsed, returning partial output")
			}
			log.WithFields(logrus.Fields{
				"state":    res.State.String(),
				"bytes":    len(res.Output),
				"pages":    res.Pages,
				"duration": res.Duration.String(),
			}).Info("Full command output collected")
			logger.DebugCommandOutput(log, command, res.Output, e.DebugLines)
			return res, nil
		default:
			if chunk == "" {
				_ = sleepContext(ctx, e.PollInterval)
			}
		}
	}
}

func (e *Executor) finish(res *SendResult, d Drain, state State, start time.Time) {
	res.Output = d.Buffer
	res.State = state
	res.Pages = d.Pages
	res.Prompts = d.Prompts
	res.Truncated = d.Truncated
	res.Duration = time.Since(start)
}

func (e *Executor) fail(res *SendResult, log *logrus.Entry, start time.Time, err error) (*SendResult, error) {
	res.Output = "Error: " + err.Error()
	res.State = TimedOutPartial
	res.Duration = time.Since(start)
	log.Errorf("Error sending command: %v", err)
	return res, &CommandError{Command: res.Command, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
