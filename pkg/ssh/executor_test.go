package ssh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// scriptedChannel 按写入内容排队模拟设备输出
type scriptedChannel struct {
	mu      sync.Mutex
	sent    []string
	queue   []string
	reply   func(sent string) []string
	sendErr error
	recvErr error
}

func (c *scriptedChannel) Send(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	if c.reply != nil {
		c.queue = append(c.queue, c.reply(data)...)
	}
	return nil
}

func (c *scriptedChannel) TryRecv() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return "", c.recvErr
	}
	out := c.queue[0]
	c.queue = c.queue[1:]
	return out, nil
}

func (c *scriptedChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func fastExecutor() *Executor {
	e := NewExecutor(logger.Discard())
	e.PollInterval = 5 * time.Millisecond
	e.PagerPause = 0
	e.PromptPause = 0
	e.Policy.InitialWindow = 300 * time.Millisecond
	e.Policy.DataWindow = 80 * time.Millisecond
	return e
}

func TestExecutorFullRun(t *testing.T) {
	ch := &scriptedChannel{reply: func(sent string) []string {
		if sent == "show version\n" {
			return []string{"Cisco IOS...\n", "switch#"}
		}
		return nil
	}}

	res, err := fastExecutor().Send(context.Background(), ch, "show version", 0)
	require.NoError(t, err)
	assert.Equal(t, "Cisco IOS...\nswitch#", res.Output)
	assert.True(t, res.Complete(), "检测到提示符应判定完成")
	assert.False(t, res.Truncated)
	assert.Equal(t, []string{"show version\n"}, ch.Sent())
}

func TestExecutorPagination(t *testing.T) {
	ch := &scriptedChannel{reply: func(sent string) []string {
		switch sent {
		case "show running-config\n":
			return []string{"line1\nline2\n--More--"}
		case " ":
			return []string{"line3\nswitch#"}
		}
		return nil
	}}
	e := fastExecutor()
	e.Policy.PagerMarker = "--More--"

	res, err := e.Send(context.Background(), ch, "show running-config", 0)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3\nswitch#", res.Output, "输出中不应包含分页标记")
	assert.Equal(t, []string{"show running-config\n", " "}, ch.Sent(), "应只发送一次翻页请求")
	assert.Equal(t, 1, res.Pages)
}

func TestExecutorEnableFlow(t *testing.T) {
	ch := &scriptedChannel{reply: func(sent string) []string {
		switch sent {
		case "enable\n":
			return []string{"User Name:"}
		case "admin\n":
			return []string{"Password:"}
		case "secret\n":
			return []string{"\r\nswitch#"}
		}
		return nil
	}}
	rules := []PromptRule{
		{Text: "User Name:", Response: "admin"},
		{Text: "Password:", Response: "secret"},
	}

	res, err := fastExecutor().Send(context.Background(), ch, "enable", 0, rules...)
	require.NoError(t, err)
	assert.Equal(t, []string{"enable\n", "admin\n", "secret\n"}, ch.Sent())
	assert.Equal(t, "\r\nswitch#", res.Output, "提示文本不应出现在结果中")
	assert.Equal(t, 2, res.Prompts)
	assert.True(t, res.Complete())
}

func TestExecutorQuietWindowReturnsPartial(t *testing.T) {
	ch := &scriptedChannel{reply: func(sent string) []string {
		return []string{"partial output without prompt"}
	}}

	start := time.Now()
	res, err := fastExecutor().Send(context.Background(), ch, "show log", 0)
	require.NoError(t, err, "超时不应作为错误返回")
	assert.Equal(t, "partial output without prompt", res.Output)
	assert.Equal(t, TimedOutPartial, res.State)
	assert.True(t, res.Truncated, "未检测到提示符应标记为截断")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecutorNoOutputEndsAfterInitialWindow(t *testing.T) {
	ch := &scriptedChannel{}
	res, err := fastExecutor().Send(context.Background(), ch, "show nothing", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Output)
	assert.Equal(t, TimedOutPartial, res.State)
	assert.GreaterOrEqual(t, res.Duration, 300*time.Millisecond)
}

func TestExecutorWriteFailure(t *testing.T) {
	ch := &scriptedChannel{sendErr: errors.New("broken pipe")}

	res, err := fastExecutor().Send(context.Background(), ch, "show version", 0)
	require.Error(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr, "通道写入失败应返回 CommandError")
	assert.Equal(t, "show version", cmdErr.Command)
	assert.Equal(t, "Error: broken pipe", res.Output)
}

func TestExecutorReadFailure(t *testing.T) {
	ch := &scriptedChannel{recvErr: ErrChannelClosed}

	res, err := fastExecutor().Send(context.Background(), ch, "show version", 0)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, "Error: "+ErrChannelClosed.Error(), res.Output)
}

func TestExecutorContextCancel(t *testing.T) {
	ch := &scriptedChannel{reply: func(string) []string { return []string{"partial"} }}
	ctx, cancel := context.WithCancel(context.Background())
	e := fastExecutor()
	e.Policy.InitialWindow = time.Minute
	e.Policy.DataWindow = time.Minute

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, err := e.Send(ctx, ch, "show tech-support", 0)
	assert.ErrorIs(t, err, context.Canceled, "取消后应返回 ctx 错误")
	assert.Equal(t, "partial", res.Output, "取消时应返回已收集的输出")
	assert.True(t, res.Truncated)
}

func TestExecutorGraceWait(t *testing.T) {
	ch := &scriptedChannel{reply: func(string) []string { return []string{"switch#"} }}

	start := time.Now()
	_, err := fastExecutor().Send(context.Background(), ch, "show clock", 100*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "应在读取前等待宽限时间")
}
