package ssh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	p := DefaultPolicy()
	p.InitialWindow = 10 * time.Second
	p.DataWindow = 2 * time.Second
	return p
}

// feed 依次推进所有块，遇到终止状态即停止
func feed(p Policy, chunks []string) (Drain, Step, []string) {
	d := NewDrain(p)
	var step Step
	var replies []string
	for _, c := range chunks {
		d, step = Advance(d, c, 0, p)
		if step.Reply != "" {
			replies = append(replies, step.Reply)
		}
		if step.State.Done() {
			break
		}
	}
	return d, step, replies
}

func TestAdvanceCompletesOnTerminator(t *testing.T) {
	p := testPolicy()
	d, step := Advance(NewDrain(p), "Cisco IOS...\nswitch#", 0, p)
	assert.Equal(t, Complete, step.State, "以 # 结尾应判定完成")
	assert.Equal(t, "Cisco IOS...\nswitch#", d.Buffer)
	assert.True(t, step.ResetIdle)
	assert.False(t, d.Truncated)

	d, step = Advance(NewDrain(p), "switch>  \r\n", 0, p)
	assert.Equal(t, Complete, step.State, "去除空白后以 > 结尾也应完成")
	assert.Equal(t, "switch>  \r\n", d.Buffer, "缓冲内容不应被修改")
}

func TestAdvanceChunkingInvariance(t *testing.T) {
	p := testPolicy()
	full := "Port      Name   Status\nGi1/0/1          connected\nGi1/0/2          notconnect\nswitch#"

	whole, wholeStep, _ := feed(p, []string{full})

	var bytewise []string
	for _, r := range full {
		bytewise = append(bytewise, string(r))
	}
	split, splitStep, _ := feed(p, bytewise)

	odd, oddStep, _ := feed(p, []string{full[:7], full[7:30], full[30:31], full[31:]})

	assert.Equal(t, whole.Buffer, split.Buffer, "逐字符分块的结果应与整体一致")
	assert.Equal(t, whole.Buffer, odd.Buffer, "任意分块的结果应与整体一致")
	assert.Equal(t, Complete, wholeStep.State)
	assert.Equal(t, Complete, splitStep.State)
	assert.Equal(t, Complete, oddStep.State)
}

func TestAdvancePagination(t *testing.T) {
	p := testPolicy()
	p.PagerMarker = "--More--"

	d, step := Advance(NewDrain(p), "line1\nline2\n--More--", 0, p)
	require.Equal(t, Paginating, step.State)
	assert.Equal(t, " ", step.Reply, "应发送空格请求下一页")
	assert.Equal(t, "line1\nline2\n", d.Buffer, "应截断分页标记及其后内容")
	assert.Equal(t, 1, d.Pages)

	d, step = Advance(d, "line3\nswitch#", 0, p)
	assert.Equal(t, Complete, step.State)
	assert.Equal(t, "line1\nline2\nline3\nswitch#", d.Buffer)
	assert.NotContains(t, d.Buffer, "--More--")
}

func TestAdvancePaginationDiscardsTrailingText(t *testing.T) {
	p := testPolicy()
	d, step := Advance(NewDrain(p), "a\nb\n --More: 10%-- junk", 0, p)
	require.Equal(t, Paginating, step.State)
	assert.Equal(t, "a\nb\n --", d.Buffer)
}

func TestAdvancePaginationCap(t *testing.T) {
	p := testPolicy()
	p.MaxPages = 2

	d := NewDrain(p)
	var step Step
	var replies []string
	for i := 0; i < 5; i++ {
		d, step = Advance(d, "row\nMore:", 0, p)
		replies = append(replies, step.Reply)
		if step.State.Done() {
			break
		}
	}
	assert.Equal(t, []string{" ", " ", "q"}, replies, "达到页数上限后应发送退出键")
	assert.Equal(t, TimedOutPartial, step.State)
	assert.True(t, d.Truncated, "超过分页上限的结果应标记为截断")
	assert.Equal(t, 2, d.Pages)
	assert.Equal(t, "row\nrow\nrow\n", d.Buffer)
}

func TestAdvancePromptFirstMatchWins(t *testing.T) {
	p := testPolicy()
	p.Rules = []PromptRule{
		{Text: "Password:", Response: "secret"},
		{Text: "User Name:", Response: "admin"},
	}

	d, step := Advance(NewDrain(p), "User Name: Password:", 0, p)
	require.Equal(t, AnsweringPrompt, step.State)
	assert.Equal(t, 0, step.Rule, "应按声明顺序选择第一条匹配规则")
	assert.Equal(t, "secret\n", step.Reply)
	assert.Empty(t, d.Buffer, "应答后应清空缓冲")
	assert.Equal(t, p.InitialWindow, d.Window, "应答后应重置为初始窗口")
	assert.True(t, step.ResetIdle)
}

func TestAdvancePromptAnsweredOnce(t *testing.T) {
	p := testPolicy()
	p.Rules = []PromptRule{{Text: "Password:", Response: "secret"}}

	d, step := Advance(NewDrain(p), "Password:", 0, p)
	require.Equal(t, AnsweringPrompt, step.State)

	d, step = Advance(d, "% Bad secrets\nPassword:", 0, p)
	assert.Equal(t, AwaitingData, step.State, "同一规则在一次调用中只应答一次")
	assert.Empty(t, step.Reply)
	assert.Equal(t, 1, d.Prompts)
}

func TestAdvancePromptDoesNotMutateInput(t *testing.T) {
	p := testPolicy()
	p.Rules = []PromptRule{{Text: "Password:", Response: "secret"}}

	start := NewDrain(p)
	_, step := Advance(start, "Password:", 0, p)
	require.Equal(t, AnsweringPrompt, step.State)

	_, again := Advance(start, "Password:", 0, p)
	assert.Equal(t, AnsweringPrompt, again.State, "推进不应修改传入的进度")
}

func TestAdvanceIdleWindow(t *testing.T) {
	p := testPolicy()
	d := NewDrain(p)

	d, step := Advance(d, "", 9*time.Second, p)
	assert.Equal(t, AwaitingData, step.State, "初始窗口内应继续等待")

	d, step = Advance(d, "partial", 0, p)
	assert.Equal(t, AwaitingData, step.State)
	assert.Equal(t, p.DataWindow, d.Window, "收到数据后应切换为数据静默窗口")

	d, step = Advance(d, "", 1500*time.Millisecond, p)
	assert.Equal(t, AwaitingData, step.State)

	d, step = Advance(d, "", 2*time.Second, p)
	assert.Equal(t, TimedOutPartial, step.State, "静默超过窗口应结束")
	assert.True(t, d.Truncated)
	assert.Equal(t, "partial", d.Buffer, "超时应返回已收集内容")
}

func TestAdvanceEmptyOutputTimesOut(t *testing.T) {
	p := testPolicy()
	d, step := Advance(NewDrain(p), "", 10*time.Second, p)
	assert.Equal(t, TimedOutPartial, step.State)
	assert.Empty(t, d.Buffer)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "timed_out_partial", TimedOutPartial.String())
	assert.True(t, Complete.Done())
	assert.False(t, Paginating.Done())
}
