package ssh

import (
	"strings"
	"time"
)

// State 输出收集状态
type State int

const (
	AwaitingData State = iota
	Paginating
	AnsweringPrompt
	Complete
	TimedOutPartial
)

func (s State) String() string {
	switch s {
	case AwaitingData:
		return "awaiting_data"
	case Paginating:
		return "paginating"
	case AnsweringPrompt:
		return "answering_prompt"
	case Complete:
		return "complete"
	case TimedOutPartial:
		return "timed_out_partial"
	default:
		return "unknown"
	}
}

// Done 是否为终止状态
func (s State) Done() bool {
	return s == Complete || s == TimedOutPartial
}

// PromptRule 交互提示规则：输出包含 Text 时回复 Response
type PromptRule struct {
	Text     string `json:"text" yaml:"text" mapstructure:"text"`
	Response string `json:"-" yaml:"response" mapstructure:"response"`
}

// Policy 收集策略
type Policy struct {
	PagerMarker   string
	PagerKey      string
	PagerQuit     string
	MaxPages      int
	Terminators   []string
	LineEnding    string
	InitialWindow time.Duration
	DataWindow    time.Duration
	Rules         []PromptRule
}

// DefaultPolicy 默认策略：分页标记 "More:"，提示符以 # 或 > 结尾
func DefaultPolicy() Policy {
	return Policy{
		PagerMarker:   "More:",
		PagerKey:      " ",
		PagerQuit:     "q",
		MaxPages:      500,
		Terminators:   []string{"#", ">"},
		LineEnding:    "\n",
		InitialWindow: 10 * time.Second,
		DataWindow:    2 * time.Second,
	}
}

// Drain 单条命令的收集进度
type Drain struct {
	Buffer    string
	Window    time.Duration
	Pages     int
	Prompts   int
	Truncated bool
	answered  []bool
}

// NewDrain 创建初始进度
func NewDrain(p Policy) Drain {
	return Drain{
		Window:   p.InitialWindow,
		answered: make([]bool, len(p.Rules)),
	}
}

// Step 一次推进的结果；Reply 非空时需写回通道
type Step struct {
	State     State
	Reply     string
	ResetIdle bool
	Rule      int
}

// Advance 用新到达的数据块与已空闲时长推进收集状态
// 不做任何 I/O，便于在不同分块方式下验证结果一致
func Advance(d Drain, chunk string, idle time.Duration, p Policy) (Drain, Step) {
	next := d
	next.answered = make([]bool, len(p.Rules))
	copy(next.answered, d.answered)
	step := Step{State: AwaitingData, Rule: -1}

	if chunk != "" {
		next.Buffer += chunk
		next.Window = p.DataWindow
		step.ResetIdle = true
		idle = 0
	}

	// 分页：丢弃标记及其后内容，请求下一页
	if p.PagerMarker != "" {
		if i := strings.Index(next.Buffer, p.PagerMarker); i >= 0 {
			next.Buffer = next.Buffer[:i]
			if p.MaxPages > 0 && next.Pages >= p.MaxPages {
				next.Truncated = true
				step.State = TimedOutPartial
				step.Reply = p.PagerQuit
				return next, step
			}
			next.Pages++
			step.State = Paginating
			step.Reply = p.PagerKey
			return next, step
		}
	}

	// 每条规则在一次调用中最多应答一次，按声明顺序取第一条
	for i, rule := range p.Rules {
		if rule.Text == "" || next.answered[i] {
			continue
		}
		if strings.Contains(next.Buffer, rule.Text) {
			next.answered[i] = true
			next.Prompts++
			next.Buffer = ""
			next.Window = p.InitialWindow
			return next, Step{
				State:     AnsweringPrompt,
				Reply:     rule.Response + p.LineEnding,
				ResetIdle: true,
				Rule:      i,
			}
		}
	}

	if hasTerminator(next.Buffer, p.Terminators) {
		step.State = Complete
		return next, step
	}

	if idle >= next.Window {
		next.Truncated = true
		step.State = TimedOutPartial
	}
	return next, step
}

func hasTerminator(buf string, terminators []string) bool {
	trimmed := strings.TrimSpace(buf)
	if trimmed == "" {
		return false
	}
	for _, t := range terminators {
		if t != "" && strings.HasSuffix(trimmed, t) {
			return true
		}
	}
	return false
}
