package ssh

import "fmt"

// 连接阶段
const (
	OpDial      = "dial"
	OpHandshake = "handshake"
	OpSession   = "session"
	OpPty       = "pty"
	OpShell     = "shell"
)

// ConnectionError 传输或认证失败，整个运行随之终止，不做重试
type ConnectionError struct {
	Host string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed during %s: %v", e.Host, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError 单条命令的通道读写故障，只影响该命令的结果
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
