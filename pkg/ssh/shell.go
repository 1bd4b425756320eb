package ssh

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/switchmon/internal/util"
)

// Channel 交互式通道的最小能力：写入文本、非阻塞读取已到达的文本
type Channel interface {
	Send(data string) error
	// TryRecv 立即返回当前已缓冲的数据（最多一个块），无数据时返回空串
	TryRecv() (string, error)
}

// ErrChannelClosed 对端已关闭通道且缓冲数据已读完
var ErrChannelClosed = errors.New("channel closed by remote")

// Shell 基于 SSH 会话的交互式 shell
// 后台 goroutine 持续读取并解码输出，TryRecv 每次取走最多 chunkSize 字节
type Shell struct {
	session   *ssh.Session
	stdin     io.WriteCloser
	timeout   time.Duration
	chunkSize int

	mu      sync.Mutex
	pending []byte
	readErr error

	closeOnce sync.Once
}

func newShell(session *ssh.Session, config *Config) (*Shell, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr: %w", err)
	}
	if err := session.Shell(); err != nil {
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	chunk := config.ChunkSize
	if chunk <= 0 {
		chunk = 4096
	}
	s := &Shell{
		session:   session,
		stdin:     stdin,
		timeout:   config.ChannelTimeout,
		chunkSize: chunk,
	}
	go s.pump(util.NewDecodingReader(stdout, config.Charset), true)
	go s.pump(util.NewDecodingReader(stderr, config.Charset), false)
	return s, nil
}

// pump 读取输出写入缓冲；primary 为 stdout，其结束即视为通道关闭
func (s *Shell) pump(r io.Reader, primary bool) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			if primary {
				if errors.Is(err, io.EOF) {
					err = ErrChannelClosed
				}
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// Send 写入文本，超过通道超时未完成则返回错误
// 超时后关闭会话，阻塞中的写入随之返回，通道不再可用
func (s *Shell) Send(data string) error {
	errc := make(chan error, 1)
	go func() {
		_, err := io.WriteString(s.stdin, data)
		errc <- err
	}()
	if s.timeout <= 0 {
		return <-errc
	}
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case err := <-errc:
		return err
	case <-timer.C:
		err := fmt.Errorf("write timed out after %s", s.timeout)
		s.mu.Lock()
		if s.readErr == nil {
			s.readErr = err
		}
		s.mu.Unlock()
		_ = s.Close()
		return err
	}
}

// TryRecv 实现 Channel
func (s *Shell) TryRecv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", s.readErr
	}
	n := len(s.pending)
	if n > s.chunkSize {
		n = s.chunkSize
		// 不在多字节字符中间截断
		for n > 0 && !utf8.RuneStart(s.pending[n]) {
			n--
		}
		if n == 0 {
			n = s.chunkSize
		}
	}
	out := string(s.pending[:n])
	s.pending = s.pending[n:]
	return out, nil
}

// Close 关闭 shell 会话
func (s *Shell) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		if s.session == nil {
			return
		}
		if cerr := s.session.Close(); cerr != nil && !errors.Is(cerr, io.EOF) {
			err = cerr
		}
	})
	return err
}
