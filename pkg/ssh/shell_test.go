package ssh

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledWriter 写入一直阻塞，直到被关闭
type stalledWriter struct {
	closed   chan struct{}
	returned atomic.Bool
}

func (w *stalledWriter) Write(p []byte) (int, error) {
	<-w.closed
	w.returned.Store(true)
	return 0, errors.New("write on closed pipe")
}

func (w *stalledWriter) Close() error {
	select {
	case <-w.closed:
	default:
		close(w.closed)
	}
	return nil
}

func TestShellSendTimeoutReleasesWriter(t *testing.T) {
	w := &stalledWriter{closed: make(chan struct{})}
	s := &Shell{stdin: w, timeout: 50 * time.Millisecond, chunkSize: 16}

	err := s.Send("show version\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write timed out")

	assert.Eventually(t, w.returned.Load, time.Second, 10*time.Millisecond, "超时后阻塞的写入 goroutine 应退出")

	_, err = s.TryRecv()
	assert.Error(t, err, "超时后通道应视为不可用")
	assert.NoError(t, s.Close(), "重复关闭应安全")
}

func TestShellTryRecvChunks(t *testing.T) {
	s := &Shell{chunkSize: 4, pending: []byte("ab中文")}

	out, err := s.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "ab", out, "不应在多字节字符中间截断")

	out, _ = s.TryRecv()
	assert.Equal(t, "中", out)
	out, _ = s.TryRecv()
	assert.Equal(t, "文", out)

	out, err = s.TryRecv()
	assert.NoError(t, err)
	assert.Empty(t, out)
}
