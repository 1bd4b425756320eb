package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "switch_monitoring.log")
	lg, err := New(Config{Level: "debug", Output: "file", FilePath: path})
	require.NoError(t, err)

	lg.WithField("host", "10.0.0.1").Info("Sending command: show version")
	data, err := os.ReadFile(path)
	require.NoError(t, err, "日志目录应自动创建")
	assert.Contains(t, string(data), "Sending command: show version")
	assert.Contains(t, string(data), "host=10.0.0.1")
	assert.Equal(t, logrus.DebugLevel, lg.GetLevel())
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	lg, err := New(Config{Level: "verbose", Output: "console"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lg.GetLevel())
}

func TestClearFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switch_monitoring.log")
	lg, err := New(Config{Level: "info", Output: "file", FilePath: path})
	require.NoError(t, err)

	lg.Info("before clear")
	require.NoError(t, ClearFile(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "清空后文件应为空")

	lg.Info("after clear")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "before clear")
	assert.True(t, strings.HasPrefix(string(data), "time="), "清空后应从文件开头继续写入")

	assert.NoError(t, ClearFile(filepath.Join(t.TempDir(), "missing.log")), "文件不存在时无需清空")
}

func TestParseOutputLines(t *testing.T) {
	lines := ParseOutputLines("a\r\nb\r\nc\r\nd\r\n", 2)
	assert.Equal(t, []string{"a", "b"}, lines.HeadLines)
	assert.Equal(t, []string{"c", "d"}, lines.TailLines)
	assert.Equal(t, 4, lines.Total)

	short := ParseOutputLines("only\n", 5)
	assert.Equal(t, short.HeadLines, short.TailLines, "行数不足时头尾相同")
	assert.Equal(t, "head-lines: [only]", FormatOutputLines(short))

	assert.Empty(t, ParseOutputLines("\r\n", 5).HeadLines)
}

func TestDebugCommandOutput(t *testing.T) {
	var buf bytes.Buffer
	lg := logrus.New()
	lg.SetOutput(&buf)
	lg.SetLevel(logrus.InfoLevel)

	DebugCommandOutput(logrus.NewEntry(lg), "show version", "line1\nline2", 5)
	assert.Empty(t, buf.String(), "info 级别不输出命令回显")

	lg.SetLevel(logrus.DebugLevel)
	DebugCommandOutput(logrus.NewEntry(lg), "show version", "line1\nline2", 5)
	assert.Contains(t, buf.String(), "Command echo [show version]")
}
