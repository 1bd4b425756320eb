package logger

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultMu sync.RWMutex
	defaultLg *logrus.Logger

	filesMu sync.Mutex
	files   = map[string]*lumberjack.Logger{}
)

// Config 日志配置
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

// New 按配置创建独立的日志实例（不修改进程级输出流）
func New(config Config) (*logrus.Logger, error) {
	lg := logrus.New()

	// 设置日志级别
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	lg.SetLevel(level)

	// 设置日志格式
	if config.Format == "json" {
		lg.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:   "2006-01-02 15:04:05",
			DisableHTMLEscape: true, // 设备输出中常见 <>，不做转义
		})
	} else {
		lg.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// 设置输出
	var writers []io.Writer

	if config.Output == "console" || config.Output == "both" || config.Output == "" {
		writers = append(writers, os.Stdout)
	}

	if config.Output == "file" || config.Output == "both" {
		// 确保日志目录存在
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, err
		}

		// lumberjack 以追加方式打开已有文件，多进程写同一日志时不会互相截断
		fileWriter := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		filesMu.Lock()
		files[filepath.Clean(config.FilePath)] = fileWriter
		filesMu.Unlock()
		writers = append(writers, fileWriter)
	}

	if len(writers) > 0 {
		lg.SetOutput(io.MultiWriter(writers...))
	}

	return lg, nil
}

// ClearFile 清空日志文件；文件由本进程写入时先关闭，下次写入会以追加方式重新打开
func ClearFile(path string) error {
	filesMu.Lock()
	defer filesMu.Unlock()
	if w, ok := files[filepath.Clean(path)]; ok {
		if err := w.Close(); err != nil {
			return err
		}
	}
	if err := os.Truncate(path, 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Init 初始化进程默认日志实例，仅供 cmd 入口使用
func Init(config Config) (*logrus.Logger, error) {
	lg, err := New(config)
	if err != nil {
		return nil, err
	}
	defaultMu.Lock()
	defaultLg = lg
	defaultMu.Unlock()
	return lg, nil
}

// GetLogger 获取默认日志实例
func GetLogger() *logrus.Logger {
	defaultMu.RLock()
	lg := defaultLg
	defaultMu.RUnlock()
	if lg != nil {
		return lg
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLg == nil {
		defaultLg = logrus.New()
	}
	return defaultLg
}

// Discard 返回丢弃全部输出的日志条目，测试与未注入日志时使用
func Discard() *logrus.Entry {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return logrus.NewEntry(lg)
}

// Entry 将可能为空的日志条目规范为可用条目
func Entry(e *logrus.Entry) *logrus.Entry {
	if e == nil {
		return logrus.NewEntry(GetLogger())
	}
	return e
}
