package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/sshcollectorpro/switchmon/pkg/logger"
	sshx "github.com/sshcollectorpro/switchmon/pkg/ssh"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	SSH       sshx.Config     `mapstructure:"ssh"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Profiles  ProfilesConfig  `mapstructure:"profiles"`
	Report    ReportConfig    `mapstructure:"report"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RunTimeout 单次 HTTP 触发运行的最长时间
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ExecutorConfig 命令收集时序与分页策略
type ExecutorConfig struct {
	CommandWait   time.Duration `mapstructure:"command_wait"`
	EnableWait    time.Duration `mapstructure:"enable_wait"`
	InitialWindow time.Duration `mapstructure:"initial_window"`
	DataWindow    time.Duration `mapstructure:"data_window"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	PagerPause    time.Duration `mapstructure:"pager_pause"`
	PromptPause   time.Duration `mapstructure:"prompt_pause"`
	PagerMarker   string        `mapstructure:"pager_marker"`
	PagerKey      string        `mapstructure:"pager_key"`
	PagerQuit     string        `mapstructure:"pager_quit"`
	MaxPages      int           `mapstructure:"max_pages"`
	Terminators   []string      `mapstructure:"terminators"`
	LineEnding    string        `mapstructure:"line_ending"`
	DebugLines    int           `mapstructure:"debug_lines"`
}

// InventoryConfig 设备清单配置
type InventoryConfig struct {
	Path    string `mapstructure:"path"`
	Section string `mapstructure:"section"`
	// Watch serve 模式下监听清单文件变更并自动重载
	Watch bool `mapstructure:"watch"`
}

// ProfilesConfig 命令集配置
type ProfilesConfig struct {
	Path string `mapstructure:"path"`
}

// ReportConfig 报告输出配置
type ReportConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend 存储后端：local | minio
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
	// Echo 是否在标准输出回显每个分节
	Echo bool `mapstructure:"echo"`
}

// StorageConfig 报告对象存储配置
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MonitorConfig 运行编排配置
type MonitorConfig struct {
	// Parallel 多台设备同时运行的上限
	Parallel       int    `mapstructure:"parallel"`
	EnableCommand  string `mapstructure:"enable_command"`
	UserPrompt     string `mapstructure:"user_prompt"`
	PasswordPrompt string `mapstructure:"password_prompt"`
}

// Default 返回仅包含默认值的配置，不读取文件与环境变量
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}
	return &config
}

// Load 加载配置文件；configPath 为空且默认路径下无配置文件时仅使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 默认配置文件路径
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// 设置环境变量前缀
	v.SetEnvPrefix("SWITCHMON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, &ConfigurationError{Source: configPath, Err: fmt.Errorf("failed to read config file: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &ConfigurationError{Source: configPath, Err: fmt.Errorf("failed to unmarshal config: %w", err)}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	ssh := sshx.DefaultConfig()
	policy := sshx.DefaultPolicy()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.run_timeout", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file_path", "./logs/switch_monitoring.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("ssh.connect_timeout", ssh.ConnectTimeout)
	v.SetDefault("ssh.channel_timeout", ssh.ChannelTimeout)
	v.SetDefault("ssh.keep_alive", ssh.KeepAlive)
	v.SetDefault("ssh.auth_methods", []string{"publickey", "password", "keyboard-interactive"})
	v.SetDefault("ssh.ephemeral_key_bits", ssh.EphemeralKeyBits)
	v.SetDefault("ssh.disabled_kex", ssh.DisabledKex)
	v.SetDefault("ssh.disabled_macs", ssh.DisabledMACs)
	v.SetDefault("ssh.term_types", ssh.TermTypes)
	v.SetDefault("ssh.term_width", ssh.TermWidth)
	v.SetDefault("ssh.term_height", ssh.TermHeight)
	v.SetDefault("ssh.chunk_size", ssh.ChunkSize)
	v.SetDefault("ssh.charset", ssh.Charset)

	v.SetDefault("executor.command_wait", 5*time.Second)
	v.SetDefault("executor.enable_wait", 5*time.Second)
	v.SetDefault("executor.initial_window", policy.InitialWindow)
	v.SetDefault("executor.data_window", policy.DataWindow)
	v.SetDefault("executor.poll_interval", 500*time.Millisecond)
	v.SetDefault("executor.pager_pause", time.Second)
	v.SetDefault("executor.prompt_pause", time.Second)
	v.SetDefault("executor.pager_marker", policy.PagerMarker)
	v.SetDefault("executor.pager_key", policy.PagerKey)
	v.SetDefault("executor.pager_quit", policy.PagerQuit)
	v.SetDefault("executor.max_pages", policy.MaxPages)
	v.SetDefault("executor.terminators", policy.Terminators)
	v.SetDefault("executor.line_ending", policy.LineEnding)
	v.SetDefault("executor.debug_lines", 5)

	v.SetDefault("inventory.path", "./configs/inventory.ini")
	v.SetDefault("inventory.section", "switches")
	v.SetDefault("inventory.watch", true)

	v.SetDefault("profiles.path", "")

	v.SetDefault("report.enabled", true)
	v.SetDefault("report.backend", "local")
	v.SetDefault("report.base_dir", "./data/reports")
	v.SetDefault("report.echo", true)

	v.SetDefault("storage.minio.port", 9000)
	v.SetDefault("storage.minio.bucket", "switchmon")

	v.SetDefault("database.sqlite.enabled", true)
	v.SetDefault("database.sqlite.path", "./data/switchmon.db")
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("monitor.parallel", 4)
	v.SetDefault("monitor.enable_command", "enable")
	v.SetDefault("monitor.user_prompt", "User Name:")
	v.SetDefault("monitor.password_prompt", "Password:")
}

// Validate 校验互相关联的配置项
func (c *Config) Validate() error {
	if _, err := sshx.ParseMethods(c.SSH.AuthMethods); err != nil {
		return &ConfigurationError{Source: "ssh.auth_methods", Err: err}
	}
	switch strings.ToLower(c.Report.Backend) {
	case "", "local", "minio":
	default:
		return &ConfigurationError{Source: "report.backend", Err: fmt.Errorf("unsupported backend %q", c.Report.Backend)}
	}
	if len(c.Executor.Terminators) == 0 {
		return &ConfigurationError{Source: "executor.terminators", Err: fmt.Errorf("at least one prompt terminator is required")}
	}
	return nil
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggerConfig 转换为日志模块配置
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Output:     c.Log.Output,
		FilePath:   c.Log.FilePath,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

// NewExecutor 按执行器配置构建命令执行器
func (c *Config) NewExecutor(log *logrus.Entry) *sshx.Executor {
	e := sshx.NewExecutor(log)
	ec := c.Executor
	e.Policy = sshx.Policy{
		PagerMarker:   ec.PagerMarker,
		PagerKey:      ec.PagerKey,
		PagerQuit:     ec.PagerQuit,
		MaxPages:      ec.MaxPages,
		Terminators:   ec.Terminators,
		LineEnding:    ec.LineEnding,
		InitialWindow: ec.InitialWindow,
		DataWindow:    ec.DataWindow,
	}
	e.PollInterval = ec.PollInterval
	e.PagerPause = ec.PagerPause
	e.PromptPause = ec.PromptPause
	e.DebugLines = ec.DebugLines
	return e
}

// ConfigurationError 配置或清单错误，在建立任何连接之前返回
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
