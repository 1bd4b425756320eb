package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// Config SSH配置
type Config struct {
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ChannelTimeout   time.Duration `mapstructure:"channel_timeout"`
	KeepAlive        time.Duration `mapstructure:"keep_alive"`
	AuthMethods      []string      `mapstructure:"auth_methods"`
	EphemeralKeyBits int           `mapstructure:"ephemeral_key_bits"`
	DisabledKex      []string      `mapstructure:"disabled_kex"`
	DisabledMACs     []string      `mapstructure:"disabled_macs"`
	TermTypes        []string      `mapstructure:"term_types"`
	TermWidth        int           `mapstructure:"term_width"`
	TermHeight       int           `mapstructure:"term_height"`
	ChunkSize        int           `mapstructure:"chunk_size"`
	Charset          string        `mapstructure:"charset"`
}

// DefaultConfig 返回与常见接入交换机兼容的默认配置
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:   15 * time.Second,
		ChannelTimeout:   20 * time.Second,
		KeepAlive:        30 * time.Second,
		EphemeralKeyBits: 2048,
		DisabledKex:      append([]string(nil), DefaultDisabledKex...),
		DisabledMACs:     append([]string(nil), DefaultDisabledMACs...),
		TermTypes:        []string{"vt100", "xterm", "ansi", "dumb"},
		TermWidth:        80,
		TermHeight:       24,
		ChunkSize:        4096,
		Charset:          "utf-8",
	}
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Address 返回 host:port 形式的地址
func (i *ConnectionInfo) Address() string {
	port := i.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(port))
}

// Client SSH客户端
type Client struct {
	config     *Config
	connection *ssh.Client
	mutex      sync.RWMutex
	info       *ConnectionInfo
	methods    []Method
	log        *logrus.Entry
	stop       chan struct{}
}

// NewClient 创建SSH客户端
func NewClient(config *Config, log *logrus.Entry) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		log:    logger.Entry(log),
	}
}

// Connect 连接SSH服务器并完成认证
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.info = info
	log := c.log.WithField("host", info.Host)

	order, err := ParseMethods(c.config.AuthMethods)
	if err != nil {
		return &ConnectionError{Host: info.Host, Op: OpHandshake, Err: err}
	}

	neg := &negotiation{}
	sshConfig := &ssh.ClientConfig{
		User:              info.Username,
		Auth:              authPlan(info, order, c.config.EphemeralKeyBits, neg, log),
		HostKeyCallback:   ssh.InsecureIgnoreHostKey(),
		HostKeyAlgorithms: hostKeyAlgorithms,
		Timeout:           c.config.ConnectTimeout,
		Config:            algorithmConfig(c.config),
	}

	address := info.Address()
	log.Infof("Connecting to %s", address)

	// 使用context控制连接超时
	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &ConnectionError{Host: info.Host, Op: OpDial, Err: err}
	}

	// 握手阶段同样受超时与取消约束
	if c.config.ConnectTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.config.ConnectTimeout))
	}
	stopWatch := context.AfterFunc(ctx, func() { _ = conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	canceled := !stopWatch()
	c.methods = neg.Attempts()
	if err != nil {
		_ = conn.Close()
		if canceled && ctx.Err() != nil {
			err = ctx.Err()
		}
		log.WithField("attempted", c.methods).Errorf("SSH handshake failed: %v", err)
		return &ConnectionError{Host: info.Host, Op: OpHandshake, Err: err}
	}
	if canceled {
		_ = sshConn.Close()
		return &ConnectionError{Host: info.Host, Op: OpHandshake, Err: ctx.Err()}
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)
	log.WithField("attempted", c.methods).Infof("Successfully connected to %s", info.Host)

	// 启动保活机制，生命周期与连接一致
	c.stop = make(chan struct{})
	go c.keepAlive(c.connection, c.stop)

	return nil
}

// Methods 返回本次握手中依次尝试过的认证方式
func (c *Client) Methods() []Method {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]Method(nil), c.methods...)
}

// OpenShell 打开带 PTY 的交互式 shell 通道
func (c *Client) OpenShell() (*Shell, error) {
	c.mutex.RLock()
	conn := c.connection
	host := ""
	if c.info != nil {
		host = c.info.Host
	}
	c.mutex.RUnlock()
	if conn == nil {
		return nil, &ConnectionError{Host: host, Op: OpSession, Err: errors.New("SSH connection not established")}
	}

	session, err := conn.NewSession()
	if err != nil {
		return nil, &ConnectionError{Host: host, Op: OpSession, Err: err}
	}

	// 设置终端模式（启用回显，兼容网络设备CLI），并使用终端类型回退
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	terms := c.config.TermTypes
	if len(terms) == 0 {
		terms = []string{"vt100"}
	}
	var ptyErr error
	for _, term := range terms {
		if ptyErr = session.RequestPty(term, c.config.TermWidth, c.config.TermHeight, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		_ = session.Close()
		return nil, &ConnectionError{Host: host, Op: OpPty, Err: ptyErr}
	}

	shell, err := newShell(session, c.config)
	if err != nil {
		_ = session.Close()
		return nil, &ConnectionError{Host: host, Op: OpShell, Err: err}
	}
	return shell, nil
}

// Close 关闭SSH连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		// 设备主动断开后底层连接可能已关闭
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// keepAlive 保持连接活跃
func (c *Client) keepAlive(conn *ssh.Client, stop <-chan struct{}) {
	if c.config.KeepAlive <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// 发送保活请求（不等待回复，避免不支持该请求的设备导致错误）
			if _, _, err := conn.SendRequest("keepalive@openssh.com", false, nil); err != nil {
				c.log.WithError(err).Debug("Keepalive failed")
				return
			}
		}
	}
}

// Session 已认证的连接与其上的交互式 shell
type Session struct {
	*Shell
	client *Client
	once   sync.Once

	Host          string
	Authenticated bool
	Elevated      bool
}

// Dial 建立连接、完成认证并打开交互式 shell
// 任何阶段失败都返回 *ConnectionError，且不会遗留打开的资源
func Dial(ctx context.Context, config *Config, info *ConnectionInfo, log *logrus.Entry) (*Session, error) {
	if info == nil || info.Host == "" {
		return nil, &ConnectionError{Op: OpDial, Err: errors.New("host is required")}
	}
	client := NewClient(config, log)
	if err := client.Connect(ctx, info); err != nil {
		return nil, err
	}
	shell, err := client.OpenShell()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Session{
		Shell:         shell,
		client:        client,
		Host:          info.Host,
		Authenticated: true,
	}, nil
}

// Methods 返回握手中依次尝试过的认证方式
func (s *Session) Methods() []Method {
	return s.client.Methods()
}

// Close 关闭 shell 与底层连接，可重复调用
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		shellErr := s.Shell.Close()
		connErr := s.client.Close()
		err = errors.Join(shellErr, connErr)
		s.Authenticated = false
		s.client.log.WithField("host", s.Host).Infof("SSH connection to %s closed.", s.Host)
	})
	return err
}

// String 便于日志输出
func (s *Session) String() string {
	return fmt.Sprintf("session(%s)", s.Host)
}
