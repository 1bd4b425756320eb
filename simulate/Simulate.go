package simulate

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// DefaultPagerMarker 模拟设备的分页提示
const DefaultPagerMarker = "--More: <space>,  Quit: q or CTRL+Z, One line: <return> --"

// Config simulate.yaml 配置结构
type Config struct {
	Listen         string            `mapstructure:"listen"`
	Hostname       string            `mapstructure:"hostname"`
	Username       string            `mapstructure:"username"`
	Password       string            `mapstructure:"password"`
	EnableUsername string            `mapstructure:"enable_username"`
	EnablePassword string            `mapstructure:"enable_password"`
	AuthMethods    []string          `mapstructure:"auth_methods"`
	PageLines      int               `mapstructure:"page_lines"`
	PagerMarker    string            `mapstructure:"pager_marker"`
	HostKeyPath    string            `mapstructure:"host_key_path"`
	OutputDir      string            `mapstructure:"output_dir"`
	MaxConn        int               `mapstructure:"max_conn"`
	Outputs        map[string]string `mapstructure:"outputs"`
}

// DefaultConfig 返回带内置命令输出的默认配置
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:2222",
		Hostname:       "switch",
		Username:       "admin",
		Password:       "admin",
		EnableUsername: "admin",
		EnablePassword: "admin",
		AuthMethods:    []string{"publickey", "password"},
		PageLines:      20,
		PagerMarker:    DefaultPagerMarker,
		MaxConn:        16,
		Outputs:        defaultOutputs(),
	}
}

// LoadConfig 读取 simulate.yaml，未配置的项使用默认值
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault("listen", def.Listen)
	v.SetDefault("hostname", def.Hostname)
	v.SetDefault("username", def.Username)
	v.SetDefault("password", def.Password)
	v.SetDefault("enable_username", def.EnableUsername)
	v.SetDefault("enable_password", def.EnablePassword)
	v.SetDefault("auth_methods", def.AuthMethods)
	v.SetDefault("page_lines", def.PageLines)
	v.SetDefault("pager_marker", def.PagerMarker)
	v.SetDefault("max_conn", def.MaxConn)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	// 配置中的输出覆盖内置输出
	outputs := defaultOutputs()
	for k, out := range cfg.Outputs {
		outputs[strings.ToLower(strings.TrimSpace(k))] = out
	}
	cfg.Outputs = outputs
	return &cfg, nil
}

// Server 模拟交换机 SSH 服务
type Server struct {
	cfg      *Config
	log      *logrus.Entry
	listener net.Listener
	hostKey  ssh.Signer

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	attempts []string
	wg       sync.WaitGroup
}

// Start 启动模拟服务，Listen 端口为 0 时由系统分配
func Start(cfg *Config, log *logrus.Entry) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log = logger.Entry(log).WithField("component", "simulate")

	signer, err := loadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init host key: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, log: log, listener: ln, hostKey: signer, conns: map[net.Conn]struct{}{}}
	log.WithField("addr", ln.Addr().String()).Info("Simulate: switch listening")

	go s.acceptLoop()
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port 实际监听端口
func (s *Server) Port() int {
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// AuthAttempts 按顺序返回客户端请求过的认证方式（含 none 探测）
func (s *Server) AuthAttempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

// Stop 停止监听，断开所有连接并等待会话退出
func (s *Server) Stop() {
	_ = s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("Simulate: switch stopped")
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// listener closed
			return
		}
		s.mu.Lock()
		if s.cfg.MaxConn > 0 && len(s.conns) >= s.cfg.MaxConn {
			s.mu.Unlock()
			_ = conn.Close()
			s.log.Warn("Simulate: reject connection, max_conn exceeded")
			continue
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}(conn)
	}
}

func (s *Server) serverConfig() *ssh.ServerConfig {
	srvCfg := &ssh.ServerConfig{
		AuthLogCallback: func(conn ssh.ConnMetadata, method string, err error) {
			s.mu.Lock()
			s.attempts = append(s.attempts, method)
			s.mu.Unlock()
			s.log.WithFields(logrus.Fields{"user": conn.User(), "method": method, "ok": err == nil}).Debug("Simulate: auth attempt")
		},
	}
	for _, m := range s.cfg.AuthMethods {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "publickey":
			// 声明支持公钥但不接受任何密钥
			srvCfg.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
				return nil, errors.New("public key not authorized")
			}
		case "password":
			srvCfg.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
				if conn.User() == s.cfg.Username && string(password) == s.cfg.Password {
					return nil, nil
				}
				return nil, errors.New("access denied")
			}
		case "keyboard-interactive":
			srvCfg.KeyboardInteractiveCallback = func(conn ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
				answers, err := challenge(conn.User(), "", []string{"Password:"}, []bool{false})
				if err != nil {
					return nil, err
				}
				if conn.User() == s.cfg.Username && len(answers) == 1 && answers[0] == s.cfg.Password {
					return nil, nil
				}
				return nil, errors.New("access denied")
			}
		}
	}
	srvCfg.AddHostKey(s.hostKey)
	return srvCfg
}

func (s *Server) handleConn(nc net.Conn) {
	conn, chans, reqs, err := ssh.NewServerConn(nc, s.serverConfig())
	if err != nil {
		s.log.WithError(err).Debug("Simulate: SSH handshake failed")
		_ = nc.Close()
		return
	}
	defer conn.Close()
	s.log.WithField("user", conn.User()).Debug("Simulate: handshake success")

	// 丢弃全局请求（含 keepalive）
	go ssh.DiscardRequests(reqs)

	var sessions sync.WaitGroup
	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			s.log.WithError(err).Error("Simulate: channel accept failed")
			continue
		}
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			s.handleSession(channel, requests)
			// 会话结束后断开连接，与交换机 exit 行为一致
			_ = conn.Close()
		}()
	}
	sessions.Wait()
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			s.runShell(channel)
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// terminal 模拟交换机 CLI 的输入输出
type terminal struct {
	ch       ssh.Channel
	r        *bufio.Reader
	hostname string
	suffix   string
}

func (t *terminal) write(s string) {
	_, _ = io.WriteString(t.ch, s)
}

func (t *terminal) prompt() {
	t.write("\r\n" + t.hostname + t.suffix)
}

// readLine 读取一行输入，echo 为 false 时不回显（口令）
func (t *terminal) readLine(echo bool) (string, error) {
	var sb strings.Builder
	for {
		b, err := t.r.ReadByte()
		if err != nil {
			return sb.String(), err
		}
		switch b {
		case '\r', '\n':
			// 吞掉紧随 CR 的 LF
			if b == '\r' {
				if next, err := t.r.Peek(1); err == nil && next[0] == '\n' {
					_, _ = t.r.ReadByte()
				}
			}
			if echo {
				t.write(sb.String())
			}
			t.write("\r\n")
			return sb.String(), nil
		default:
			sb.WriteByte(b)
		}
	}
}

func (s *Server) runShell(channel ssh.Channel) {
	t := &terminal{
		ch:       channel,
		r:        bufio.NewReader(channel),
		hostname: chooseNonEmpty(s.cfg.Hostname, "switch"),
		suffix:   ">",
	}
	t.prompt()

	for {
		line, err := t.readLine(true)
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		switch {
		case cmd == "":
		case equalAny(cmd, "exit", "quit", "logout"):
			return
		case equalAny(cmd, "enable"):
			if !s.enable(t) {
				t.write("% Access denied\r\n")
			}
		default:
			out, ok := s.lookup(cmd)
			if !ok {
				out = "% Invalid input detected at '^' marker.\r\n"
			}
			if !s.page(t, ensureCRLF(out)) {
				return
			}
		}
		t.prompt()
	}
}

// enable 提权流程：可选的 User Name: 之后是 Password:
func (s *Server) enable(t *terminal) bool {
	if t.suffix == "#" {
		return true
	}
	user := ""
	if s.cfg.EnableUsername != "" {
		t.write("User Name:")
		var err error
		if user, err = t.readLine(true); err != nil {
			return false
		}
	}
	t.write("Password:")
	pass, err := t.readLine(false)
	if err != nil {
		return false
	}
	if strings.TrimSpace(user) != s.cfg.EnableUsername || strings.TrimSpace(pass) != s.cfg.EnablePassword {
		return false
	}
	t.suffix = "#"
	return true
}

// page 按页输出，空格翻页、回车单行、q 退出；返回 false 表示连接已断开
func (s *Server) page(t *terminal, out string) bool {
	lines := strings.SplitAfter(out, "\r\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	pageSize := s.cfg.PageLines
	if pageSize <= 0 || len(lines) <= pageSize {
		t.write(out)
		return true
	}
	marker := chooseNonEmpty(s.cfg.PagerMarker, DefaultPagerMarker)
	for i, budget := 0, pageSize; i < len(lines); {
		end := min(i+budget, len(lines))
		t.write(strings.Join(lines[i:end], ""))
		i = end
		if i >= len(lines) {
			break
		}
		t.write(marker)
		key, err := t.r.ReadByte()
		if err != nil {
			return false
		}
		// 擦除分页提示
		t.write("\r" + strings.Repeat(" ", len(marker)) + "\r")
		switch key {
		case 'q', 'Q', 0x1a:
			return true
		case '\r', '\n':
			budget = 1
		default:
			budget = pageSize
		}
	}
	return true
}

// lookup 依次查找配置输出、输出目录文件与内置模板
func (s *Server) lookup(cmd string) (string, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(cmd), " "))
	if out, ok := s.cfg.Outputs[key]; ok {
		return out, true
	}
	if s.cfg.OutputDir != "" {
		for _, name := range []string{key + ".txt", strings.ReplaceAll(key, " ", "_") + ".txt"} {
			if bs, err := os.ReadFile(filepath.Join(s.cfg.OutputDir, name)); err == nil {
				return string(bs), true
			}
		}
	}
	if port, ok := strings.CutPrefix(key, "show interfaces counters "); ok {
		return countersOutput(port), true
	}
	return "", false
}

func countersOutput(port string) string {
	return fmt.Sprintf("Port: %s\n"+
		"  Rx CRC errors            : 0\n"+
		"  Rx alignment errors      : 0\n"+
		"  Rx undersize packets     : 0\n"+
		"  Rx oversize packets      : 0\n"+
		"  Tx collisions            : 0\n", port)
}

func defaultOutputs() map[string]string {
	return map[string]string{
		"show version": "Cisco IOS Software, C2960X Software, Version 15.2(7)E4\n" +
			"ROM: Bootstrap program is C2960X boot loader\n" +
			"switch uptime is 12 weeks, 3 days, 4 hours\n",
		"show system": "System Description:  24-Port Gigabit PoE Managed Switch\n" +
			"System Up Time:      84 days, 4:12:31\n" +
			"System Contact:      noc@example.com\n" +
			"System Name:         switch\n",
		"show cpu utilization": "CPU utilization service is on.\n" +
			"CPU utilization\n" +
			"five seconds: 7%; one minute: 6%; five minutes: 6%\n",
		"show power inline": "Power      Nominal Power  Consumed Power  Usage Threshold\n" +
			"Unit 1     370 Watts      42 Watts (11%)  95%\n",
		"show inventory": "NAME: \"1\", DESCR: \"24-Port Gigabit PoE Managed Switch\"\n" +
			"PID: SG350-28P          , VID: V02, SN: DNI2019A0XY\n",
		"show voice vlan": "Administrate Voice VLAN state: disabled\n" +
			"Voice VLAN ID: 1\n",
		"show interface status": "Port     Type         Duplex  Speed Neg      ctrl State       Pressure Mode\n" +
			"-------- ------------ ------  ----- -------- ---- ----------- -------- -------\n" +
			"gi1/0/1  1G-Copper    Full    1000  Enabled  Off  Up          Disabled Off\n" +
			"gi1/0/2  1G-Copper    --      --    Enabled  Off  Down        --       --\n" +
			"GigabitEthernet1/0/3 1G-Copper Full 1000 Enabled Off Up      Disabled Off\n" +
			"te1/0/1  10G-Fiber    --      --    Enabled  Off  Down        --       --\n",
		"show interfaces status": "Port     Name   Status       Vlan  Duplex Speed Type\n" +
			"Gi1/0/1         connected    1     a-full a-1000 10/100/1000BaseTX\n" +
			"Gi1/0/2         notconnect   1       auto   auto 10/100/1000BaseTX\n",
		"show log": "*Mar  1 00:01:12: %LINK-3-UPDOWN: Interface GigabitEthernet1/0/1, changed state to up\n" +
			"*Mar  1 00:01:14: %LINK-3-UPDOWN: Interface GigabitEthernet1/0/2, changed state to down\n",
		"show interfaces": "GigabitEthernet1/0/1 is up, line protocol is up (connected)\n" +
			"  5 minute input rate 1000 bits/sec, 2 packets/sec\n" +
			"  0 input errors, 0 CRC, 0 frame, 0 overrun, 0 ignored\n",
		"show queue statistics": "Queue  Drops\n" +
			"0      0\n" +
			"1      0\n",
	}
}

// 按路径加载或生成持久化的 host key（RSA 2048），路径为空时仅在内存中生成
func loadOrCreateHostKey(keyPath string) (ssh.Signer, error) {
	if keyPath != "" {
		if bs, err := os.ReadFile(keyPath); err == nil {
			if signer, err := ssh.ParsePrivateKey(bs); err == nil {
				return signer, nil
			}
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if keyPath != "" {
		if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(keyPath, pemBytes, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write host key: %w", err)
		}
	}
	return ssh.ParsePrivateKey(pemBytes)
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}

func equalAny(s string, opts ...string) bool {
	for _, o := range opts {
		if strings.EqualFold(strings.TrimSpace(s), o) {
			return true
		}
	}
	return false
}

func chooseNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
