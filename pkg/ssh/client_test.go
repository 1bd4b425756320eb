package ssh

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchmon/pkg/logger"
	"github.com/sshcollectorpro/switchmon/simulate"
)

func startSwitch(t *testing.T, mutate func(*simulate.Config)) *simulate.Server {
	t.Helper()
	cfg := simulate.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := simulate.Start(cfg, logger.Discard())
	require.NoError(t, err, "模拟交换机应启动成功")
	t.Cleanup(srv.Stop)
	return srv
}

func testClientConfig() *Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 5 * time.Second
	cfg.ChannelTimeout = 5 * time.Second
	cfg.EphemeralKeyBits = 1024
	return cfg
}

func infoFor(srv *simulate.Server, password string) *ConnectionInfo {
	return &ConnectionInfo{Host: "127.0.0.1", Port: srv.Port(), Username: "admin", Password: password}
}

func TestDialAuthFallbackOrder(t *testing.T) {
	srv := startSwitch(t, nil)

	sess, err := Dial(context.Background(), testClientConfig(), infoFor(srv, "admin"), logger.Discard())
	require.NoError(t, err, "公钥失败后应回退到密码认证")
	defer sess.Close()

	assert.True(t, sess.Authenticated)
	assert.Equal(t, []Method{MethodPublicKey, MethodPassword}, sess.Methods(), "应先尝试公钥再尝试密码，各一次")
	assert.Equal(t, []string{"none", "publickey", "password"}, slices.Compact(srv.AuthAttempts()), "服务端应先收到 none 探测")
}

func TestDialSkipsUnadvertisedMethods(t *testing.T) {
	srv := startSwitch(t, func(c *simulate.Config) { c.AuthMethods = []string{"password"} })

	sess, err := Dial(context.Background(), testClientConfig(), infoFor(srv, "admin"), logger.Discard())
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, []Method{MethodPassword}, sess.Methods(), "服务端未声明的方式不应尝试")
	assert.NotContains(t, srv.AuthAttempts(), "publickey")
}

func TestDialKeyboardInteractive(t *testing.T) {
	srv := startSwitch(t, func(c *simulate.Config) { c.AuthMethods = []string{"keyboard-interactive"} })

	sess, err := Dial(context.Background(), testClientConfig(), infoFor(srv, "admin"), logger.Discard())
	require.NoError(t, err, "键盘交互认证应使用密码应答")
	defer sess.Close()
	assert.Equal(t, []Method{MethodKeyboardInteractive}, sess.Methods())
}

func TestDialWrongPassword(t *testing.T) {
	srv := startSwitch(t, nil)

	_, err := Dial(context.Background(), testClientConfig(), infoFor(srv, "wrong"), logger.Discard())
	require.Error(t, err)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr, "认证失败应返回 ConnectionError")
	assert.Equal(t, OpHandshake, connErr.Op)
	assert.Equal(t, "127.0.0.1", connErr.Host)
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), testClientConfig(), &ConnectionInfo{Host: "127.0.0.1", Port: port, Username: "u", Password: "p"}, logger.Discard())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, OpDial, connErr.Op, "端口不可达应在 dial 阶段失败")
}

func TestDialRequiresHost(t *testing.T) {
	_, err := Dial(context.Background(), testClientConfig(), &ConnectionInfo{}, logger.Discard())
	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr))
}

func TestSessionEnableAndCommand(t *testing.T) {
	srv := startSwitch(t, func(c *simulate.Config) { c.PageLines = 3 })
	ctx := context.Background()

	sess, err := Dial(ctx, testClientConfig(), infoFor(srv, "admin"), logger.Discard())
	require.NoError(t, err)
	defer sess.Close()

	e := fastExecutor()
	e.Policy.InitialWindow = 3 * time.Second
	e.Policy.DataWindow = 500 * time.Millisecond

	res, err := e.Send(ctx, sess, "enable", 300*time.Millisecond,
		PromptRule{Text: "User Name:", Response: "admin"},
		PromptRule{Text: "Password:", Response: "admin"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Prompts, "应依次应答用户名与密码提示")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(res.Output), "switch#"), "提权后提示符应为 #")

	res, err = e.Send(ctx, sess, "show version", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Cisco IOS Software")
	assert.True(t, res.Complete())

	res, err = e.Send(ctx, sess, "show interface status", 200*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Pages, 1, "长输出应触发分页")
	assert.NotContains(t, res.Output, "More:")
	assert.Contains(t, res.Output, "gi1/0/1")
	assert.Contains(t, res.Output, "te1/0/1", "翻页后应收到剩余内容")
	assert.True(t, res.Complete())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	srv := startSwitch(t, nil)
	sess, err := Dial(context.Background(), testClientConfig(), infoFor(srv, "admin"), logger.Discard())
	require.NoError(t, err)

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close(), "重复关闭不应报错")
	assert.False(t, sess.Authenticated)
}

func TestFilterAlgorithms(t *testing.T) {
	cfg := algorithmConfig(DefaultConfig())
	assert.NotContains(t, cfg.KeyExchanges, "diffie-hellman-group1-sha1")
	assert.NotContains(t, cfg.KeyExchanges, "diffie-hellman-group14-sha1")
	assert.NotContains(t, cfg.MACs, "hmac-sha1")
	assert.Contains(t, cfg.MACs, "hmac-sha1-96", "仅禁用精确匹配的算法")
	assert.Contains(t, cfg.KeyExchanges, "diffie-hellman-group14-sha256")
}

func TestParseMethods(t *testing.T) {
	methods, err := ParseMethods(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthOrder, methods)

	methods, err = ParseMethods([]string{"Password", "publickey", "password"})
	require.NoError(t, err)
	assert.Equal(t, []Method{MethodPassword, MethodPublicKey}, methods, "应保持顺序并去重")

	_, err = ParseMethods([]string{"gssapi-with-mic"})
	assert.Error(t, err)
}
