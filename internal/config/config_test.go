package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 8088\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port, "配置文件中的值应覆盖默认值")
	assert.Equal(t, 15*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, 20*time.Second, cfg.SSH.ChannelTimeout)
	assert.Equal(t, []string{"diffie-hellman-group1-sha1", "diffie-hellman-group14-sha1"}, cfg.SSH.DisabledKex)
	assert.Equal(t, 5*time.Second, cfg.Executor.CommandWait)
	assert.Equal(t, "More:", cfg.Executor.PagerMarker)
	assert.Equal(t, 500, cfg.Executor.MaxPages)
	assert.Equal(t, "switches", cfg.Inventory.Section)
	assert.Equal(t, "User Name:", cfg.Monitor.UserPrompt)
}

func TestLoadOverridesDurations(t *testing.T) {
	path := writeFile(t, "config.yaml", `
ssh:
  connect_timeout: 3s
  auth_methods: [password]
executor:
  data_window: 750ms
  max_pages: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, []string{"password"}, cfg.SSH.AuthMethods)

	e := cfg.NewExecutor(nil)
	assert.Equal(t, 750*time.Millisecond, e.Policy.DataWindow, "执行器策略应来自配置")
	assert.Equal(t, 10, e.Policy.MaxPages)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", "log:\n  level: info\n")
	t.Setenv("SWITCHMON_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level, "环境变量应覆盖配置文件")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "ssh:\n  auth_methods: [gssapi]\n")
	_, err := Load(path)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "非法认证方式应返回 ConfigurationError")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.As(err, &cfgErr), "指定的配置文件不存在应报错")
}

func TestProfilesDefaults(t *testing.T) {
	profiles, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, []string{"interface", "system"}, profiles.Names())

	sys, err := profiles.Get("system")
	require.NoError(t, err)
	assert.Equal(t, "SWITCH MONITORING REPORT", sys.Title)
	assert.Equal(t, "basicinfo", sys.FilePrefix)
	assert.Equal(t, CommandSpec{Command: "show version", Label: "Version Information"}, sys.Commands[0])
	assert.Len(t, sys.Commands, 6)
	assert.Nil(t, sys.Discovery)

	iface, err := profiles.Get("interface")
	require.NoError(t, err)
	require.NotNil(t, iface.Discovery)
	assert.Equal(t, "show interface status", iface.Discovery.Command)
	assert.Equal(t, "CRC Errors - %s", iface.Discovery.LabelTemplate)

	_, err = profiles.Get("nope")
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestProfilesFileOverrides(t *testing.T) {
	path := writeFile(t, "profiles.yaml", `
profiles:
  - name: system
    commands:
      - command: show clock
        label: Clock
  - name: uplinks
    commands:
      - command: show lldp neighbors
    discovery:
      prefixes:
        - short: Te
          long: TenGigabitEthernet
`)
	profiles, err := LoadProfiles(path)
	require.NoError(t, err)

	sys, _ := profiles.Get("system")
	assert.Equal(t, []CommandSpec{{Command: "show clock", Label: "Clock"}}, sys.Commands, "同名命令集应被覆盖")
	assert.Equal(t, "system", sys.FilePrefix)

	up, err := profiles.Get("uplinks")
	require.NoError(t, err)
	assert.Equal(t, "show lldp neighbors", up.Commands[0].Label, "缺省标题应使用命令本身")
	assert.Equal(t, "show interface status", up.Discovery.Command, "发现配置缺省项应补齐")
	assert.Equal(t, "TenGigabitEthernet", up.Discovery.Prefixes[0].Long)

	_, err = profiles.Get("interface")
	assert.NoError(t, err, "未覆盖的内置命令集应保留")
}

func TestProfilesFileInvalid(t *testing.T) {
	path := writeFile(t, "profiles.yaml", "profiles:\n  - commands:\n      - command: show version\n")
	_, err := LoadProfiles(path)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
