package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInventory = `[switches]
host1 = 10.0.0.1
host2 = 10.0.0.2:2222
host10 = 10.0.0.10
username = admin
password = secret
username2 = operator
password2 = op-pass
port10 = 8022
`

func TestInventoryCredential(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "inventory.ini", sampleInventory), "switches")
	require.NoError(t, err)

	cred, err := inv.Credential("host1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cred.Address)
	assert.Equal(t, 22, cred.Port)
	assert.Equal(t, "admin", cred.Username, "未编号覆盖时使用分节默认用户名")
	assert.Equal(t, "secret", cred.Password)

	cred, err = inv.Credential("host2")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cred.Address, "地址中的端口应被拆分")
	assert.Equal(t, 2222, cred.Port)
	assert.Equal(t, "operator", cred.Username, "编号键应覆盖默认用户名")
	assert.Equal(t, "op-pass", cred.Password)

	cred, err = inv.Credential("HOST10")
	require.NoError(t, err)
	assert.Equal(t, 8022, cred.Port)
}

func TestInventoryMissingHost(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "inventory.ini", sampleInventory), "switches")
	require.NoError(t, err)

	_, err = inv.Credential("host9")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr, "不存在的主机应返回 ConfigurationError")
	assert.Contains(t, err.Error(), "host9 not found")

	_, err = inv.Credential("username")
	assert.ErrorAs(t, err, &cfgErr, "非 host 键不能作为主机")
}

func TestInventoryMissingSection(t *testing.T) {
	_, err := LoadInventory(writeFile(t, "inventory.ini", "[routers]\nhost1 = 10.0.0.1\n"), "switches")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "section 'switches' not found")

	_, err = LoadInventory("/nonexistent/inventory.ini", "switches")
	assert.ErrorAs(t, err, &cfgErr)
}

func TestInventoryHostsOrderAndLabels(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "inventory.ini", sampleInventory), "")
	require.NoError(t, err)

	hosts := inv.Hosts()
	require.Len(t, hosts, 3)
	assert.Equal(t, HostEntry{Key: "host1", Address: "10.0.0.1", Label: "Switch IP Address 1"}, hosts[0])
	assert.Equal(t, "host2", hosts[1].Key)
	assert.Equal(t, "host10", hosts[2].Key, "应按数字顺序排序")
	assert.Equal(t, "Switch IP Address 3", hosts[2].Label)
}

func TestInventoryReload(t *testing.T) {
	path := writeFile(t, "inventory.ini", sampleInventory)
	inv, err := LoadInventory(path, "switches")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[switches]\nhost1 = 192.168.1.1\nusername = a\npassword = b\n"), 0o644))
	require.NoError(t, inv.Reload())
	cred, err := inv.Credential("host1")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", cred.Address, "重载后应读取新地址")
	assert.Len(t, inv.Hosts(), 1)

	require.NoError(t, os.WriteFile(path, []byte("[other]\nx = 1\n"), 0o644))
	assert.Error(t, inv.Reload())
	assert.Len(t, inv.Hosts(), 1, "重载失败应保留旧内容")
}

func TestInventoryShippedFile(t *testing.T) {
	inv, err := LoadInventory("../../configs/inventory.ini", "switches")
	require.NoError(t, err, "仓库自带的清单应能加载")

	hosts := inv.Hosts()
	require.Len(t, hosts, 3)
	assert.Equal(t, "192.168.1.10", hosts[0].Address)

	cred, err := inv.Credential("host2")
	require.NoError(t, err)
	assert.Equal(t, "operator", cred.Username)
	assert.Equal(t, "operator-pass", cred.Password)

	cred, err = inv.Credential("host3")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cred.Address)
	assert.Equal(t, 2222, cred.Port)
}

func TestInventoryParsing(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "inventory.ini", `; comment line
[Switches]
Host1 = 10.0.0.1
Username = admin
Password = p;ss#word
`), "switches")
	require.NoError(t, err, "分节名与键名不区分大小写")

	cred, err := inv.Credential("host1")
	require.NoError(t, err)
	assert.Equal(t, "admin", cred.Username)
	assert.Equal(t, "p;ss#word", cred.Password, "口令中的 ; 与 # 不应被当作注释")

	_, err = LoadInventory(writeFile(t, "inventory.ini", "[switches\nhost1 = x\n"), "switches")
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr, "格式错误应返回 ConfigurationError")
}
