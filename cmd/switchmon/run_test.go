package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchmon/internal/config"
)

func testInventory(t *testing.T) *config.Inventory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.ini")
	require.NoError(t, os.WriteFile(path, []byte("[switches]\nhost1 = 10.0.0.1\nhost2 = 10.0.0.2\nhost3 = 10.0.0.3\nusername = admin\npassword = secret\n"), 0o644))
	inv, err := config.LoadInventory(path, "switches")
	require.NoError(t, err)
	return inv
}

func TestResolveCredentialsAllKeepsArgs(t *testing.T) {
	inv := testInventory(t)
	args := []string{"host2"}

	creds, err := resolveCredentials(inv, args, true)
	require.NoError(t, err)
	require.Len(t, creds, 3, "--all 应覆盖清单中全部主机")
	assert.Equal(t, "10.0.0.1", creds[0].Address)
	assert.Equal(t, "10.0.0.3", creds[2].Address)
	assert.Equal(t, []string{"host2"}, args, "不应改写命令行参数切片")
}

func TestResolveCredentialsUnknownHost(t *testing.T) {
	inv := testInventory(t)

	creds, err := resolveCredentials(inv, []string{"host1", "host9"}, false)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr, "任一主机缺失都应在连接前失败")
	assert.Nil(t, creds)

	creds, err = resolveCredentials(inv, []string{"host2"}, false)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "admin", creds[0].Username)
}
