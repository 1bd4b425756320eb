package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/sshcollectorpro/switchmon/internal/model"
)

const hostKeyPrefix = "host"

// HostEntry 清单中的一台交换机
type HostEntry struct {
	Key     string `json:"key"`
	Address string `json:"address"`
	Label   string `json:"label"`
}

// Inventory INI 格式设备清单，线程安全，可热重载
type Inventory struct {
	path    string
	section string

	mu     sync.RWMutex
	values map[string]string
}

// LoadInventory 读取清单文件；文件或分节缺失返回 *ConfigurationError
func LoadInventory(path, section string) (*Inventory, error) {
	if section == "" {
		section = "switches"
	}
	inv := &Inventory{path: path, section: section}
	if err := inv.Reload(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Path 清单文件路径
func (i *Inventory) Path() string { return i.path }

// Reload 重新读取清单文件，失败时保留上一次的内容
func (i *Inventory) Reload() error {
	if _, err := os.Stat(i.path); err != nil {
		return &ConfigurationError{Source: i.path, Err: fmt.Errorf("inventory not readable: %w", err)}
	}
	// 口令中可能含有 ; 或 #，不按行内注释处理
	file, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveSections: true,
		InsensitiveKeys:     true,
		IgnoreInlineComment: true,
	}, i.path)
	if err != nil {
		return &ConfigurationError{Source: i.path, Err: fmt.Errorf("failed to parse inventory: %w", err)}
	}
	sec, err := file.GetSection(i.section)
	if err != nil {
		return &ConfigurationError{Source: i.path, Err: fmt.Errorf("section '%s' not found in inventory", i.section)}
	}
	raw := sec.KeysHash()
	values := make(map[string]string, len(raw))
	for k, val := range raw {
		values[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(val)
	}

	i.mu.Lock()
	i.values = values
	i.mu.Unlock()
	return nil
}

// Credential 按主机键（如 host1）解析连接凭据
// 用户名、密码、端口优先取带相同编号的键（username1），否则取分节级默认值
func (i *Inventory) Credential(hostKey string) (model.HostCredential, error) {
	key := strings.ToLower(strings.TrimSpace(hostKey))
	i.mu.RLock()
	defer i.mu.RUnlock()

	address, ok := i.values[key]
	if !ok || !strings.HasPrefix(key, hostKeyPrefix) {
		return model.HostCredential{}, &ConfigurationError{Source: i.path, Err: fmt.Errorf("%s not found in inventory", hostKey)}
	}
	if address == "" {
		return model.HostCredential{}, &ConfigurationError{Source: i.path, Err: fmt.Errorf("%s has an empty address", hostKey)}
	}
	suffix := strings.TrimPrefix(key, hostKeyPrefix)

	cred := model.HostCredential{
		HostKey:  key,
		Address:  address,
		Port:     22,
		Username: i.lookup("username", suffix),
		Password: i.lookup("password", suffix),
	}
	// 地址可直接携带端口
	if h, p, err := net.SplitHostPort(address); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			cred.Address, cred.Port = h, n
		}
	}
	if p := i.lookup("port", suffix); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return model.HostCredential{}, &ConfigurationError{Source: i.path, Err: fmt.Errorf("invalid port %q for %s", p, hostKey)}
		}
		cred.Port = n
	}
	return cred, nil
}

func (i *Inventory) lookup(name, suffix string) string {
	if suffix != "" {
		if v, ok := i.values[name+suffix]; ok {
			return v
		}
	}
	return i.values[name]
}

// Hosts 列出所有 host* 条目，按编号排序并生成展示标签
func (i *Inventory) Hosts() []HostEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	keys := make([]string, 0, len(i.values))
	for k := range i.values {
		if strings.HasPrefix(k, hostKeyPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(a, b int) bool { return naturalLess(keys[a], keys[b]) })

	entries := make([]HostEntry, 0, len(keys))
	for idx, k := range keys {
		entries = append(entries, HostEntry{
			Key:     k,
			Address: i.values[k],
			Label:   fmt.Sprintf("Switch IP Address %d", idx+1),
		})
	}
	return entries
}

// naturalLess 按数字后缀排序：host2 < host10
func naturalLess(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimPrefix(a, hostKeyPrefix))
	nb, errB := strconv.Atoi(strings.TrimPrefix(b, hostKeyPrefix))
	if errA == nil && errB == nil && na != nb {
		return na < nb
	}
	return a < b
}
