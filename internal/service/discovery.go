package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sshcollectorpro/switchmon/internal/config"
)

// PortMatcher 从端口状态输出中识别端口名并规范为完整前缀
type PortMatcher struct {
	re    *regexp.Regexp
	pairs []config.PrefixPair
}

var defaultMatcher = mustPortMatcher(config.DefaultDiscovery().Prefixes)

func mustPortMatcher(pairs []config.PrefixPair) *PortMatcher {
	m, err := NewPortMatcher(pairs)
	if err != nil {
		panic(err)
	}
	return m
}

// NewPortMatcher 按前缀对构建匹配器，匹配不区分大小写，只检查去除首尾空白后的行首
func NewPortMatcher(pairs []config.PrefixPair) (*PortMatcher, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one port prefix is required")
	}
	var alts []string
	for _, p := range pairs {
		if p.Long == "" {
			return nil, fmt.Errorf("prefix pair %q has no long form", p.Short)
		}
		alts = append(alts, regexp.QuoteMeta(p.Long))
		if p.Short != "" {
			alts = append(alts, regexp.QuoteMeta(p.Short))
		}
	}
	// 长前缀优先
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	re, err := regexp.Compile(`(?i)^(` + strings.Join(alts, "|") + `)(\d+(?:/\d+)*)`)
	if err != nil {
		return nil, err
	}
	return &PortMatcher{re: re, pairs: pairs}, nil
}

// Discover 按出现顺序返回端口名，保留重复项
func (m *PortMatcher) Discover(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		match := m.re.FindStringSubmatch(strings.TrimSpace(visibleLine(line)))
		if match == nil {
			continue
		}
		ports = append(ports, m.longForm(match[1])+match[2])
	}
	return ports
}

// visibleLine 按终端回车覆盖语义取最后一次回车之后的内容，分页提示擦除后会留下这种行
func visibleLine(line string) string {
	line = strings.TrimRight(line, "\r")
	if i := strings.LastIndex(line, "\r"); i >= 0 {
		return line[i+1:]
	}
	return line
}

func (m *PortMatcher) longForm(prefix string) string {
	for _, p := range m.pairs {
		if strings.EqualFold(prefix, p.Long) || strings.EqualFold(prefix, p.Short) {
			return p.Long
		}
	}
	return prefix
}

// DiscoverPorts 使用默认规则（Gi/GigabitEthernet）识别千兆端口
func DiscoverPorts(output string) []string {
	return defaultMatcher.Discover(output)
}

// PortCommands 为每个端口生成计数器查询命令
func PortCommands(d *config.DiscoveryConfig, ports []string) []config.CommandSpec {
	specs := make([]config.CommandSpec, 0, len(ports))
	for _, port := range ports {
		specs = append(specs, config.CommandSpec{
			Command: fmt.Sprintf(d.CommandTemplate, port),
			Label:   fmt.Sprintf(d.LabelTemplate, port),
		})
	}
	return specs
}
