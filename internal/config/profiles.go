package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandSpec 一条待执行命令及其报告分节标题
type CommandSpec struct {
	Command string `yaml:"command" json:"command"`
	Label   string `yaml:"label" json:"label"`
}

// PrefixPair 端口名短前缀与完整前缀
type PrefixPair struct {
	Short string `yaml:"short" json:"short"`
	Long  string `yaml:"long" json:"long"`
}

// DiscoveryConfig 端口发现配置
type DiscoveryConfig struct {
	Command         string       `yaml:"command" json:"command"`
	Prefixes        []PrefixPair `yaml:"prefixes" json:"prefixes"`
	CommandTemplate string       `yaml:"command_template" json:"command_template"`
	LabelTemplate   string       `yaml:"label_template" json:"label_template"`
}

// Profile 一组固定顺序的诊断命令
type Profile struct {
	Name       string           `yaml:"name" json:"name"`
	Title      string           `yaml:"title" json:"title"`
	FilePrefix string           `yaml:"file_prefix" json:"file_prefix"`
	Commands   []CommandSpec    `yaml:"commands" json:"commands"`
	Discovery  *DiscoveryConfig `yaml:"discovery,omitempty" json:"discovery,omitempty"`
}

// Labels 返回所有静态命令的分节标题
func (p *Profile) Labels() []string {
	labels := make([]string, 0, len(p.Commands))
	for _, c := range p.Commands {
		labels = append(labels, c.Label)
	}
	return labels
}

// Profiles 按名称索引的命令集
type Profiles map[string]*Profile

// DefaultDiscovery 默认千兆端口发现规则
func DefaultDiscovery() *DiscoveryConfig {
	return &DiscoveryConfig{
		Command:         "show interface status",
		Prefixes:        []PrefixPair{{Short: "Gi", Long: "GigabitEthernet"}},
		CommandTemplate: "show interfaces counters %s",
		LabelTemplate:   "CRC Errors - %s",
	}
}

// DefaultProfiles 内置的系统与端口健康命令集
func DefaultProfiles() Profiles {
	return Profiles{
		"system": {
			Name:       "system",
			Title:      "SWITCH MONITORING REPORT",
			FilePrefix: "basicinfo",
			Commands: []CommandSpec{
				{Command: "show version", Label: "Version Information"},
				{Command: "show system", Label: "System Information"},
				{Command: "show cpu utilization", Label: "CPU Utilization"},
				{Command: "show power inline", Label: "Power Supply Status"},
				{Command: "show inventory", Label: "Inventory Information"},
				{Command: "show voice vlan", Label: "Voice VLAN Information"},
			},
		},
		"interface": {
			Name:       "interface",
			Title:      "INTERFACE PORT HEALTH REPORT",
			FilePrefix: "interface_port",
			Commands: []CommandSpec{
				{Command: "show interface status", Label: "Port Status"},
				{Command: "show interfaces status", Label: "Speed & Duplex"},
				{Command: "show log", Label: "Port Flapping (Logs)"},
				{Command: "show interfaces", Label: "Port Flapping (Interfaces)"},
				{Command: "show queue statistics", Label: "Output Drops"},
			},
			Discovery: DefaultDiscovery(),
		},
	}
}

type profilesFile struct {
	Profiles []*Profile `yaml:"profiles"`
}

// LoadProfiles 读取命令集文件，同名条目覆盖内置命令集；path 为空时只返回内置命令集
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if strings.TrimSpace(path) == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Err: fmt.Errorf("failed to read profiles: %w", err)}
	}
	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigurationError{Source: path, Err: fmt.Errorf("failed to parse profiles: %w", err)}
	}
	for idx, p := range file.Profiles {
		if p == nil || strings.TrimSpace(p.Name) == "" {
			return nil, &ConfigurationError{Source: path, Err: fmt.Errorf("profile #%d has no name", idx+1)}
		}
		if err := p.normalize(); err != nil {
			return nil, &ConfigurationError{Source: path, Err: err}
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}

func (p *Profile) normalize() error {
	if len(p.Commands) == 0 && p.Discovery == nil {
		return fmt.Errorf("profile %s has no commands", p.Name)
	}
	for i, c := range p.Commands {
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("profile %s: command #%d is empty", p.Name, i+1)
		}
		if c.Label == "" {
			p.Commands[i].Label = c.Command
		}
	}
	if p.Title == "" {
		p.Title = strings.ToUpper(p.Name) + " REPORT"
	}
	if p.FilePrefix == "" {
		p.FilePrefix = p.Name
	}
	if d := p.Discovery; d != nil {
		def := DefaultDiscovery()
		if d.Command == "" {
			d.Command = def.Command
		}
		if len(d.Prefixes) == 0 {
			d.Prefixes = def.Prefixes
		}
		if d.CommandTemplate == "" {
			d.CommandTemplate = def.CommandTemplate
		}
		if d.LabelTemplate == "" {
			d.LabelTemplate = def.LabelTemplate
		}
	}
	return nil
}

// Get 按名称取命令集
func (p Profiles) Get(name string) (*Profile, error) {
	prof, ok := p[name]
	if !ok {
		return nil, &ConfigurationError{Source: "profiles", Err: fmt.Errorf("unknown profile %q", name)}
	}
	return prof, nil
}

// Names 排序后的命令集名称
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
