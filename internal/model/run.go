package model

import (
	"time"
)

// HostCredential 单台交换机的连接凭据，运行期间不可变
type HostCredential struct {
	HostKey  string `json:"host_key"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// RunResult 一次采集运行
type RunResult struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	HostKey    string          `json:"host_key" gorm:"type:varchar(64);index"`
	Address    string          `json:"address" gorm:"type:varchar(128);not null;index"`
	Port       int             `json:"port" gorm:"not null;default:22"`
	Profile    string          `json:"profile" gorm:"type:varchar(32);not null"`
	Status     string          `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	Ports      []string        `json:"ports,omitempty" gorm:"serializer:json"`
	Methods    []string        `json:"auth_methods,omitempty" gorm:"serializer:json"`
	Results    []CommandResult `json:"results" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	Error      string          `json:"error,omitempty" gorm:"type:text"`
	ReportURI  string          `json:"report_uri,omitempty" gorm:"type:varchar(512)"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (RunResult) TableName() string {
	return "runs"
}

// CommandResult 单条命令的输出，按命令顺序排列
type CommandResult struct {
	ID         uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	RunID      string `json:"-" gorm:"type:varchar(64);not null;index"`
	Seq        int    `json:"seq" gorm:"not null"`
	Label      string `json:"label" gorm:"type:varchar(128);not null"`
	Command    string `json:"command" gorm:"type:varchar(256);not null"`
	RawOutput  string `json:"raw_output" gorm:"type:text"`
	Error      string `json:"error,omitempty" gorm:"type:text"`
	Complete   bool   `json:"complete"`
	Truncated  bool   `json:"truncated"`
	Pages      int    `json:"pages"`
	DurationMS int64  `json:"duration_ms"`
}

// TableName 表名
func (CommandResult) TableName() string {
	return "command_results"
}

// RunStatus 运行状态枚举
const (
	RunStatusRunning  = "running"
	RunStatusSuccess  = "success"
	RunStatusDegraded = "degraded"
	RunStatusFailed   = "failed"
)

// Profile 内置命令集名称
const (
	ProfileSystem    = "system"
	ProfileInterface = "interface"
)

// Degraded 是否存在失败或截断的命令
func (r *RunResult) Degraded() bool {
	for _, c := range r.Results {
		if c.Error != "" || c.Truncated {
			return true
		}
	}
	return false
}
