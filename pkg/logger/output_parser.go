package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 命令输出的头部与尾部行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
	Total     int      `json:"total"`
}

// ParseOutputLines 提取命令输出的头部和尾部行
// maxLines: head 和 tail 各自最多提取的行数
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}

	// 统一换行符处理
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.ReplaceAll(output, "\r", "\n")
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return OutputLines{}
	}

	lines := strings.Split(output, "\n")
	total := len(lines)

	headCount := min(maxLines, total)
	head := make([]string, headCount)
	copy(head, lines[:headCount])

	// 行数不超过 maxLines 时 head 与 tail 相同
	if total <= maxLines {
		return OutputLines{HeadLines: head, TailLines: head, Total: total}
	}
	tail := make([]string, maxLines)
	copy(tail, lines[total-maxLines:])
	return OutputLines{HeadLines: head, TailLines: tail, Total: total}
}

// FormatOutputLines 格式化为单行字符串，用于日志记录
func FormatOutputLines(lines OutputLines) string {
	var parts []string

	if len(lines.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(lines.HeadLines, " ⟩ ")+"]")
	}
	if len(lines.TailLines) > 0 && lines.Total > len(lines.HeadLines) {
		parts = append(parts, "tail-lines: ["+strings.Join(lines.TailLines, " ⟩ ")+"]")
	}

	return strings.Join(parts, ", ")
}

// DebugCommandOutput 在 debug 级别记录命令输出的 head/tail-lines
func DebugCommandOutput(entry *logrus.Entry, command string, output string, maxLines int) {
	entry = Entry(entry)
	if !entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	lines := ParseOutputLines(output, maxLines)
	if len(lines.HeadLines) == 0 {
		return
	}

	entry.WithField("lines", lines.Total).Debugf("Command echo [%s]: %s", command, FormatOutputLines(lines))
}
