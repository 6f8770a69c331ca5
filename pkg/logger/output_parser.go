package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 设备回显的头部和尾部行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
}

// ParseOutputLines 提取回显的头尾各 maxLines 行（默认5行），空行不计
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.ReplaceAll(output, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return OutputLines{}
	}

	n := maxLines
	if n > len(lines) {
		n = len(lines)
	}
	head := append([]string(nil), lines[:n]...)
	// 总行数不超过 maxLines 时尾部与头部相同
	if len(lines) <= maxLines {
		return OutputLines{HeadLines: head, TailLines: append([]string(nil), head...)}
	}
	tail := append([]string(nil), lines[len(lines)-n:]...)
	return OutputLines{HeadLines: head, TailLines: tail}
}

// FormatOutputLines 格式化为单行日志文本
func FormatOutputLines(lines OutputLines) string {
	var parts []string
	if len(lines.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(lines.HeadLines, " ⟩ ")+"]")
	}
	if len(lines.TailLines) > 0 && !equalLines(lines.HeadLines, lines.TailLines) {
		parts = append(parts, "tail-lines: ["+strings.Join(lines.TailLines, " ⟩ ")+"]")
	}
	return strings.Join(parts, ", ")
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DebugCommandOutput 在 debug 级别记录命令回显摘要
// entry 为空时使用全局日志
func DebugCommandOutput(entry *logrus.Entry, command, output string, maxLines int) {
	if entry == nil {
		entry = logrus.NewEntry(GetLogger())
	}
	if !entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	lines := ParseOutputLines(output, maxLines)
	if len(lines.HeadLines) == 0 {
		return
	}
	entry.Debugf("Command echo [%s]: %s", command, FormatOutputLines(lines))
}
