package entity

import (
	"strings"
	"time"
)

// SystemLogCapacity 系统日志最多保留条数
const SystemLogCapacity = 200

// ErrorLogPrefix 错误日志前缀
const ErrorLogPrefix = "ERROR: "

// SystemLogEntry 项目系统日志条目
type SystemLogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// IsError 是否为错误条目
func (e SystemLogEntry) IsError() bool {
	return strings.HasPrefix(e.Message, ErrorLogPrefix)
}

// AppendSystemLog 追加日志，超出容量时丢弃最旧的条目
func (p *Project) AppendSystemLog(message string, at time.Time) {
	p.SystemLog = append(p.SystemLog, SystemLogEntry{Timestamp: at.UnixMilli(), Message: message})
	if over := len(p.SystemLog) - SystemLogCapacity; over > 0 {
		p.SystemLog = append([]SystemLogEntry(nil), p.SystemLog[over:]...)
	}
}

// AppendErrorLog 追加带 ERROR: 前缀的日志
func (p *Project) AppendErrorLog(message string, at time.Time) {
	if !strings.HasPrefix(message, ErrorLogPrefix) {
		message = ErrorLogPrefix + message
	}
	p.AppendSystemLog(message, at)
}

// CountErrorLogs 统计错误条目
func (p *Project) CountErrorLogs() int {
	n := 0
	for _, e := range p.SystemLog {
		if e.IsError() {
			n++
		}
	}
	return n
}
