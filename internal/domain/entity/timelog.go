package entity

import (
	"fmt"
	"time"
)

// TimeLog 单次生成操作的耗时记录（Unix 毫秒）
type TimeLog struct {
	StartTime  int64 `json:"startTime"`
	EndTime    int64 `json:"endTime"`
	DurationMs int64 `json:"durationMs"`
}

// NewTimeLog 根据起止时间创建耗时记录
func NewTimeLog(start, end time.Time) *TimeLog {
	return &TimeLog{
		StartTime:  start.UnixMilli(),
		EndTime:    end.UnixMilli(),
		DurationMs: end.Sub(start).Milliseconds(),
	}
}

// Duration 返回耗时
func (t *TimeLog) Duration() time.Duration {
	if t == nil {
		return 0
	}
	return time.Duration(t.DurationMs) * time.Millisecond
}

// FormatDurationShort 输出简短耗时描述：850ms / 12s / 2m 5s
func FormatDurationShort(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := ms / 1000
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	mins, rem := secs/60, secs%60
	if rem == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, rem)
}
