package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContinuityPhase 连续性记录来源阶段
type ContinuityPhase string

const (
	ContinuityPhasePlan   ContinuityPhase = "plan"
	ContinuityPhaseReview ContinuityPhase = "review"
	ContinuityPhaseReplan ContinuityPhase = "replan"
)

// 连续性日志种子文本
const (
	ContinuitySeedCreated  = "Novel Context Log Initiated. Stated Literary Influences: %s. Initial setup pending."
	ContinuitySeedPlanned  = "Novel Context Log Initiated. Stated Literary Influences: %s. Overall plot and character foundations established."
	ContinuitySeedMissing  = "Novel Context Log not initialized by AI."
	ContinuitySeedImported = "Novel Context Log Imported. Original log not present or initialized."
	ContinuitySeedEmpty    = "Novel Context Log Initiated. No specific developments logged yet."
)

// ContinuityEntry 一条按章节与阶段标记的叙事进展
type ContinuityEntry struct {
	ChapterNumber int             `json:"chapterNumber"`
	Phase         ContinuityPhase `json:"phase"`
	Note          string          `json:"note"`
	RecordedAt    int64           `json:"recordedAt"`
}

// Heading 渲染时使用的分节标题
func (e ContinuityEntry) Heading() string {
	switch e.Phase {
	case ContinuityPhaseReview:
		return fmt.Sprintf("--- Chapter %d Review - Key Developments & Insights from Prose ---", e.ChapterNumber)
	case ContinuityPhaseReplan:
		return fmt.Sprintf("--- Chapter %d Re-Plan - Key Developments ---", e.ChapterNumber)
	default:
		return fmt.Sprintf("--- Chapter %d Plan - Key Developments ---", e.ChapterNumber)
	}
}

// ContinuityLog 只追加的叙事连续性日志
// 存储为种子文本加有序条目，提示词使用 Render 得到的文本视图
type ContinuityLog struct {
	seed    string
	entries []ContinuityEntry
}

// NewContinuityLog 以种子文本创建日志
func NewContinuityLog(seed string) ContinuityLog {
	return ContinuityLog{seed: strings.TrimSpace(seed)}
}

// Seed 返回种子文本
func (l ContinuityLog) Seed() string { return l.seed }

// Len 返回条目数
func (l ContinuityLog) Len() int { return len(l.entries) }

// IsZero 日志是否完全为空
func (l ContinuityLog) IsZero() bool { return l.seed == "" && len(l.entries) == 0 }

// Entries 返回条目副本
func (l ContinuityLog) Entries() []ContinuityEntry {
	out := make([]ContinuityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Append 追加一条进展，空白记录被忽略
func (l *ContinuityLog) Append(chapter int, phase ContinuityPhase, note string, at time.Time) bool {
	note = strings.TrimSpace(note)
	if note == "" {
		return false
	}
	l.entries = append(l.entries, ContinuityEntry{
		ChapterNumber: chapter,
		Phase:         phase,
		Note:          note,
		RecordedAt:    at.UnixMilli(),
	})
	return true
}

// Render 渲染为文本账本
func (l ContinuityLog) Render() string {
	var b strings.Builder
	b.WriteString(l.seed)
	for _, e := range l.entries {
		b.WriteString("\n\n")
		b.WriteString(e.Heading())
		b.WriteString("\n")
		b.WriteString(e.Note)
	}
	return strings.TrimSpace(b.String())
}

// String 等同于 Render
func (l ContinuityLog) String() string { return l.Render() }

// Clone 深拷贝
func (l ContinuityLog) Clone() ContinuityLog {
	return ContinuityLog{seed: l.seed, entries: l.Entries()}
}

type continuityLogJSON struct {
	Seed    string            `json:"seed"`
	Entries []ContinuityEntry `json:"entries"`
}

// MarshalJSON 编码为 {seed, entries}
func (l ContinuityLog) MarshalJSON() ([]byte, error) {
	entries := l.entries
	if entries == nil {
		entries = []ContinuityEntry{}
	}
	return json.Marshal(continuityLogJSON{Seed: l.seed, Entries: entries})
}

// UnmarshalJSON 兼容旧格式：纯字符串整体作为种子
func (l *ContinuityLog) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ContinuityLog{}
		return nil
	}
	if data[0] == '"' {
		var legacy string
		if err := json.Unmarshal(data, &legacy); err != nil {
			return err
		}
		*l = NewContinuityLog(legacy)
		return nil
	}
	var v continuityLogJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode continuity log: %w", err)
	}
	*l = ContinuityLog{seed: v.Seed, entries: v.Entries}
	return nil
}
