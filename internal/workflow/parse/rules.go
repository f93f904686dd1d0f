// Package parse 将模型返回的半结构化文本解析为各阶段的结构化结果
//
// 每个字段由一条数据化的规则描述：起始标记、结束标记集合与最小长度。
// 新的标记变体只需追加正则，不需要改动控制流。
package parse

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"z-novel-forge/pkg/metrics"
)

// MinSubstantialLength 区块被接受的最小字符数
const MinSubstantialLength = 100

// Section 以起始标记定位、以最早出现的结束标记截断的文本区块
type Section struct {
	Name string
	// Start 起始标记，多个备选写成一个正则的分支
	Start *regexp.Regexp
	// Ends 结束标记，在起始标记之后取最早的匹配；都不出现时延伸到文本末尾
	Ends []*regexp.Regexp
	// IncludeStart 区块是否包含起始标记本身
	IncludeStart bool
}

// Match 区块在原文中的位置
type Match struct {
	Start int
	End   int
	Text  string
}

// Locate 定位区块，Text 已去除首尾空白
func (s Section) Locate(text string) (Match, bool) {
	if s.Start == nil {
		return Match{}, false
	}
	loc := s.Start.FindStringIndex(text)
	if loc == nil {
		return Match{}, false
	}
	begin := loc[1]
	if s.IncludeStart {
		begin = loc[0]
	}
	end := len(text)
	rest := text[loc[1]:]
	for _, re := range s.Ends {
		if m := re.FindStringIndex(rest); m != nil && loc[1]+m[0] < end {
			end = loc[1] + m[0]
		}
	}
	return Match{Start: loc[0], End: end, Text: strings.TrimSpace(text[begin:end])}, true
}

// Extract 返回长度超过 minLen 的区块文本，否则返回空串
func (s Section) Extract(text string, minLen int) string {
	m, ok := s.Locate(text)
	if !ok {
		return ""
	}
	body := trimMarkup(m.Text)
	if runeLen(body) <= minLen {
		return ""
	}
	return body
}

// Signal 可选的单值信号行，例如建议标题；命中无操作措辞时视为缺失
type Signal struct {
	Section
	// NoOps 小写子串，值中包含任一子串即视为无操作
	NoOps []string
	// ExactNoOps 小写全文，值与之相等时视为无操作
	ExactNoOps []string
	// MinLen / MaxLen 接受区间（开区间），0 表示不限制
	MinLen int
	MaxLen int
	// Clean 对取得的值做额外清理
	Clean func(string) string
}

// Find 返回清理后的值与原文位置；found 表示标记出现过，ok 表示值被接受
func (s Signal) Find(text string) (value string, m Match, found, ok bool) {
	m, found = s.Locate(text)
	if !found {
		return "", m, false, false
	}
	value = m.Text
	if s.Clean != nil {
		value = s.Clean(value)
	}
	value = strings.TrimSpace(value)
	if value == "" || s.isNoOp(value) {
		return "", m, true, false
	}
	n := runeLen(value)
	if (s.MinLen > 0 && n <= s.MinLen) || (s.MaxLen > 0 && n >= s.MaxLen) {
		return "", m, true, false
	}
	return value, m, true, true
}

func (s Signal) isNoOp(value string) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	for _, p := range s.ExactNoOps {
		if lower == p {
			return true
		}
	}
	for _, p := range s.NoOps {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func re(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

func res(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// trimMarkup 去掉区块首尾残留的 Markdown 强调符与列表符
func trimMarkup(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "*:)\" \t\r\n")
	s = strings.TrimRight(s, "*#>- \t\r\n")
	return strings.TrimSpace(s)
}

// trimQuotes 去掉成对或单侧残留的引号、反引号与强调符
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*`")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "\"'“‘「")
	s = strings.TrimRight(s, "\"'”’」")
	return strings.TrimSpace(s)
}

// cut 截断到第一个匹配位置之前
func cut(text string, markers *regexp.Regexp) (string, bool) {
	if loc := markers.FindStringIndex(text); loc != nil {
		return text[:loc[0]], true
	}
	return text, false
}

// removeSpan 删除区块原文（从起始标记到结束位置）
func removeSpan(text string, m Match) string {
	if m.Start < 0 || m.End > len(text) || m.Start >= m.End {
		return text
	}
	return text[:m.Start] + text[m.End:]
}

func fallback(parser, strategy string) {
	metrics.ParserFallbacksTotal.WithLabelValues(parser, strategy).Inc()
}
