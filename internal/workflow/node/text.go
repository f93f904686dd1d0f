// Package node 模型输入输出的文本处理工具
package node

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// TruncateRunes 按字符数截断，不切断多字节字符
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// ExtractJSON 返回模型输出中第一个括号配平的 JSON 对象或数组
//
// 模型常在 JSON 前后附带说明文字；字符串字面量内的括号不参与配平。
// 找不到可解析的值时返回去除首尾空白的原文。
func ExtractJSON(s string) string {
	text := strings.TrimSpace(s)
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end := matchBracket(text, start)
		if end < 0 {
			break
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return text
}

// matchBracket 返回与 start 处括号配平的位置，未闭合时返回 -1
func matchBracket(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// responseFormatMarkers 提供商拒绝 response_format 参数时错误信息中的特征片段
var responseFormatMarkers = [][]string{
	{"response_format"},
	{"response_schema"},
	{"json_schema"},
	{"json_object"},
	{"unknown parameter", "response"},
	{"invalid", "response"},
	{"failed to parse"},
}

// IsResponseFormatUnsupported 判断错误是否表示模型不支持 JSON 输出模式
func IsResponseFormatUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range responseFormatMarkers {
		matched := true
		for _, part := range marker {
			if !strings.Contains(msg, part) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
